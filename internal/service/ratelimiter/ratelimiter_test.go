package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/videoforge/internal/service/ratelimiter"
)

func newLimiter(t *testing.T, buckets map[string]ratelimiter.Bucket) *ratelimiter.RedisLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return ratelimiter.New(rdb, buckets)
}

func TestAllow_DrainsBucketThenBlocks(t *testing.T) {
	t.Parallel()
	l := newLimiter(t, map[string]ratelimiter.Bucket{
		"model:runway": ratelimiter.PerMinute(2),
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "model:runway")
		require.NoError(t, err)
		assert.True(t, ok, "call %d should pass", i)
	}

	ok, retryAfter, err := l.Allow(ctx, "model:runway")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestAllow_UnconfiguredKeyPasses(t *testing.T) {
	t.Parallel()
	l := newLimiter(t, nil)
	ok, retryAfter, err := l.Allow(context.Background(), "model:unknown")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, retryAfter)
}

func TestSetBucket_TakesEffect(t *testing.T) {
	t.Parallel()
	l := newLimiter(t, nil)
	ctx := context.Background()

	l.SetBucket("model:mock", ratelimiter.PerMinute(1))
	ok, _, err := l.Allow(ctx, "model:mock")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = l.Allow(ctx, "model:mock")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllow_FailsOpenOnRedisOutage(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := ratelimiter.New(rdb, map[string]ratelimiter.Bucket{
		"model:runway": ratelimiter.PerMinute(1),
	})
	mr.Close()

	ok, _, err := l.Allow(context.Background(), "model:runway")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPerMinute_NonPositive(t *testing.T) {
	t.Parallel()
	assert.Zero(t, ratelimiter.PerMinute(0))
	assert.Zero(t, ratelimiter.PerMinute(-5))
}
