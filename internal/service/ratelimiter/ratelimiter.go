// Package ratelimiter paces outbound calls to video generation providers.
// Buckets live in Redis so every worker replica draws from the same budget;
// a single Lua script keeps the refill-and-take step atomic.
package ratelimiter

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter answers whether a call keyed by bucket may proceed now, and if not,
// how long the caller should wait before asking again.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// Bucket is a token bucket shape: capacity tokens, refilled at RefillRate
// tokens per second.
type Bucket struct {
	Capacity   int64
	RefillRate float64
}

// PerMinute builds a bucket that admits n calls per minute with burst n.
func PerMinute(n int) Bucket {
	if n <= 0 {
		return Bucket{}
	}
	return Bucket{Capacity: int64(n), RefillRate: float64(n) / 60.0}
}

// tokenBucketScript refills by elapsed time and takes one token if available.
// Returns {allowed, retry_after_seconds}.
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] then
  tokens = tonumber(data[1])
end
if data[2] then
  last_refill = tonumber(data[2])
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end
tokens = math.min(capacity, tokens + delta * refill_rate)

local allowed = 0
local retry_after = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
elseif refill_rate > 0 then
  retry_after = (1 - tokens) / refill_rate
end

redis.call("HSET", key, "tokens", tokens, "last_refill", now)
redis.call("EXPIRE", key, 3600)

return { allowed, tostring(retry_after) }
`

// RedisLimiter implements Limiter on a shared Redis instance. Keys without a
// configured bucket pass freely, and Redis outages fail open: throttling is a
// courtesy to the provider, not a correctness requirement.
type RedisLimiter struct {
	rdb     *redis.Client
	script  *redis.Script
	mu      sync.RWMutex
	buckets map[string]Bucket
}

// New builds a limiter over rdb with the given per-key buckets.
func New(rdb *redis.Client, buckets map[string]Bucket) *RedisLimiter {
	if buckets == nil {
		buckets = map[string]Bucket{}
	}
	return &RedisLimiter{
		rdb:     rdb,
		script:  redis.NewScript(tokenBucketScript),
		buckets: buckets,
	}
}

// SetBucket installs or replaces the bucket for key. Safe for concurrent use;
// lets operators retune provider budgets without a restart.
func (l *RedisLimiter) SetBucket(key string, b Bucket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[key] = b
}

// Allow takes one token from key's bucket.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.rdb == nil {
		return true, 0, nil
	}
	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if !ok || b.Capacity <= 0 || b.RefillRate <= 0 {
		return true, 0, nil
	}

	nowSec := float64(time.Now().UnixNano()) / 1e9
	res, err := l.script.Run(ctx, l.rdb, []string{"throttle:" + key}, b.Capacity, b.RefillRate, nowSec).Result()
	if err != nil {
		slog.Warn("rate limiter script failed, failing open",
			slog.String("key", key), slog.Any("error", err))
		return true, 0, nil
	}
	vals, ok := res.([]any)
	if !ok || len(vals) < 2 {
		slog.Warn("rate limiter returned unexpected shape",
			slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}
	allowed := asInt64(vals[0]) == 1
	retryAfter := time.Duration(asFloat64(vals[1]) * float64(time.Second))
	return allowed, retryAfter, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}
