// Package progress keeps advisory render-progress counters in Redis for
// low-latency UI polling. The state store stays authoritative; cache drift
// self-heals on the next worker event or TTL expiry.
package progress

import (
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/videoforge/internal/domain"
)

// TTL bounds how long progress records outlive their render job.
const TTL = 24 * time.Hour

func renderJobKey(id string) string { return "render_job:" + id }
func segmentKey(id string) string   { return "segment:" + id }

// Cache implements domain.ProgressCache on a Redis hash per render job.
type Cache struct {
	rdb *redis.Client
}

// New constructs a Cache from a Redis URL (redis://host:port/db).
func New(url string) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=progress.connect: %w", err)
	}
	return &Cache{rdb: redis.NewClient(opts)}, nil
}

// NewWithClient wraps an existing client; tests pass a miniredis-backed one.
func NewWithClient(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

// InitRenderJob seeds the progress hash for a new render job.
func (c *Cache) InitRenderJob(ctx domain.Context, renderJobID string, total int, status string) error {
	key := renderJobKey(renderJobID)
	fields := map[string]any{
		"segments_total":     total,
		"segments_completed": 0,
		"status":             status,
		"progress_percentage": func() float64 {
			if total == 0 {
				return 100
			}
			return 0
		}(),
	}
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("op=progress.init: %w", err)
	}
	return nil
}

// IncrementRenderJob bumps the completed counter and recomputes the
// percentage. The percentage is advisory; readers should never act on it.
func (c *Cache) IncrementRenderJob(ctx domain.Context, renderJobID string) error {
	key := renderJobKey(renderJobID)
	completed, err := c.rdb.HIncrBy(ctx, key, "segments_completed", 1).Result()
	if err != nil {
		return fmt.Errorf("op=progress.increment: %w", err)
	}
	total, err := c.rdb.HGet(ctx, key, "segments_total").Int64()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("op=progress.increment: %w", err)
	}
	pct := float64(100)
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "progress_percentage", pct)
	pipe.Expire(ctx, key, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("op=progress.increment: %w", err)
	}
	return nil
}

// SetRenderJobStatus mirrors a status transition into the cache.
func (c *Cache) SetRenderJobStatus(ctx domain.Context, renderJobID, status string) error {
	key := renderJobKey(renderJobID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "status", status)
	pipe.Expire(ctx, key, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("op=progress.set_status: %w", err)
	}
	return nil
}

// GetRenderJob reads the advisory progress record. A missing key is
// domain.ErrNotFound: the caller falls back to the state store.
func (c *Cache) GetRenderJob(ctx domain.Context, renderJobID string) (domain.RenderProgress, error) {
	vals, err := c.rdb.HGetAll(ctx, renderJobKey(renderJobID)).Result()
	if err != nil {
		return domain.RenderProgress{}, fmt.Errorf("op=progress.get: %w", err)
	}
	if len(vals) == 0 {
		return domain.RenderProgress{}, fmt.Errorf("op=progress.get: %w", domain.ErrNotFound)
	}
	var p domain.RenderProgress
	p.SegmentsTotal, _ = strconv.Atoi(vals["segments_total"])
	p.SegmentsCompleted, _ = strconv.Atoi(vals["segments_completed"])
	p.Status = vals["status"]
	p.ProgressPercentage, _ = strconv.ParseFloat(vals["progress_percentage"], 64)
	return p, nil
}

// SetSegmentStatus records a segment's in-flight state bound to its render
// job, TTL-bounded like everything else here.
func (c *Cache) SetSegmentStatus(ctx domain.Context, segmentID, status, renderJobID string) error {
	key := segmentKey(segmentID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{"status": status, "render_job_id": renderJobID})
	pipe.Expire(ctx, key, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("op=progress.set_segment: %w", err)
	}
	return nil
}

// Ping checks the Redis connection, for readiness probes.
func (c *Cache) Ping(ctx domain.Context) error { return c.rdb.Ping(ctx).Err() }

// Close releases the client.
func (c *Cache) Close() error { return c.rdb.Close() }
