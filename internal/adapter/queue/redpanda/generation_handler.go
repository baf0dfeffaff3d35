package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/videoforge/internal/adapter/observability"
	"github.com/fairyhunter13/videoforge/internal/domain"
	"github.com/fairyhunter13/videoforge/internal/service/ratelimiter"
	"github.com/fairyhunter13/videoforge/internal/videomodel"
)

// GenerationConfig bounds the adapter interaction per task.
type GenerationConfig struct {
	// PollInterval between get_status probes.
	PollInterval time.Duration
	// PollBudget is the total time allowed from initiate to a terminal
	// status; exceeding it fails the segment with TIMEOUT.
	PollBudget time.Duration
	// InitiateAttempts bounds initiate retries on retryable adapter errors.
	InitiateAttempts int
	// InitiateBackoffInitial and InitiateBackoffMax shape the retry delays.
	InitiateBackoffInitial time.Duration
	InitiateBackoffMax     time.Duration
}

// DefaultGenerationConfig returns the production defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		PollInterval:           time.Second,
		PollBudget:             180 * time.Second,
		InitiateAttempts:       3,
		InitiateBackoffInitial: 2 * time.Second,
		InitiateBackoffMax:     10 * time.Second,
	}
}

// GenerationHandler processes one segment-generation task end to end:
// adapter initiate, poll, asset fetch, object-store upload, then the
// conditional completion that gates progress accounting. All mutations are
// idempotent keyed on segment and render-job ids, so broker redelivery is
// safe.
type GenerationHandler struct {
	Segments   domain.SegmentRepository
	RenderJobs domain.RenderJobRepository
	Queue      domain.Queue
	Cache      domain.ProgressCache
	Store      domain.ObjectStore
	Models     *videomodel.Registry
	Cfg        GenerationConfig
	// Limiter paces provider calls across worker replicas; nil disables
	// pacing.
	Limiter ratelimiter.Limiter
	// Breakers sheds load from providers that keep failing; nil disables.
	Breakers *videomodel.BreakerSet
	// HTTP downloads remote adapter assets; file:// URLs bypass it.
	HTTP *http.Client
	// TempDir receives per-task scratch files; default os.TempDir().
	TempDir string
}

// Handle implements the consumer Handler contract. A nil return acks the
// record; non-nil leaves it for redelivery (infra failures only — adapter
// failures terminate the segment and ack).
func (h *GenerationHandler) Handle(ctx context.Context, value []byte) error {
	tracer := otel.Tracer("worker.generation")
	ctx, span := tracer.Start(ctx, "HandleGeneration")
	defer span.End()

	var payload domain.GenerationTaskPayload
	if err := json.Unmarshal(value, &payload); err != nil {
		slog.Error("malformed generation payload, dropping", slog.Any("error", err))
		return nil
	}
	if payload.Version != domain.TaskVersion {
		slog.Warn("unexpected payload version",
			slog.Int("version", payload.Version),
			slog.String("segment_id", payload.SegmentID))
	}
	lg := slog.With(
		slog.String("segment_id", payload.SegmentID),
		slog.String("render_job_id", payload.RenderJobID))

	seg, err := h.Segments.Get(ctx, payload.SegmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			lg.Warn("segment no longer exists, dropping task")
			return nil
		}
		return fmt.Errorf("op=worker.generation: %w", err)
	}
	// Redelivered task for an already-completed segment: no adapter call, no
	// progress increment.
	if seg.Status == domain.SegmentCompleted && seg.AssetURL != nil {
		lg.Info("segment already completed, acking duplicate")
		return nil
	}

	if err := h.Segments.MarkGenerating(ctx, payload.SegmentID); err != nil {
		return fmt.Errorf("op=worker.generation: %w", err)
	}
	h.cacheSegmentStatus(ctx, payload.SegmentID, string(domain.SegmentGenerating), payload.RenderJobID)

	adapter, err := h.Models.New(videomodel.ModelFromParams(payload.ModelParams))
	if err != nil {
		return h.failSegment(ctx, lg, payload.SegmentID, payload.RenderJobID, err)
	}
	lg = lg.With(slog.String("model", adapter.Name()))

	if err := h.waitForModelBudget(ctx, adapter.Name()); err != nil {
		return fmt.Errorf("op=worker.generation: %w", err)
	}

	start := time.Now()
	externalJobID, err := h.initiate(ctx, adapter, payload.Prompt, payload.ModelParams)
	observability.ObserveAdapterCall(adapter.Name(), "initiate", time.Since(start))
	if err != nil {
		return h.failSegment(ctx, lg, payload.SegmentID, payload.RenderJobID, err)
	}
	if err := h.Segments.SetExternalJobID(ctx, payload.SegmentID, externalJobID); err != nil {
		return fmt.Errorf("op=worker.generation: %w", err)
	}
	lg.Info("generation initiated", slog.String("external_job_id", externalJobID))

	start = time.Now()
	result, err := h.awaitResult(ctx, adapter, externalJobID)
	observability.ObserveAdapterCall(adapter.Name(), "generate", time.Since(start))
	if err != nil {
		return h.failSegment(ctx, lg, payload.SegmentID, payload.RenderJobID, err)
	}
	if result.Status == videomodel.StatusFailed {
		code := result.ErrorCode
		if code == "" {
			code = videomodel.CodeGeneration
		}
		return h.failSegment(ctx, lg, payload.SegmentID, payload.RenderJobID,
			videomodel.NewError(code, result.ErrorMessage, nil))
	}

	assetURL, err := h.storeAsset(ctx, seg.ProjectID, payload.SegmentID, result.VideoURL)
	if err != nil {
		return fmt.Errorf("op=worker.generation: %w", err)
	}

	changed, err := h.Segments.MarkCompleted(ctx, payload.SegmentID, assetURL)
	if err != nil {
		return fmt.Errorf("op=worker.generation: %w", err)
	}
	if !changed {
		// Someone else completed it between our status check and now.
		lg.Info("segment completion raced, skipping progress update")
		return nil
	}
	lg.Info("segment completed", slog.String("asset_url", assetURL))
	observability.TaskCompleted("generation")
	h.cacheSegmentStatus(ctx, payload.SegmentID, string(domain.SegmentCompleted), payload.RenderJobID)

	// Post-effects of the one real completion. Errors past this point are
	// logged, not returned: redelivery cannot repeat them because the
	// conditional update above will not match again.
	h.advanceRenderJob(ctx, lg, payload.RenderJobID)

	if err := h.Queue.PublishSegmentCompleted(ctx, domain.SegmentCompletedEvent{
		SegmentID:   payload.SegmentID,
		RenderJobID: payload.RenderJobID,
	}); err != nil {
		lg.Warn("segment-completed event publish failed", slog.Any("error", err))
	}
	return nil
}

// waitForModelBudget blocks until the shared per-model budget admits one
// provider call. Pacing never fails a task on its own; only context
// cancellation (worker shutdown) aborts the wait.
func (h *GenerationHandler) waitForModelBudget(ctx context.Context, model string) error {
	if h.Limiter == nil {
		return nil
	}
	for {
		allowed, retryAfter, err := h.Limiter.Allow(ctx, "model:"+model)
		if err != nil || allowed {
			return nil
		}
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		slog.Info("model budget exhausted, waiting",
			slog.String("model", model),
			slog.Duration("retry_after", retryAfter))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}
	}
}

// initiate submits the job, retrying retryable adapter errors with jittered
// exponential backoff. An open circuit counts as a retryable connection
// failure so the usual backoff and attempt budget apply.
func (h *GenerationHandler) initiate(ctx context.Context, adapter videomodel.Adapter, prompt string, params map[string]any) (string, error) {
	var breaker *videomodel.Breaker
	if h.Breakers != nil {
		breaker = h.Breakers.For(adapter.Name())
	}
	var jobID string
	op := func() error {
		if breaker != nil && !breaker.Allow() {
			return videomodel.NewError(videomodel.CodeConnection, "model circuit open", nil)
		}
		id, err := adapter.Initiate(ctx, prompt, params)
		if err != nil {
			if breaker != nil {
				breaker.Failure()
			}
			if !videomodel.Retryable(err) {
				return backoff.Permanent(err)
			}
			slog.Warn("initiate failed, retrying", slog.Any("error", err))
			return err
		}
		if breaker != nil {
			breaker.Success()
		}
		jobID = id
		return nil
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = h.Cfg.InitiateBackoffInitial
	expo.MaxInterval = h.Cfg.InitiateBackoffMax
	expo.MaxElapsedTime = 0
	attempts := uint64(h.Cfg.InitiateAttempts)
	if attempts == 0 {
		attempts = 1
	}
	b := backoff.WithMaxRetries(backoff.WithContext(expo, ctx), attempts-1)
	if err := backoff.Retry(op, b); err != nil {
		return "", err
	}
	return jobID, nil
}

// awaitResult polls get_status until terminal or the budget expires, then
// fetches the result. Budget exhaustion cancels best-effort and yields a
// TIMEOUT failure.
func (h *GenerationHandler) awaitResult(ctx context.Context, adapter videomodel.Adapter, externalJobID string) (videomodel.Result, error) {
	deadline := time.Now().Add(h.Cfg.PollBudget)
	ticker := time.NewTicker(h.Cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := adapter.GetStatus(ctx, externalJobID)
		if err != nil {
			return videomodel.Result{}, err
		}
		if status.Terminal() {
			return adapter.GetResult(ctx, externalJobID)
		}
		if time.Now().After(deadline) {
			adapter.Cancel(ctx, externalJobID)
			return videomodel.Result{}, videomodel.NewError(videomodel.CodeTimeout,
				fmt.Sprintf("generation did not finish within %s", h.Cfg.PollBudget), nil)
		}
		select {
		case <-ctx.Done():
			return videomodel.Result{}, videomodel.NewError(videomodel.CodeTimeout, "worker shutting down", ctx.Err())
		case <-ticker.C:
		}
	}
}

// storeAsset fetches the adapter's output (network or file://) into a temp
// file and uploads it under the segment's deterministic key.
func (h *GenerationHandler) storeAsset(ctx context.Context, projectID, segmentID, videoURL string) (string, error) {
	localPath := strings.TrimPrefix(videoURL, "file://")
	if localPath == videoURL {
		tmp, err := h.download(ctx, videoURL)
		if err != nil {
			return "", err
		}
		defer func() { _ = os.Remove(tmp) }()
		localPath = tmp
	}
	key := h.Store.SegmentKey(projectID, segmentID)
	url, err := h.Store.Upload(ctx, localPath, key, "video/mp4")
	if err != nil {
		return "", fmt.Errorf("upload segment asset: %w", err)
	}
	return url, nil
}

func (h *GenerationHandler) download(ctx context.Context, url string) (string, error) {
	client := h.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	dir := h.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("download asset: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download asset: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("download asset: status %d", resp.StatusCode)
	}
	f, err := os.CreateTemp(dir, "segment-*.mp4")
	if err != nil {
		return "", fmt.Errorf("download asset: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("download asset: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("download asset: %w", err)
	}
	return filepath.Clean(f.Name()), nil
}

// advanceRenderJob increments progress and, on crossing the threshold,
// enqueues the single composition task.
func (h *GenerationHandler) advanceRenderJob(ctx context.Context, lg *slog.Logger, renderJobID string) {
	progress, err := h.RenderJobs.IncrementProgress(ctx, renderJobID)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			lg.Warn("progress already at total, not incrementing")
		} else {
			lg.Error("progress increment failed", slog.Any("error", err))
		}
		return
	}
	if err := h.Cache.IncrementRenderJob(ctx, renderJobID); err != nil {
		lg.Warn("cache progress increment failed", slog.Any("error", err))
	}
	lg.Info("render progress",
		slog.Int("completed", progress.Completed),
		slog.Int("total", progress.Total))

	if !progress.Compositing {
		return
	}
	// This caller crossed the threshold; exactly one composition task per
	// render job is enqueued here.
	job, err := h.RenderJobs.Get(ctx, renderJobID)
	if err != nil {
		lg.Error("render job load for composition failed", slog.Any("error", err))
		return
	}
	if err := h.Queue.EnqueueComposition(ctx, domain.CompositionTaskPayload{
		RenderJobID: renderJobID,
		ProjectID:   job.ProjectID,
		SegmentIDs:  job.SegmentIDs,
	}); err != nil {
		lg.Error("composition enqueue failed", slog.Any("error", err))
		return
	}
	if err := h.Cache.SetRenderJobStatus(ctx, renderJobID, string(domain.RenderJobCompositing)); err != nil {
		lg.Warn("cache status update failed", slog.Any("error", err))
	}
}

// failSegment records a terminal classified failure and acks the task.
func (h *GenerationHandler) failSegment(ctx context.Context, lg *slog.Logger, segmentID, renderJobID string, cause error) error {
	code := videomodel.CodeOf(cause)
	msg := videomodel.MessageOf(cause)
	lg.Error("segment failed",
		slog.String("error_code", string(code)),
		slog.String("error_message", msg))
	observability.TaskFailed("generation", string(code))
	if err := h.Segments.MarkFailed(ctx, segmentID, msg, string(code)); err != nil {
		return fmt.Errorf("op=worker.generation: %w", err)
	}
	h.cacheSegmentStatus(ctx, segmentID, string(domain.SegmentFailed), renderJobID)
	return nil
}

func (h *GenerationHandler) cacheSegmentStatus(ctx context.Context, segmentID, status, renderJobID string) {
	if err := h.Cache.SetSegmentStatus(ctx, segmentID, status, renderJobID); err != nil {
		slog.Warn("segment status cache update failed",
			slog.String("segment_id", segmentID),
			slog.Any("error", err))
	}
}
