package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/videoforge/internal/adapter/observability"
	"github.com/fairyhunter13/videoforge/internal/compose"
	"github.com/fairyhunter13/videoforge/internal/domain"
)

// CompositionHandler turns a frozen list of segment ids into one final blob
// via ffmpeg concat-copy. Composition failure is terminal for the render job:
// it is cheap to re-request and failures almost always indicate a data-shape
// problem that retrying will not fix.
type CompositionHandler struct {
	Segments   domain.SegmentRepository
	RenderJobs domain.RenderJobRepository
	Cache      domain.ProgressCache
	Store      domain.ObjectStore
	Concat     compose.Concatenator
	// TempDir receives per-task scratch files; default os.TempDir().
	TempDir string
}

// Handle implements the consumer Handler contract.
func (h *CompositionHandler) Handle(ctx context.Context, value []byte) error {
	tracer := otel.Tracer("worker.composition")
	ctx, span := tracer.Start(ctx, "HandleComposition")
	defer span.End()

	var payload domain.CompositionTaskPayload
	if err := json.Unmarshal(value, &payload); err != nil {
		slog.Error("malformed composition payload, dropping", slog.Any("error", err))
		return nil
	}
	lg := slog.With(
		slog.String("render_job_id", payload.RenderJobID),
		slog.String("project_id", payload.ProjectID))

	job, err := h.RenderJobs.Get(ctx, payload.RenderJobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			lg.Warn("render job no longer exists, dropping task")
			return nil
		}
		return fmt.Errorf("op=worker.composition: %w", err)
	}
	if job.Status.Terminal() {
		lg.Info("render job already terminal, acking duplicate",
			slog.String("status", string(job.Status)))
		return nil
	}

	if err := h.RenderJobs.MarkCompositing(ctx, payload.RenderJobID); err != nil && !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("op=worker.composition: %w", err)
	}
	h.cacheStatus(ctx, payload.RenderJobID, string(domain.RenderJobCompositing))

	tmpDir, err := os.MkdirTemp(h.TempDir, "composition-")
	if err != nil {
		return fmt.Errorf("op=worker.composition: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	inputs, err := h.gatherSegments(ctx, lg, payload, tmpDir)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return h.failRenderJob(ctx, lg, payload.RenderJobID, "no segment assets available for composition")
	}

	output := filepath.Join(tmpDir, "final.mp4")
	if err := h.Concat.Concat(ctx, inputs, output); err != nil {
		return h.failRenderJob(ctx, lg, payload.RenderJobID, err.Error())
	}

	key := h.Store.FinalKey(payload.ProjectID, payload.RenderJobID)
	url, err := h.Store.Upload(ctx, output, key, "video/mp4")
	if err != nil {
		// Upload failure is infrastructure: redeliver and re-compose.
		return fmt.Errorf("op=worker.composition: upload final asset: %w", err)
	}

	changed, err := h.RenderJobs.MarkCompleted(ctx, payload.RenderJobID, url)
	if err != nil {
		return fmt.Errorf("op=worker.composition: %w", err)
	}
	if !changed {
		lg.Info("render job completion raced, acking")
		return nil
	}
	h.cacheStatus(ctx, payload.RenderJobID, string(domain.RenderJobCompleted))
	observability.TaskCompleted("composition")
	lg.Info("render job completed",
		slog.String("final_asset_url", url),
		slog.Int("segments", len(inputs)))
	return nil
}

// gatherSegments downloads the segment blobs in timeline order. A segment
// without a live asset is skipped with a warning: best-effort concatenation
// still produces something for the user.
func (h *CompositionHandler) gatherSegments(ctx context.Context, lg *slog.Logger, payload domain.CompositionTaskPayload, tmpDir string) ([]string, error) {
	inputs := make([]string, 0, len(payload.SegmentIDs))
	for i, segID := range payload.SegmentIDs {
		seg, err := h.Segments.Get(ctx, segID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				lg.Warn("segment missing, skipping", slog.String("segment_id", segID))
				continue
			}
			return nil, fmt.Errorf("op=worker.composition: %w", err)
		}
		if seg.AssetURL == nil || *seg.AssetURL == "" {
			lg.Warn("segment has no asset, skipping", slog.String("segment_id", segID))
			continue
		}
		local := filepath.Join(tmpDir, fmt.Sprintf("%03d-%s.mp4", i, segID))
		key := h.Store.SegmentKey(payload.ProjectID, segID)
		if err := h.Store.Download(ctx, key, local); err != nil {
			lg.Warn("segment blob download failed, skipping",
				slog.String("segment_id", segID),
				slog.Any("error", err))
			continue
		}
		inputs = append(inputs, local)
	}
	return inputs, nil
}

// failRenderJob records the terminal failure and acks.
func (h *CompositionHandler) failRenderJob(ctx context.Context, lg *slog.Logger, renderJobID, msg string) error {
	lg.Error("composition failed", slog.String("error_message", msg))
	observability.TaskFailed("composition", "COMPOSITION")
	if err := h.RenderJobs.MarkFailed(ctx, renderJobID, msg); err != nil {
		return fmt.Errorf("op=worker.composition: %w", err)
	}
	h.cacheStatus(ctx, renderJobID, string(domain.RenderJobFailed))
	return nil
}

func (h *CompositionHandler) cacheStatus(ctx context.Context, renderJobID, status string) {
	if err := h.Cache.SetRenderJobStatus(ctx, renderJobID, status); err != nil {
		slog.Warn("render job status cache update failed",
			slog.String("render_job_id", renderJobID),
			slog.Any("error", err))
	}
}
