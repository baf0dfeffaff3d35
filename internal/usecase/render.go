// Package usecase contains the application services: the render orchestrator
// and the project/segment CRUD surface the HTTP layer calls into.
package usecase

import (
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/videoforge/internal/domain"
)

// RenderService is the render orchestrator: it diffs the project timeline
// against the last successful render and dispatches only the segments that
// actually need (re)generation.
type RenderService struct {
	Projects   domain.ProjectRepository
	Segments   domain.SegmentRepository
	RenderJobs domain.RenderJobRepository
	Queue      domain.Queue
	Cache      domain.ProgressCache
}

// NewRenderService wires the orchestrator.
func NewRenderService(projects domain.ProjectRepository, segments domain.SegmentRepository, renderJobs domain.RenderJobRepository, queue domain.Queue, cache domain.ProgressCache) RenderService {
	return RenderService{Projects: projects, Segments: segments, RenderJobs: renderJobs, Queue: queue, Cache: cache}
}

// CreateRender creates a render job for the project, computing the
// regeneration set and dispatching generation tasks for it. An empty project
// is a synchronous business error; no row is created.
func (s RenderService) CreateRender(ctx domain.Context, projectID string) (domain.RenderJob, error) {
	tracer := otel.Tracer("usecase.render")
	ctx, span := tracer.Start(ctx, "CreateRender")
	defer span.End()

	if _, err := s.Projects.Get(ctx, projectID); err != nil {
		return domain.RenderJob{}, err
	}
	segments, err := s.Segments.ListByProject(ctx, projectID)
	if err != nil {
		return domain.RenderJob{}, err
	}
	if len(segments) == 0 {
		return domain.RenderJob{}, fmt.Errorf("op=render.create: %w", domain.ErrEmptyProject)
	}

	var lastIDs map[string]bool
	last, err := s.RenderJobs.LastCompleted(ctx, projectID)
	switch {
	case err == nil:
		lastIDs = make(map[string]bool, len(last.SegmentIDs))
		for _, id := range last.SegmentIDs {
			lastIDs[id] = true
		}
	case errors.Is(err, domain.ErrNotFound):
		// First render for this project.
	default:
		return domain.RenderJob{}, err
	}

	regen := regenerationSet(segments, lastIDs)
	allIDs := make([]string, len(segments))
	for i, seg := range segments {
		allIDs[i] = seg.ID
	}

	job := domain.RenderJob{
		ProjectID:     projectID,
		Status:        domain.RenderJobPending,
		SegmentsTotal: len(regen),
		// The snapshot freezes the whole timeline, not just the regeneration
		// set: composition needs every segment in order.
		SegmentIDs: allIDs,
	}
	jobID, err := s.RenderJobs.Create(ctx, job)
	if err != nil {
		return domain.RenderJob{}, err
	}
	job.ID = jobID

	if err := s.Cache.InitRenderJob(ctx, jobID, len(regen), string(domain.RenderJobProcessing)); err != nil {
		slog.Warn("progress cache init failed", slog.String("render_job_id", jobID), slog.Any("error", err))
	}
	if err := s.RenderJobs.MarkProcessing(ctx, jobID); err != nil {
		return domain.RenderJob{}, err
	}
	job.Status = domain.RenderJobProcessing

	if len(regen) == 0 {
		// Every segment is already live: skip generation and compose directly.
		if err := s.RenderJobs.MarkCompositing(ctx, jobID); err != nil {
			return domain.RenderJob{}, err
		}
		job.Status = domain.RenderJobCompositing
		if err := s.Queue.EnqueueComposition(ctx, domain.CompositionTaskPayload{
			RenderJobID: jobID,
			ProjectID:   projectID,
			SegmentIDs:  allIDs,
		}); err != nil {
			return domain.RenderJob{}, err
		}
		slog.Info("render created with empty regeneration set, composing directly",
			slog.String("render_job_id", jobID),
			slog.Int("segments", len(allIDs)))
		return job, nil
	}

	for _, seg := range regen {
		if err := s.Segments.MarkGenerating(ctx, seg.ID); err != nil {
			slog.Error("segment dispatch mark failed",
				slog.String("segment_id", seg.ID), slog.Any("error", err))
			continue
		}
		if err := s.Queue.EnqueueGeneration(ctx, domain.GenerationTaskPayload{
			SegmentID:   seg.ID,
			RenderJobID: jobID,
			Prompt:      seg.Prompt,
			ModelParams: seg.ModelParams,
		}); err != nil {
			// Partial publication leaves the job in PROCESSING below total;
			// no rollback of already-enqueued tasks.
			slog.Error("generation enqueue failed",
				slog.String("segment_id", seg.ID), slog.Any("error", err))
		}
	}
	slog.Info("render created",
		slog.String("render_job_id", jobID),
		slog.String("project_id", projectID),
		slog.Int("segments_total", len(regen)),
		slog.Int("timeline", len(allIDs)))
	return job, nil
}

// regenerationSet picks the segments the render must (re)produce. A live
// COMPLETED segment (asset in place) is reused when it was part of the prior
// completed render's snapshot — or, when no completed render exists yet,
// unconditionally: a segment whose asset survived a failed composition does
// not need another trip through the adapter. Content edits reset status to
// PENDING, so status plus asset_url act as the content fingerprint.
func regenerationSet(segments []domain.Segment, lastIDs map[string]bool) []domain.Segment {
	var regen []domain.Segment
	for _, seg := range segments {
		live := seg.Status == domain.SegmentCompleted && seg.AssetURL != nil && *seg.AssetURL != ""
		carriedOver := lastIDs == nil || lastIDs[seg.ID]
		if !carriedOver || !live {
			regen = append(regen, seg)
		}
	}
	return regen
}

// GetRender loads a render job row.
func (s RenderService) GetRender(ctx domain.Context, renderJobID string) (domain.RenderJob, error) {
	return s.RenderJobs.Get(ctx, renderJobID)
}

// GetProgress prefers the advisory cache and falls back to the state store
// when the cache record is missing or the cache errors.
func (s RenderService) GetProgress(ctx domain.Context, renderJobID string) (domain.RenderProgress, error) {
	p, err := s.Cache.GetRenderJob(ctx, renderJobID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("progress cache read failed, falling back to state store",
			slog.String("render_job_id", renderJobID), slog.Any("error", err))
	}
	job, err := s.RenderJobs.Get(ctx, renderJobID)
	if err != nil {
		return domain.RenderProgress{}, err
	}
	pct := float64(100)
	if job.SegmentsTotal > 0 {
		pct = float64(job.SegmentsCompleted) / float64(job.SegmentsTotal) * 100
	}
	return domain.RenderProgress{
		SegmentsTotal:      job.SegmentsTotal,
		SegmentsCompleted:  job.SegmentsCompleted,
		Status:             string(job.Status),
		ProgressPercentage: pct,
	}, nil
}
