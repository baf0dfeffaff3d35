// Package domain defines the core entities, ports, and error taxonomy of the
// video render pipeline.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrEmptyProject    = errors.New("project has no segments")
	ErrConflict        = errors.New("conflict")
	ErrInternal        = errors.New("internal error")
)

// SegmentStatus is the lifecycle state of one segment.
type SegmentStatus string

const (
	SegmentPending    SegmentStatus = "pending"
	SegmentGenerating SegmentStatus = "generating"
	SegmentCompleted  SegmentStatus = "completed"
	SegmentFailed     SegmentStatus = "failed"
)

// RenderJobStatus is the lifecycle state of one render attempt.
// PENDING -> PROCESSING -> COMPOSITING -> COMPLETED; any non-terminal state
// may transition to FAILED. COMPLETED and FAILED are terminal.
type RenderJobStatus string

const (
	RenderJobPending     RenderJobStatus = "pending"
	RenderJobProcessing  RenderJobStatus = "processing"
	RenderJobCompositing RenderJobStatus = "compositing"
	RenderJobCompleted   RenderJobStatus = "completed"
	RenderJobFailed      RenderJobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s RenderJobStatus) Terminal() bool {
	return s == RenderJobCompleted || s == RenderJobFailed
}

// Project owns an ordered timeline of segments.
type Project struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Segment is one clip in a timeline: a prompt plus model parameters.
// Invariants: COMPLETED implies AssetURL set; FAILED implies ErrorMessage
// set; editing prompt or params resets the segment to PENDING and clears
// AssetURL (enforced at the update boundary).
type Segment struct {
	ID            string
	ProjectID     string
	OrderIndex    int
	Prompt        string
	ModelParams   map[string]any
	Status        SegmentStatus
	AssetURL      *string
	ExternalJobID *string
	ErrorMessage  *string
	ErrorCode     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RenderJob is one attempt to produce a final video for a project.
// SegmentIDs is a frozen, ordered snapshot of the project timeline at
// creation time; SegmentsTotal counts only the segments this job dispatched
// for (re)generation, not the timeline length.
type RenderJob struct {
	ID                string
	ProjectID         string
	Status            RenderJobStatus
	SegmentsTotal     int
	SegmentsCompleted int
	SegmentIDs        []string
	FinalAssetURL     *string
	ErrorMessage      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Progress is the result of a transactional render-job progress increment.
// Compositing is true only for the single caller whose increment crossed
// the completed==total threshold.
type Progress struct {
	Completed   int
	Total       int
	Compositing bool
}

// RenderProgress is the advisory progress record kept in the cache.
type RenderProgress struct {
	SegmentsTotal      int
	SegmentsCompleted  int
	Status             string
	ProgressPercentage float64
}

// Repositories (ports)

type ProjectRepository interface {
	Create(ctx Context, p Project) (string, error)
	Get(ctx Context, id string) (Project, error)
	Delete(ctx Context, id string) error
}

type SegmentRepository interface {
	Create(ctx Context, s Segment) (string, error)
	Get(ctx Context, id string) (Segment, error)
	// ListByProject returns segments ordered by (order_index, id).
	ListByProject(ctx Context, projectID string) ([]Segment, error)
	// UpdateContent edits prompt and/or params and atomically resets the
	// segment to PENDING with a nil asset URL.
	UpdateContent(ctx Context, id string, prompt *string, params map[string]any) error
	MarkGenerating(ctx Context, id string) error
	SetExternalJobID(ctx Context, id, externalJobID string) error
	// MarkCompleted is conditional: it mutates only when the segment is
	// still PENDING or GENERATING, and reports whether a row changed.
	MarkCompleted(ctx Context, id, assetURL string) (bool, error)
	MarkFailed(ctx Context, id, errMsg, errCode string) error
	// ResetForRetry flips FAILED back to PENDING, clearing error fields and
	// the external job id.
	ResetForRetry(ctx Context, id string) error
	Delete(ctx Context, id string) error
}

type RenderJobRepository interface {
	Create(ctx Context, r RenderJob) (string, error)
	Get(ctx Context, id string) (RenderJob, error)
	// LastCompleted returns the most recent COMPLETED render job for the
	// project, or ErrNotFound.
	LastCompleted(ctx Context, projectID string) (RenderJob, error)
	MarkProcessing(ctx Context, id string) error
	// IncrementProgress increments segments_completed in one transaction and,
	// when the increment reaches segments_total, transitions the job to
	// COMPOSITING. Exactly one concurrent caller observes Compositing=true.
	IncrementProgress(ctx Context, id string) (Progress, error)
	MarkCompositing(ctx Context, id string) error
	MarkCompleted(ctx Context, id, finalAssetURL string) (bool, error)
	MarkFailed(ctx Context, id, errMsg string) error
}

// Queue (port) — durable at-least-once task queues plus a fanout event
// stream. Handlers must be idempotent.

type Queue interface {
	EnqueueGeneration(ctx Context, p GenerationTaskPayload) error
	EnqueueComposition(ctx Context, p CompositionTaskPayload) error
	PublishSegmentCompleted(ctx Context, e SegmentCompletedEvent) error
}

// ProgressCache (port) — low-latency advisory counters for UI polling.
// Inconsistency with the state store is acceptable and self-healing.

type ProgressCache interface {
	InitRenderJob(ctx Context, renderJobID string, total int, status string) error
	IncrementRenderJob(ctx Context, renderJobID string) error
	SetRenderJobStatus(ctx Context, renderJobID, status string) error
	GetRenderJob(ctx Context, renderJobID string) (RenderProgress, error)
	SetSegmentStatus(ctx Context, segmentID, status, renderJobID string) error
}

// ObjectStore (port) — durable blob storage keyed by deterministic paths so
// re-execution overwrites safely.

type ObjectStore interface {
	Upload(ctx Context, localPath, key, contentType string) (string, error)
	Download(ctx Context, key, localPath string) error
	Exists(ctx Context, key string) (bool, error)
	SegmentKey(projectID, segmentID string) string
	FinalKey(projectID, renderJobID string) string
}

// Task payloads (wire schema, JSON)

// TaskVersion is the wire version carried by every task payload.
const TaskVersion = 2

type GenerationTaskPayload struct {
	Version     int            `json:"version"`
	SegmentID   string         `json:"segment_id"`
	RenderJobID string         `json:"render_job_id"`
	Prompt      string         `json:"prompt"`
	ModelParams map[string]any `json:"model_params"`
}

type CompositionTaskPayload struct {
	Version     int      `json:"version"`
	RenderJobID string   `json:"render_job_id"`
	ProjectID   string   `json:"project_id"`
	SegmentIDs  []string `json:"segment_ids"`
	Event       string   `json:"event"`
}

// EventComposeVideo tags composition task payloads on the wire.
const EventComposeVideo = "compose_video"

type SegmentCompletedEvent struct {
	SegmentID   string `json:"segment_id"`
	RenderJobID string `json:"render_job_id"`
	Event       string `json:"event"`
}

// EventSegmentCompleted tags segment completion events on the wire.
const EventSegmentCompleted = "segment_completed"

// Context is an alias to context.Context; kept so ports read uniformly.
type Context = context.Context
