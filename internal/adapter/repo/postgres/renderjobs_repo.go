package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/videoforge/internal/domain"
)

// RenderJobRepo persists render jobs using a minimal pgx pool.
type RenderJobRepo struct{ Pool PgxPool }

// NewRenderJobRepo constructs a RenderJobRepo with the given pool.
func NewRenderJobRepo(p PgxPool) *RenderJobRepo { return &RenderJobRepo{Pool: p} }

const renderJobCols = `id, project_id, status, segment_ids, segments_total,
	segments_completed, output_url, error_message, created_at, updated_at`

// Create inserts a render job with its frozen segment snapshot.
func (r *RenderJobRepo) Create(ctx domain.Context, j domain.RenderJob) (string, error) {
	tracer := otel.Tracer("repo.render_jobs")
	ctx, span := tracer.Start(ctx, "render_jobs.Create")
	defer span.End()
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	ids, err := json.Marshal(j.SegmentIDs)
	if err != nil {
		return "", fmt.Errorf("op=render_job.create: %w", err)
	}
	status := j.Status
	if status == "" {
		status = domain.RenderJobPending
	}
	now := time.Now().UTC()
	q := `INSERT INTO render_jobs (id, project_id, status, segment_ids, segments_total, segments_completed, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := r.Pool.Exec(ctx, q, id, j.ProjectID, status, ids, j.SegmentsTotal, j.SegmentsCompleted, now, now); err != nil {
		return "", fmt.Errorf("op=render_job.create: %w", err)
	}
	return id, nil
}

// Get loads a render job by id.
func (r *RenderJobRepo) Get(ctx domain.Context, id string) (domain.RenderJob, error) {
	tracer := otel.Tracer("repo.render_jobs")
	ctx, span := tracer.Start(ctx, "render_jobs.Get")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+renderJobCols+` FROM render_jobs WHERE id=$1`, id)
	j, err := scanRenderJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.RenderJob{}, fmt.Errorf("op=render_job.get: %w", domain.ErrNotFound)
		}
		return domain.RenderJob{}, fmt.Errorf("op=render_job.get: %w", err)
	}
	return j, nil
}

// LastCompleted returns the most recent COMPLETED render job for the project.
// The orchestrator diffs new renders against its segment snapshot.
func (r *RenderJobRepo) LastCompleted(ctx domain.Context, projectID string) (domain.RenderJob, error) {
	tracer := otel.Tracer("repo.render_jobs")
	ctx, span := tracer.Start(ctx, "render_jobs.LastCompleted")
	defer span.End()
	q := `SELECT ` + renderJobCols + ` FROM render_jobs
		WHERE project_id=$1 AND status='completed' ORDER BY created_at DESC LIMIT 1`
	row := r.Pool.QueryRow(ctx, q, projectID)
	j, err := scanRenderJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.RenderJob{}, fmt.Errorf("op=render_job.last_completed: %w", domain.ErrNotFound)
		}
		return domain.RenderJob{}, fmt.Errorf("op=render_job.last_completed: %w", err)
	}
	return j, nil
}

// MarkProcessing flips PENDING to PROCESSING.
func (r *RenderJobRepo) MarkProcessing(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.render_jobs")
	ctx, span := tracer.Start(ctx, "render_jobs.MarkProcessing")
	defer span.End()
	q := `UPDATE render_jobs SET status='processing', updated_at=$2 WHERE id=$1 AND status='pending'`
	if _, err := r.Pool.Exec(ctx, q, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=render_job.mark_processing: %w", err)
	}
	return nil
}

// IncrementProgress bumps segments_completed inside a transaction and, when
// the count reaches segments_total, flips the job to COMPOSITING. The guarded
// second UPDATE means exactly one concurrent caller sees Compositing=true,
// so the composition task is enqueued once.
func (r *RenderJobRepo) IncrementProgress(ctx domain.Context, id string) (domain.Progress, error) {
	tracer := otel.Tracer("repo.render_jobs")
	ctx, span := tracer.Start(ctx, "render_jobs.IncrementProgress")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Progress{}, fmt.Errorf("op=render_job.increment: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var p domain.Progress
	q := `UPDATE render_jobs SET segments_completed = segments_completed + 1, updated_at=$2
		WHERE id=$1 AND segments_completed < segments_total
		RETURNING segments_completed, segments_total`
	if err := tx.QueryRow(ctx, q, id, time.Now().UTC()).Scan(&p.Completed, &p.Total); err != nil {
		if err == pgx.ErrNoRows {
			// Already at total (redelivery after the threshold) or unknown id.
			return domain.Progress{}, fmt.Errorf("op=render_job.increment: %w", domain.ErrConflict)
		}
		return domain.Progress{}, fmt.Errorf("op=render_job.increment: %w", err)
	}

	if p.Completed >= p.Total {
		tag, err := tx.Exec(ctx, `UPDATE render_jobs SET status='compositing', updated_at=$2 WHERE id=$1 AND status='processing'`, id, time.Now().UTC())
		if err != nil {
			return domain.Progress{}, fmt.Errorf("op=render_job.increment: %w", err)
		}
		p.Compositing = tag.RowsAffected() == 1
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Progress{}, fmt.Errorf("op=render_job.increment: %w", err)
	}
	return p, nil
}

// MarkCompositing flips PROCESSING to COMPOSITING directly, used when the
// regeneration set is empty and there is no progress to count.
func (r *RenderJobRepo) MarkCompositing(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.render_jobs")
	ctx, span := tracer.Start(ctx, "render_jobs.MarkCompositing")
	defer span.End()
	q := `UPDATE render_jobs SET status='compositing', updated_at=$2 WHERE id=$1 AND status IN ('pending','processing')`
	tag, err := r.Pool.Exec(ctx, q, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=render_job.mark_compositing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=render_job.mark_compositing: %w", domain.ErrConflict)
	}
	return nil
}

// MarkCompleted conditionally finishes the job. The status guard makes
// redelivered composition tasks no-ops.
func (r *RenderJobRepo) MarkCompleted(ctx domain.Context, id, finalAssetURL string) (bool, error) {
	tracer := otel.Tracer("repo.render_jobs")
	ctx, span := tracer.Start(ctx, "render_jobs.MarkCompleted")
	defer span.End()
	q := `UPDATE render_jobs SET status='completed', output_url=$2, error_message=NULL, updated_at=$3
		WHERE id=$1 AND status NOT IN ('completed','failed')`
	tag, err := r.Pool.Exec(ctx, q, id, finalAssetURL, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("op=render_job.mark_completed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed records a terminal failure.
func (r *RenderJobRepo) MarkFailed(ctx domain.Context, id, errMsg string) error {
	tracer := otel.Tracer("repo.render_jobs")
	ctx, span := tracer.Start(ctx, "render_jobs.MarkFailed")
	defer span.End()
	q := `UPDATE render_jobs SET status='failed', error_message=$2, updated_at=$3
		WHERE id=$1 AND status NOT IN ('completed','failed')`
	if _, err := r.Pool.Exec(ctx, q, id, errMsg, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=render_job.mark_failed: %w", err)
	}
	return nil
}

func scanRenderJob(row pgx.Row) (domain.RenderJob, error) {
	var j domain.RenderJob
	var ids []byte
	if err := row.Scan(&j.ID, &j.ProjectID, &j.Status, &ids, &j.SegmentsTotal,
		&j.SegmentsCompleted, &j.FinalAssetURL, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return domain.RenderJob{}, err
	}
	if len(ids) > 0 {
		if err := json.Unmarshal(ids, &j.SegmentIDs); err != nil {
			return domain.RenderJob{}, err
		}
	}
	return j, nil
}
