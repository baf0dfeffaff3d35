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

// SegmentRepo persists timeline segments using a minimal pgx pool.
type SegmentRepo struct{ Pool PgxPool }

// NewSegmentRepo constructs a SegmentRepo with the given pool.
func NewSegmentRepo(p PgxPool) *SegmentRepo { return &SegmentRepo{Pool: p} }

const segmentCols = `id, project_id, order_index, prompt, model_params, status,
	asset_url, external_job_id, error_message, error_code, created_at, updated_at`

// Create inserts a new segment in PENDING state and returns its id.
func (r *SegmentRepo) Create(ctx domain.Context, s domain.Segment) (string, error) {
	tracer := otel.Tracer("repo.segments")
	ctx, span := tracer.Start(ctx, "segments.Create")
	defer span.End()
	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	params, err := marshalParams(s.ModelParams)
	if err != nil {
		return "", fmt.Errorf("op=segment.create: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO segments (id, project_id, order_index, prompt, model_params, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := r.Pool.Exec(ctx, q, id, s.ProjectID, s.OrderIndex, s.Prompt, params, domain.SegmentPending, now, now); err != nil {
		return "", fmt.Errorf("op=segment.create: %w", err)
	}
	return id, nil
}

// Get loads a segment by id.
func (r *SegmentRepo) Get(ctx domain.Context, id string) (domain.Segment, error) {
	tracer := otel.Tracer("repo.segments")
	ctx, span := tracer.Start(ctx, "segments.Get")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+segmentCols+` FROM segments WHERE id=$1`, id)
	s, err := scanSegment(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Segment{}, fmt.Errorf("op=segment.get: %w", domain.ErrNotFound)
		}
		return domain.Segment{}, fmt.Errorf("op=segment.get: %w", err)
	}
	return s, nil
}

// ListByProject returns the project's segments in timeline order.
func (r *SegmentRepo) ListByProject(ctx domain.Context, projectID string) ([]domain.Segment, error) {
	tracer := otel.Tracer("repo.segments")
	ctx, span := tracer.Start(ctx, "segments.ListByProject")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+segmentCols+` FROM segments WHERE project_id=$1 ORDER BY order_index, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("op=segment.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Segment
	for rows.Next() {
		s, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("op=segment.list: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=segment.list: %w", err)
	}
	return out, nil
}

// UpdateContent edits prompt and/or params. Any content edit resets the
// segment to PENDING and clears the asset URL and error fields, so the next
// render regenerates it.
func (r *SegmentRepo) UpdateContent(ctx domain.Context, id string, prompt *string, params map[string]any) error {
	tracer := otel.Tracer("repo.segments")
	ctx, span := tracer.Start(ctx, "segments.UpdateContent")
	defer span.End()
	q := `UPDATE segments SET
		prompt = COALESCE($2, prompt),
		model_params = COALESCE($3, model_params),
		status = 'pending',
		asset_url = NULL,
		external_job_id = NULL,
		error_message = NULL,
		error_code = NULL,
		updated_at = $4
		WHERE id=$1`
	var paramsJSON any
	if params != nil {
		b, err := marshalParams(params)
		if err != nil {
			return fmt.Errorf("op=segment.update_content: %w", err)
		}
		paramsJSON = b
	}
	tag, err := r.Pool.Exec(ctx, q, id, prompt, paramsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=segment.update_content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=segment.update_content: %w", domain.ErrNotFound)
	}
	return nil
}

// MarkGenerating flips the segment to GENERATING.
func (r *SegmentRepo) MarkGenerating(ctx domain.Context, id string) error {
	return r.setStatus(ctx, "segments.MarkGenerating", "op=segment.mark_generating", id, domain.SegmentGenerating)
}

// SetExternalJobID records the external service's job id for the segment.
func (r *SegmentRepo) SetExternalJobID(ctx domain.Context, id, externalJobID string) error {
	tracer := otel.Tracer("repo.segments")
	ctx, span := tracer.Start(ctx, "segments.SetExternalJobID")
	defer span.End()
	q := `UPDATE segments SET external_job_id=$2, updated_at=$3 WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, externalJobID, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=segment.set_external_job: %w", err)
	}
	return nil
}

// MarkCompleted conditionally completes the segment. The status guard makes
// redelivered tasks no-ops: only the first completion changes a row, and only
// that caller should advance render-job progress.
func (r *SegmentRepo) MarkCompleted(ctx domain.Context, id, assetURL string) (bool, error) {
	tracer := otel.Tracer("repo.segments")
	ctx, span := tracer.Start(ctx, "segments.MarkCompleted")
	defer span.End()
	q := `UPDATE segments SET status='completed', asset_url=$2, error_message=NULL, error_code=NULL, updated_at=$3
		WHERE id=$1 AND status IN ('pending','generating')`
	tag, err := r.Pool.Exec(ctx, q, id, assetURL, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("op=segment.mark_completed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed records a terminal failure with its classified code.
func (r *SegmentRepo) MarkFailed(ctx domain.Context, id, errMsg, errCode string) error {
	tracer := otel.Tracer("repo.segments")
	ctx, span := tracer.Start(ctx, "segments.MarkFailed")
	defer span.End()
	q := `UPDATE segments SET status='failed', error_message=$2, error_code=$3, updated_at=$4 WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, errMsg, errCode, time.Now().UTC()); err != nil {
		return fmt.Errorf("op=segment.mark_failed: %w", err)
	}
	return nil
}

// ResetForRetry flips a FAILED segment back to PENDING, clearing error fields
// and the external job id. Non-failed segments are a conflict.
func (r *SegmentRepo) ResetForRetry(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.segments")
	ctx, span := tracer.Start(ctx, "segments.ResetForRetry")
	defer span.End()
	q := `UPDATE segments SET status='pending', error_message=NULL, error_code=NULL, external_job_id=NULL, updated_at=$2
		WHERE id=$1 AND status='failed'`
	tag, err := r.Pool.Exec(ctx, q, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=segment.reset_retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=segment.reset_retry: %w", domain.ErrConflict)
	}
	return nil
}

// Delete removes a segment.
func (r *SegmentRepo) Delete(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.segments")
	ctx, span := tracer.Start(ctx, "segments.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM segments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=segment.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=segment.delete: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *SegmentRepo) setStatus(ctx domain.Context, span, op, id string, status domain.SegmentStatus) error {
	tracer := otel.Tracer("repo.segments")
	ctx, sp := tracer.Start(ctx, span)
	defer sp.End()
	q := `UPDATE segments SET status=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func marshalParams(params map[string]any) ([]byte, error) {
	if params == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(params)
}

func scanSegment(row pgx.Row) (domain.Segment, error) {
	var s domain.Segment
	var params []byte
	if err := row.Scan(&s.ID, &s.ProjectID, &s.OrderIndex, &s.Prompt, &params, &s.Status,
		&s.AssetURL, &s.ExternalJobID, &s.ErrorMessage, &s.ErrorCode, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.Segment{}, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &s.ModelParams); err != nil {
			return domain.Segment{}, err
		}
	}
	return s, nil
}
