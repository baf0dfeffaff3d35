package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/videoforge/internal/domain"
)

// ProjectRepo persists projects using a minimal pgx pool.
type ProjectRepo struct{ Pool PgxPool }

// NewProjectRepo constructs a ProjectRepo with the given pool.
func NewProjectRepo(p PgxPool) *ProjectRepo { return &ProjectRepo{Pool: p} }

// Create inserts a new project and returns its id.
func (r *ProjectRepo) Create(ctx domain.Context, p domain.Project) (string, error) {
	tracer := otel.Tracer("repo.projects")
	ctx, span := tracer.Start(ctx, "projects.Create")
	defer span.End()
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO projects (id, owner_id, name, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`
	_, err := r.Pool.Exec(ctx, q, id, p.OwnerID, p.Name, now, now)
	if err != nil {
		return "", fmt.Errorf("op=project.create: %w", err)
	}
	return id, nil
}

// Get loads a project by id.
func (r *ProjectRepo) Get(ctx domain.Context, id string) (domain.Project, error) {
	tracer := otel.Tracer("repo.projects")
	ctx, span := tracer.Start(ctx, "projects.Get")
	defer span.End()
	q := `SELECT id, owner_id, name, created_at, updated_at FROM projects WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var p domain.Project
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Project{}, fmt.Errorf("op=project.get: %w", domain.ErrNotFound)
		}
		return domain.Project{}, fmt.Errorf("op=project.get: %w", err)
	}
	return p, nil
}

// Delete removes a project. Segments and render jobs cascade.
func (r *ProjectRepo) Delete(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.projects")
	ctx, span := tracer.Start(ctx, "projects.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM projects WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=project.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=project.delete: %w", domain.ErrNotFound)
	}
	return nil
}
