package usecase

import (
	"fmt"

	"github.com/fairyhunter13/videoforge/internal/domain"
	"github.com/fairyhunter13/videoforge/pkg/textx"
)

// ProjectService handles the project/segment CRUD surface.
type ProjectService struct {
	Projects domain.ProjectRepository
	Segments domain.SegmentRepository
}

// NewProjectService wires the CRUD service.
func NewProjectService(projects domain.ProjectRepository, segments domain.SegmentRepository) ProjectService {
	return ProjectService{Projects: projects, Segments: segments}
}

// CreateProject validates and inserts a project.
func (s ProjectService) CreateProject(ctx domain.Context, ownerID, name string) (domain.Project, error) {
	name = textx.Sanitize(name)
	if name == "" {
		return domain.Project{}, fmt.Errorf("op=project.create: name required: %w", domain.ErrInvalidArgument)
	}
	p := domain.Project{OwnerID: ownerID, Name: name}
	id, err := s.Projects.Create(ctx, p)
	if err != nil {
		return domain.Project{}, err
	}
	p.ID = id
	return p, nil
}

// GetProject loads a project row.
func (s ProjectService) GetProject(ctx domain.Context, id string) (domain.Project, error) {
	return s.Projects.Get(ctx, id)
}

// DeleteProject removes a project; segments and render jobs cascade.
func (s ProjectService) DeleteProject(ctx domain.Context, id string) error {
	return s.Projects.Delete(ctx, id)
}

// ListSegments returns the project timeline in order.
func (s ProjectService) ListSegments(ctx domain.Context, projectID string) ([]domain.Segment, error) {
	if _, err := s.Projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.Segments.ListByProject(ctx, projectID)
}

// AddSegment appends a segment to the project timeline.
func (s ProjectService) AddSegment(ctx domain.Context, projectID string, orderIndex int, prompt string, params map[string]any) (domain.Segment, error) {
	prompt = textx.Sanitize(prompt)
	if prompt == "" {
		return domain.Segment{}, fmt.Errorf("op=segment.add: prompt required: %w", domain.ErrInvalidArgument)
	}
	if _, err := s.Projects.Get(ctx, projectID); err != nil {
		return domain.Segment{}, err
	}
	seg := domain.Segment{
		ProjectID:   projectID,
		OrderIndex:  orderIndex,
		Prompt:      prompt,
		ModelParams: params,
		Status:      domain.SegmentPending,
	}
	id, err := s.Segments.Create(ctx, seg)
	if err != nil {
		return domain.Segment{}, err
	}
	seg.ID = id
	return seg, nil
}

// GetSegment loads one segment row.
func (s ProjectService) GetSegment(ctx domain.Context, id string) (domain.Segment, error) {
	return s.Segments.Get(ctx, id)
}

// UpdateSegment edits prompt and/or params. Any content edit atomically
// resets the segment to PENDING with a null asset URL, which is what makes
// the next render's diff pick it up.
func (s ProjectService) UpdateSegment(ctx domain.Context, id string, prompt *string, params map[string]any) (domain.Segment, error) {
	if prompt == nil && params == nil {
		return domain.Segment{}, fmt.Errorf("op=segment.update: nothing to update: %w", domain.ErrInvalidArgument)
	}
	if prompt != nil {
		clean := textx.Sanitize(*prompt)
		if clean == "" {
			return domain.Segment{}, fmt.Errorf("op=segment.update: prompt cannot be empty: %w", domain.ErrInvalidArgument)
		}
		prompt = &clean
	}
	if err := s.Segments.UpdateContent(ctx, id, prompt, params); err != nil {
		return domain.Segment{}, err
	}
	return s.Segments.Get(ctx, id)
}

// RetrySegment flips a FAILED segment back to PENDING so the next render
// includes it in the regeneration set. Non-failed segments conflict.
func (s ProjectService) RetrySegment(ctx domain.Context, id string) (domain.Segment, error) {
	if err := s.Segments.ResetForRetry(ctx, id); err != nil {
		return domain.Segment{}, err
	}
	return s.Segments.Get(ctx, id)
}

// DeleteSegment removes a segment from the timeline.
func (s ProjectService) DeleteSegment(ctx domain.Context, id string) error {
	return s.Segments.Delete(ctx, id)
}
