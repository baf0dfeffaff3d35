// Package mocks provides testify-based mocks for the domain ports.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/videoforge/internal/domain"
)

// MockProjectRepository mocks domain.ProjectRepository.
type MockProjectRepository struct{ mock.Mock }

func (m *MockProjectRepository) Create(ctx domain.Context, p domain.Project) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *MockProjectRepository) Get(ctx domain.Context, id string) (domain.Project, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Project), args.Error(1)
}

func (m *MockProjectRepository) Delete(ctx domain.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockSegmentRepository mocks domain.SegmentRepository.
type MockSegmentRepository struct{ mock.Mock }

func (m *MockSegmentRepository) Create(ctx domain.Context, s domain.Segment) (string, error) {
	args := m.Called(ctx, s)
	return args.String(0), args.Error(1)
}

func (m *MockSegmentRepository) Get(ctx domain.Context, id string) (domain.Segment, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Segment), args.Error(1)
}

func (m *MockSegmentRepository) ListByProject(ctx domain.Context, projectID string) ([]domain.Segment, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Segment), args.Error(1)
}

func (m *MockSegmentRepository) UpdateContent(ctx domain.Context, id string, prompt *string, params map[string]any) error {
	return m.Called(ctx, id, prompt, params).Error(0)
}

func (m *MockSegmentRepository) MarkGenerating(ctx domain.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSegmentRepository) SetExternalJobID(ctx domain.Context, id, externalJobID string) error {
	return m.Called(ctx, id, externalJobID).Error(0)
}

func (m *MockSegmentRepository) MarkCompleted(ctx domain.Context, id, assetURL string) (bool, error) {
	args := m.Called(ctx, id, assetURL)
	return args.Bool(0), args.Error(1)
}

func (m *MockSegmentRepository) MarkFailed(ctx domain.Context, id, errMsg, errCode string) error {
	return m.Called(ctx, id, errMsg, errCode).Error(0)
}

func (m *MockSegmentRepository) ResetForRetry(ctx domain.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSegmentRepository) Delete(ctx domain.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockRenderJobRepository mocks domain.RenderJobRepository.
type MockRenderJobRepository struct{ mock.Mock }

func (m *MockRenderJobRepository) Create(ctx domain.Context, r domain.RenderJob) (string, error) {
	args := m.Called(ctx, r)
	return args.String(0), args.Error(1)
}

func (m *MockRenderJobRepository) Get(ctx domain.Context, id string) (domain.RenderJob, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.RenderJob), args.Error(1)
}

func (m *MockRenderJobRepository) LastCompleted(ctx domain.Context, projectID string) (domain.RenderJob, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).(domain.RenderJob), args.Error(1)
}

func (m *MockRenderJobRepository) MarkProcessing(ctx domain.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRenderJobRepository) IncrementProgress(ctx domain.Context, id string) (domain.Progress, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Progress), args.Error(1)
}

func (m *MockRenderJobRepository) MarkCompositing(ctx domain.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRenderJobRepository) MarkCompleted(ctx domain.Context, id, finalAssetURL string) (bool, error) {
	args := m.Called(ctx, id, finalAssetURL)
	return args.Bool(0), args.Error(1)
}

func (m *MockRenderJobRepository) MarkFailed(ctx domain.Context, id, errMsg string) error {
	return m.Called(ctx, id, errMsg).Error(0)
}

// MockQueue mocks domain.Queue.
type MockQueue struct{ mock.Mock }

func (m *MockQueue) EnqueueGeneration(ctx domain.Context, p domain.GenerationTaskPayload) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockQueue) EnqueueComposition(ctx domain.Context, p domain.CompositionTaskPayload) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockQueue) PublishSegmentCompleted(ctx domain.Context, e domain.SegmentCompletedEvent) error {
	return m.Called(ctx, e).Error(0)
}

// MockProgressCache mocks domain.ProgressCache.
type MockProgressCache struct{ mock.Mock }

func (m *MockProgressCache) InitRenderJob(ctx domain.Context, renderJobID string, total int, status string) error {
	return m.Called(ctx, renderJobID, total, status).Error(0)
}

func (m *MockProgressCache) IncrementRenderJob(ctx domain.Context, renderJobID string) error {
	return m.Called(ctx, renderJobID).Error(0)
}

func (m *MockProgressCache) SetRenderJobStatus(ctx domain.Context, renderJobID, status string) error {
	return m.Called(ctx, renderJobID, status).Error(0)
}

func (m *MockProgressCache) GetRenderJob(ctx domain.Context, renderJobID string) (domain.RenderProgress, error) {
	args := m.Called(ctx, renderJobID)
	return args.Get(0).(domain.RenderProgress), args.Error(1)
}

func (m *MockProgressCache) SetSegmentStatus(ctx domain.Context, segmentID, status, renderJobID string) error {
	return m.Called(ctx, segmentID, status, renderJobID).Error(0)
}

// MockObjectStore mocks domain.ObjectStore.
type MockObjectStore struct{ mock.Mock }

func (m *MockObjectStore) Upload(ctx domain.Context, localPath, key, contentType string) (string, error) {
	args := m.Called(ctx, localPath, key, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) Download(ctx domain.Context, key, localPath string) error {
	return m.Called(ctx, key, localPath).Error(0)
}

func (m *MockObjectStore) Exists(ctx domain.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStore) SegmentKey(projectID, segmentID string) string {
	return m.Called(projectID, segmentID).String(0)
}

func (m *MockObjectStore) FinalKey(projectID, renderJobID string) string {
	return m.Called(projectID, renderJobID).String(0)
}
