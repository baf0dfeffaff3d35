package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/videoforge/internal/adapter/observability"
	"github.com/fairyhunter13/videoforge/internal/config"
	"github.com/fairyhunter13/videoforge/internal/domain"
	"github.com/fairyhunter13/videoforge/internal/usecase"
	"github.com/fairyhunter13/videoforge/internal/videomodel"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Projects   usecase.ProjectService
	Renders    usecase.RenderService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, projects usecase.ProjectService, renders usecase.RenderService, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Projects: projects, Renders: renders, DBCheck: dbCheck, RedisCheck: redisCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if err := getValidator().Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// Wire DTOs

type createProjectRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=200"`
	OwnerID string `json:"owner_id" validate:"omitempty,max=100"`
}

type addSegmentRequest struct {
	OrderIndex  int            `json:"order_index" validate:"gte=0"`
	Prompt      string         `json:"prompt" validate:"required,min=1,max=4000"`
	ModelParams map[string]any `json:"model_params"`
}

type updateSegmentRequest struct {
	Prompt      *string        `json:"prompt" validate:"omitempty,min=1,max=4000"`
	ModelParams map[string]any `json:"model_params"`
}

type segmentResponse struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	OrderIndex    int            `json:"order_index"`
	Prompt        string         `json:"prompt"`
	ModelParams   map[string]any `json:"model_params,omitempty"`
	Status        string         `json:"status"`
	AssetURL      *string        `json:"asset_url,omitempty"`
	ExternalJobID *string        `json:"external_job_id,omitempty"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
	ErrorCode     *string        `json:"error_code,omitempty"`
	ErrorHint     string         `json:"error_hint,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func toSegmentResponse(s domain.Segment) segmentResponse {
	resp := segmentResponse{
		ID:            s.ID,
		ProjectID:     s.ProjectID,
		OrderIndex:    s.OrderIndex,
		Prompt:        s.Prompt,
		ModelParams:   s.ModelParams,
		Status:        string(s.Status),
		AssetURL:      s.AssetURL,
		ExternalJobID: s.ExternalJobID,
		ErrorMessage:  s.ErrorMessage,
		ErrorCode:     s.ErrorCode,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.ErrorCode != nil {
		if hint, ok := videomodel.Hints[videomodel.ErrorCode(*s.ErrorCode)]; ok {
			resp.ErrorHint = hint.Advice
		}
	}
	return resp
}

type renderJobResponse struct {
	ID                string    `json:"id"`
	ProjectID         string    `json:"project_id"`
	Status            string    `json:"status"`
	SegmentsTotal     int       `json:"segments_total"`
	SegmentsCompleted int       `json:"segments_completed"`
	SegmentIDs        []string  `json:"segment_ids"`
	FinalAssetURL     *string   `json:"final_asset_url,omitempty"`
	ErrorMessage      *string   `json:"error_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toRenderJobResponse(j domain.RenderJob) renderJobResponse {
	return renderJobResponse{
		ID:                j.ID,
		ProjectID:         j.ProjectID,
		Status:            string(j.Status),
		SegmentsTotal:     j.SegmentsTotal,
		SegmentsCompleted: j.SegmentsCompleted,
		SegmentIDs:        j.SegmentIDs,
		FinalAssetURL:     j.FinalAssetURL,
		ErrorMessage:      j.ErrorMessage,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
	}
}

// Handlers

// CreateProjectHandler handles POST /v1/projects.
func (s *Server) CreateProjectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createProjectRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		p, err := s.Projects.CreateProject(r.Context(), req.OwnerID, req.Name)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

// GetProjectHandler handles GET /v1/projects/{id}.
func (s *Server) GetProjectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.Projects.GetProject(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// DeleteProjectHandler handles DELETE /v1/projects/{id}.
func (s *Server) DeleteProjectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Projects.DeleteProject(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListSegmentsHandler handles GET /v1/projects/{id}/segments.
func (s *Server) ListSegmentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		segments, err := s.Projects.ListSegments(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]segmentResponse, len(segments))
		for i, seg := range segments {
			out[i] = toSegmentResponse(seg)
		}
		writeJSON(w, http.StatusOK, map[string]any{"segments": out})
	}
}

// AddSegmentHandler handles POST /v1/projects/{id}/segments.
func (s *Server) AddSegmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addSegmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		seg, err := s.Projects.AddSegment(r.Context(), chi.URLParam(r, "id"), req.OrderIndex, req.Prompt, req.ModelParams)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toSegmentResponse(seg))
	}
}

// GetSegmentHandler handles GET /v1/segments/{id}.
func (s *Server) GetSegmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seg, err := s.Projects.GetSegment(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toSegmentResponse(seg))
	}
}

// UpdateSegmentHandler handles PATCH /v1/segments/{id}. Editing prompt or
// params resets the segment to PENDING and clears its asset.
func (s *Server) UpdateSegmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateSegmentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		seg, err := s.Projects.UpdateSegment(r.Context(), chi.URLParam(r, "id"), req.Prompt, req.ModelParams)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toSegmentResponse(seg))
	}
}

// RetrySegmentHandler handles POST /v1/segments/{id}/retry.
func (s *Server) RetrySegmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seg, err := s.Projects.RetrySegment(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toSegmentResponse(seg))
	}
}

// DeleteSegmentHandler handles DELETE /v1/segments/{id}.
func (s *Server) DeleteSegmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Projects.DeleteSegment(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CreateRenderHandler handles POST /v1/projects/{id}/render.
func (s *Server) CreateRenderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := s.Renders.CreateRender(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		observability.ObserveRegenerationSize(job.SegmentsTotal)
		writeJSON(w, http.StatusAccepted, toRenderJobResponse(job))
	}
}

// GetRenderHandler handles GET /v1/renders/{id}.
func (s *Server) GetRenderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := s.Renders.GetRender(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toRenderJobResponse(job))
	}
}

// GetProgressHandler handles GET /v1/renders/{id}/progress. Served from the
// advisory cache when available; the row is authoritative.
func (s *Server) GetProgressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.Renders.GetProgress(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"segments_total":      p.SegmentsTotal,
			"segments_completed":  p.SegmentsCompleted,
			"status":              p.Status,
			"progress_percentage": p.ProgressPercentage,
		})
	}
}

// ReadyzHandler reports dependency readiness.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		checks := map[string]func(context.Context) error{
			"db":    s.DBCheck,
			"redis": s.RedisCheck,
		}
		failures := map[string]string{}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(ctx); err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}
