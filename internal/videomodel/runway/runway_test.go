package runway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/videoforge/internal/videomodel"
	"github.com/fairyhunter13/videoforge/internal/videomodel/runway"
)

func TestInitiate_Success(t *testing.T) {
	t.Parallel()
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/generate", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "run_123", "status": "pending"})
	}))
	defer srv.Close()

	a := runway.New("sk-test", runway.WithBaseURL(srv.URL))
	id, err := a.Initiate(context.Background(), "a red panda", map[string]any{
		"duration": 10, "aspect_ratio": "9:16", "resolution": "720p",
	})
	require.NoError(t, err)
	assert.Equal(t, "run_123", id)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, float64(10), gotBody["duration"])
	assert.Equal(t, "9:16", gotBody["aspect_ratio"])
}

func TestInitiate_InvalidParamsAreTerminal(t *testing.T) {
	t.Parallel()
	a := runway.New("sk-test")
	for _, params := range []map[string]any{
		{"duration": 7},
		{"aspect_ratio": "4:3"},
		{"resolution": "480p"},
	} {
		_, err := a.Initiate(context.Background(), "p", params)
		require.Error(t, err)
		assert.Equal(t, videomodel.CodeParameters, videomodel.CodeOf(err))
	}
}

func TestInitiate_UnauthorizedIsTerminal(t *testing.T) {
	t.Parallel()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := runway.New("bad-key", runway.WithBaseURL(srv.URL))
	_, err := a.Initiate(context.Background(), "p", nil)
	require.Error(t, err)
	assert.Equal(t, videomodel.CodeParameters, videomodel.CodeOf(err))
	assert.Equal(t, 1, calls, "terminal errors must not be retried")
}

func TestInitiate_ServerErrorRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "run_retry", "status": "pending"})
	}))
	defer srv.Close()

	a := runway.New("sk-test", runway.WithBaseURL(srv.URL))
	id, err := a.Initiate(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "run_retry", id)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestGetStatus_MapsServiceStates(t *testing.T) {
	t.Parallel()
	for service, want := range map[string]videomodel.Status{
		"running":   videomodel.StatusProcessing,
		"succeeded": videomodel.StatusCompleted,
		"failed":    videomodel.StatusFailed,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/generate/run_1", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "run_1", "status": service})
		}))
		a := runway.New("sk-test", runway.WithBaseURL(srv.URL))
		status, err := a.GetStatus(context.Background(), "run_1")
		require.NoError(t, err)
		assert.Equal(t, want, status)
		srv.Close()
	}
}

func TestGetStatus_TransportErrorMapsToProcessing(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	a := runway.New("sk-test", runway.WithBaseURL(srv.URL))
	status, err := a.GetStatus(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Equal(t, videomodel.StatusProcessing, status)
}

func TestGetResult_Completed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "run_1", "status": "succeeded",
			"output": map[string]any{"url": "https://cdn.example/run_1.mp4"},
		})
	}))
	defer srv.Close()

	a := runway.New("sk-test", runway.WithBaseURL(srv.URL))
	res, err := a.GetResult(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Equal(t, videomodel.StatusCompleted, res.Status)
	assert.Equal(t, "https://cdn.example/run_1.mp4", res.VideoURL)
}

func TestGetResult_CompletedWithoutURLIsOutputFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "run_1", "status": "succeeded"})
	}))
	defer srv.Close()

	a := runway.New("sk-test", runway.WithBaseURL(srv.URL))
	res, err := a.GetResult(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Equal(t, videomodel.StatusFailed, res.Status)
	assert.Equal(t, videomodel.CodeOutput, res.ErrorCode)
}

func TestGetResult_Failed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "run_1", "status": "failed", "error": "nsfw content rejected",
		})
	}))
	defer srv.Close()

	a := runway.New("sk-test", runway.WithBaseURL(srv.URL))
	res, err := a.GetResult(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Equal(t, videomodel.StatusFailed, res.Status)
	assert.Equal(t, "nsfw content rejected", res.ErrorMessage)
	assert.Equal(t, videomodel.CodeGeneration, res.ErrorCode)
}

func TestCancel(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := runway.New("sk-test", runway.WithBaseURL(srv.URL))
	assert.True(t, a.Cancel(context.Background(), "run_1"))
}
