package videomodel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/videoforge/internal/videomodel"
)

type nopAdapter struct{ name string }

func (a nopAdapter) Initiate(context.Context, string, map[string]any) (string, error) {
	return "job-1", nil
}
func (a nopAdapter) GetStatus(context.Context, string) (videomodel.Status, error) {
	return videomodel.StatusCompleted, nil
}
func (a nopAdapter) GetResult(context.Context, string) (videomodel.Result, error) {
	return videomodel.Result{Status: videomodel.StatusCompleted}, nil
}
func (a nopAdapter) Cancel(context.Context, string) bool { return true }
func (a nopAdapter) Name() string                        { return a.name }

func TestRegistry_UnknownModelIsWorkflowError(t *testing.T) {
	t.Parallel()
	reg := videomodel.NewRegistry()
	_, err := reg.New("does-not-exist")
	require.Error(t, err)
	assert.Equal(t, videomodel.CodeWorkflow, videomodel.CodeOf(err))
	assert.False(t, videomodel.Retryable(err))
}

func TestRegistry_MissingAPIKeyIsParametersError(t *testing.T) {
	reg := videomodel.NewRegistry()
	reg.Register("paid", "VIDEOFORGE_TEST_MISSING_KEY", func(videomodel.Credentials) (videomodel.Adapter, error) {
		return nopAdapter{name: "paid"}, nil
	})
	t.Setenv("VIDEOFORGE_TEST_MISSING_KEY", "")
	_, err := reg.New("paid")
	require.Error(t, err)
	assert.Equal(t, videomodel.CodeParameters, videomodel.CodeOf(err))
}

func TestRegistry_ResolvesCredentialsFromEnv(t *testing.T) {
	reg := videomodel.NewRegistry()
	var got videomodel.Credentials
	reg.Register("paid", "VIDEOFORGE_TEST_KEY", func(creds videomodel.Credentials) (videomodel.Adapter, error) {
		got = creds
		return nopAdapter{name: "paid"}, nil
	})
	t.Setenv("VIDEOFORGE_TEST_KEY", "sk-123")
	adapter, err := reg.New("PAID") // name lookup is case-insensitive
	require.NoError(t, err)
	assert.Equal(t, "paid", adapter.Name())
	assert.Equal(t, "sk-123", got.APIKey)
}

func TestRegistry_EmptyNameFallsBackToDefault(t *testing.T) {
	t.Parallel()
	reg := videomodel.NewRegistry()
	reg.Register(videomodel.DefaultModel, "", func(videomodel.Credentials) (videomodel.Adapter, error) {
		return nopAdapter{name: videomodel.DefaultModel}, nil
	})
	adapter, err := reg.New("")
	require.NoError(t, err)
	assert.Equal(t, videomodel.DefaultModel, adapter.Name())
}

func TestModelFromParams(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "runway", videomodel.ModelFromParams(map[string]any{"model": "runway"}))
	assert.Equal(t, videomodel.DefaultModel, videomodel.ModelFromParams(nil))
	assert.Equal(t, videomodel.DefaultModel, videomodel.ModelFromParams(map[string]any{"model": ""}))
	assert.Equal(t, videomodel.DefaultModel, videomodel.ModelFromParams(map[string]any{"model": 42}))
}
