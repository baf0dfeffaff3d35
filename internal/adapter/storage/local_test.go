package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/videoforge/internal/adapter/storage"
	"github.com/fairyhunter13/videoforge/internal/domain"
)

func TestLocalStore_UploadDownloadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("fake mp4 bytes"), 0o644))

	key := store.SegmentKey("pr-1", "s-1")
	url, err := store.Upload(ctx, src, key, "video/mp4")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))

	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	dst := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, store.Download(ctx, key, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "fake mp4 bytes", string(data))
}

func TestLocalStore_UploadOverwritesDeterministicKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("v1"), 0o644))
	key := store.SegmentKey("pr-1", "s-1")
	_, err = store.Upload(ctx, src, key, "video/mp4")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(src, []byte("v2"), 0o644))
	_, err = store.Upload(ctx, src, key, "video/mp4")
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, store.Download(ctx, key, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestLocalStore_DownloadMissingIsNotFound(t *testing.T) {
	t.Parallel()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	err = store.Download(context.Background(), "segments/pr-1/missing.mp4", filepath.Join(t.TempDir(), "x.mp4"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLocalStore_ExistsMissing(t *testing.T) {
	t.Parallel()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ok, err := store.Exists(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeterministicKeys(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "segments/pr-1/s-1.mp4", storage.SegmentKeyFor("pr-1", "s-1"))
	assert.Equal(t, "renders/pr-1/rj-1.mp4", storage.FinalKeyFor("pr-1", "rj-1"))
}
