package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fairyhunter13/videoforge/internal/domain"
)

// LocalStore implements domain.ObjectStore on a directory tree. Used for
// development and tests; URLs are file:// paths.
type LocalStore struct {
	Root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("op=storage.local: %w", err)
	}
	return &LocalStore{Root: root}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.Root, filepath.FromSlash(key))
}

// Upload copies the local file under the key's path and returns a file:// URL.
func (s *LocalStore) Upload(_ domain.Context, localPath, key, _ string) (string, error) {
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("op=storage.upload: %w", err)
	}
	if err := copyFile(localPath, dst); err != nil {
		return "", fmt.Errorf("op=storage.upload: %w", err)
	}
	return "file://" + dst, nil
}

// Download copies the blob at key to localPath.
func (s *LocalStore) Download(_ domain.Context, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("op=storage.download: %w", err)
	}
	if err := copyFile(s.path(key), localPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("op=storage.download: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("op=storage.download: %w", err)
	}
	return nil
}

// Exists reports whether a blob is stored under key.
func (s *LocalStore) Exists(_ domain.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("op=storage.exists: %w", err)
	}
	return true, nil
}

// SegmentKey implements domain.ObjectStore.
func (s *LocalStore) SegmentKey(projectID, segmentID string) string {
	return SegmentKeyFor(projectID, segmentID)
}

// FinalKey implements domain.ObjectStore.
func (s *LocalStore) FinalKey(projectID, renderJobID string) string {
	return FinalKeyFor(projectID, renderJobID)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
