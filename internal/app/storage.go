package app

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/videoforge/internal/adapter/storage"
	"github.com/fairyhunter13/videoforge/internal/config"
	"github.com/fairyhunter13/videoforge/internal/domain"
)

// BuildObjectStore selects the object store backend from configuration.
func BuildObjectStore(ctx context.Context, cfg config.Config) (domain.ObjectStore, error) {
	switch cfg.StorageBackend {
	case "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
	case "local":
		return storage.NewLocalStore(cfg.StorageLocalDir)
	default:
		return nil, fmt.Errorf("op=app.storage: unknown backend %q", cfg.StorageBackend)
	}
}
