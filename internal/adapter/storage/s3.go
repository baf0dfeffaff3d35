// Package storage implements the object store port: S3-compatible blob
// storage for deployments and a filesystem store for local development and
// tests. Keys are deterministic so re-execution overwrites safely.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fairyhunter13/videoforge/internal/domain"
)

// SegmentKeyFor and FinalKeyFor are the deterministic layout shared by all
// store implementations.
func SegmentKeyFor(projectID, segmentID string) string {
	return fmt.Sprintf("segments/%s/%s.mp4", projectID, segmentID)
}

func FinalKeyFor(projectID, renderJobID string) string {
	return fmt.Sprintf("renders/%s/%s.mp4", projectID, renderJobID)
}

// S3Config locates the bucket. Endpoint is set for MinIO and other
// S3-compatible stores; empty means real AWS.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicBaseURL prefixes returned asset URLs; default derives from the
	// endpoint and bucket.
	PublicBaseURL string
}

// S3Store implements domain.ObjectStore on an S3-compatible bucket.
type S3Store struct {
	client  *s3.Client
	cfg     S3Config
	baseURL string
}

// NewS3Store builds the client and verifies nothing; callers decide whether
// to probe the bucket at startup.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("op=storage.s3: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		if cfg.Endpoint != "" {
			baseURL = fmt.Sprintf("%s/%s", cfg.Endpoint, cfg.Bucket)
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &S3Store{client: client, cfg: cfg, baseURL: baseURL}, nil
}

// Upload puts the local file under key and returns its public URL.
func (s *S3Store) Upload(ctx domain.Context, localPath, key, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("op=storage.upload: %w", err)
	}
	defer func() { _ = f.Close() }()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("op=storage.upload: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

// Download fetches the blob at key into localPath.
func (s *S3Store) Download(ctx domain.Context, key, localPath string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("op=storage.download: %w", err)
	}
	defer func() { _ = out.Body.Close() }()
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("op=storage.download: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("op=storage.download: %w", err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(localPath)
		return fmt.Errorf("op=storage.download: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("op=storage.download: %w", err)
	}
	return nil
}

// Exists probes the key with a HEAD request.
func (s *S3Store) Exists(ctx domain.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("op=storage.exists: %w", err)
	}
	return true, nil
}

// SegmentKey implements domain.ObjectStore.
func (s *S3Store) SegmentKey(projectID, segmentID string) string {
	return SegmentKeyFor(projectID, segmentID)
}

// FinalKey implements domain.ObjectStore.
func (s *S3Store) FinalKey(projectID, renderJobID string) string {
	return FinalKeyFor(projectID, renderJobID)
}
