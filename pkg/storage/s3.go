package storage

import (
	"context"
	"fmt"
	"io"
)

// S3Storage implements Storage using Amazon S3 or S3-compatible services
// TODO: Implement using aws-sdk-go-v2 once the deployment target is settled
type S3Storage struct {
	bucket   string
	region   string
	endpoint string
	// client *s3.Client // Uncomment when implementing
}

// NewS3Storage creates a new S3 storage instance
func NewS3Storage(cfg *Config) (*S3Storage, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if cfg.S3Region == "" {
		return nil, fmt.Errorf("S3 region is required")
	}

	return &S3Storage{
		bucket:   cfg.S3Bucket,
		region:   cfg.S3Region,
		endpoint: cfg.S3Endpoint,
	}, nil
}

// Put stores the content under the given key
func (s *S3Storage) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	return 0, fmt.Errorf("S3 storage not yet implemented")
}

// Download retrieves the full content stored under the given key
func (s *S3Storage) Download(ctx context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("S3 storage not yet implemented")
}

// GetReader returns a reader for the object
func (s *S3Storage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("S3 storage not yet implemented")
}

// Delete removes the object stored under the given key
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	return fmt.Errorf("S3 storage not yet implemented")
}
