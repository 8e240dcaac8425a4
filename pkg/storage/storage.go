// Package storage provides object storage for uploaded documents with local and S3 implementations.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for document storage operations.
// The extraction pipeline only ever reads by storage key; writes happen
// in the upload-intake path.
type Storage interface {
	// Put stores the content under the given key, overwriting any existing object
	Put(ctx context.Context, key string, r io.Reader) (int64, error)

	// Download retrieves the full content stored under the given key
	Download(ctx context.Context, key string) ([]byte, error)

	// GetReader returns a reader for the object (for streaming processing)
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object stored under the given key
	Delete(ctx context.Context, key string) error
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// Config holds storage configuration
type Config struct {
	Type StorageType

	// Local storage config
	LocalPath string

	// S3 storage config
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Endpoint        string // For S3-compatible services (MinIO, etc.)
}

// New creates a new Storage implementation based on configuration
func New(cfg *Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeS3:
		return NewS3Storage(cfg)
	case StorageTypeLocal:
		fallthrough
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}
