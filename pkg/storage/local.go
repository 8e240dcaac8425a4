package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements Storage using the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local filesystem storage
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// Ensure base path exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{basePath: basePath}, nil
}

// Put stores the content under the given key
func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	filePath, err := s.resolve(key)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create object directory: %w", err)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create object: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(filePath) // Cleanup on error
		return 0, fmt.Errorf("failed to write object: %w", err)
	}

	return size, nil
}

// Download retrieves the full content stored under the given key
func (s *LocalStorage) Download(ctx context.Context, key string) ([]byte, error) {
	filePath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	return data, nil
}

// GetReader returns a reader for the object (for streaming processing)
func (s *LocalStorage) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}

	return f, nil
}

// Delete removes the object stored under the given key
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	filePath, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// resolve maps a storage key to a filesystem path, rejecting traversal
func (s *LocalStorage) resolve(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(key)), nil
}
