package storage

import (
	"context"
	"fmt"
	"io"
)

// Backend defines the interface for all storage backends. Callers are the
// HTTP handlers; every operation is a single blocking call that either
// completes or fails. Implementations must be safe for concurrent use.
type Backend interface {
	// Bucket operations
	CreateBucket(ctx context.Context, name string) error
	ListBuckets(ctx context.Context) ([]BucketInfo, error)
	DeleteBucket(ctx context.Context, name string, force bool) error
	BucketExists(ctx context.Context, name string) (bool, error)

	// Object operations
	PutObject(ctx context.Context, bucket, key string, data io.Reader, contentType string, userMeta map[string]string) (*ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error)
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	DeleteObject(ctx context.Context, bucket, key string) error

	// Listing
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)

	// Directory markers (pseudo-directories created explicitly)
	CreateDirectory(ctx context.Context, bucket, dirPath string) error

	// Lifecycle
	Close() error
}

// Config holds storage backend configuration
type Config struct {
	Backend string `mapstructure:"backend"` // filesystem, memory
	Root    string `mapstructure:"root"`
}

// NewBackend creates a new storage backend based on configuration
func NewBackend(config Config) (Backend, error) {
	switch config.Backend {
	case "filesystem", "":
		// Empty string defaults to filesystem
		return NewFilesystemBackend(config)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", config.Backend)
	}
}
