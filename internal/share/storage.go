package share

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a blob held by a Storage backend.
type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Storage defines the interface for blob storage.
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) (int64, error)
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]ObjectInfo, error)
}
