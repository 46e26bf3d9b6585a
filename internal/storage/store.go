package storage

import (
	"context"
	"io"
	"time"

	"TrainAI/config"

	"github.com/go-faster/errors"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectExists   = errors.New("object already exists")
)

// PutOptions describes upload options for object storage.
type PutOptions struct {
	ContentType string
	// Overwrite allows replacing an existing object. Without it PutObject
	// fails with ErrObjectExists.
	Overwrite bool
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Store abstracts object storage operations. Implementations are bound to one bucket.
type Store interface {
	PutObject(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	RemoveObjects(ctx context.Context, keys []string) error
	PublicURL(ctx context.Context, key string) (string, error)
}

// Open builds the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(cfg.PublicBaseURL), nil
	case "minio", "":
		return InitMinio(ctx, cfg)
	default:
		return nil, errors.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
