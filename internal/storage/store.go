// Package storage persists validated partitions as Parquet objects.
//
// An ObjectStore holds whole objects addressed by slash-separated keys.
// Every Put replaces the object atomically: readers observe either the
// previous object or the new one, never a partial write.
package storage

import (
	"context"
	"fmt"

	"github.com/albapepper/scoracle-lake/internal/config"
)

// ObjectStore is a flat key/value store of immutable objects.
// Get returns an error satisfying errors.Is(err, os.ErrNotExist) for
// missing keys.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Open builds the object store selected by cfg.StorageBackend.
func Open(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.StorageFS:
		return NewFSStore(cfg.StorageRoot)
	case config.StorageS3:
		return NewS3Store(ctx, S3Config{
			Bucket:         cfg.S3Bucket,
			Region:         cfg.AWSRegion,
			Endpoint:       cfg.S3Endpoint,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
