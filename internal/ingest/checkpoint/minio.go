package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/janovincze/commentsync/internal/storage"
)

// BucketPinger is implemented by object stores that can check reachability.
type BucketPinger interface {
	Ping(ctx context.Context, bucket string) error
}

// MinIOStore keeps checkpoint documents as objects in an S3/MinIO bucket.
type MinIOStore struct {
	objects storage.ObjectStore
	bucket  string
	logger  *slog.Logger
}

// NewMinIOStore creates a store that reads and writes objects in bucket.
func NewMinIOStore(objects storage.ObjectStore, bucket string, logger *slog.Logger) *MinIOStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &MinIOStore{
		objects: objects,
		bucket:  bucket,
		logger:  logger.With("component", "checkpoint-store", "backend", "minio"),
	}
}

// EnsureBucket creates the checkpoint bucket if it does not exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	return s.objects.EnsureBucket(ctx, s.bucket)
}

// Load downloads the object stored under key.
func (s *MinIOStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.objects.Download(ctx, s.bucket, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint %s: %w", key, err)
	}
	return data, nil
}

// Save overwrites the object stored under key.
func (s *MinIOStore) Save(ctx context.Context, key string, data []byte) error {
	err := s.objects.Upload(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), "application/json")
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", key, err)
	}

	s.logger.Debug("checkpoint saved", "bucket", s.bucket, "key", key, "size", len(data))
	return nil
}

// Ping checks that the bucket is reachable.
func (s *MinIOStore) Ping(ctx context.Context) error {
	if p, ok := s.objects.(BucketPinger); ok {
		return p.Ping(ctx, s.bucket)
	}
	return nil
}

// Close is a no-op; the object client holds no connection state.
func (s *MinIOStore) Close() error {
	return nil
}

var _ Store = (*MinIOStore)(nil)
