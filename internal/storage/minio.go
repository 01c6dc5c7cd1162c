// Package storage provides the S3/MinIO object storage client.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore defines the object operations used by checkpoints and sinks.
type ObjectStore interface {
	// Upload uploads data to the specified bucket and key, overwriting it.
	Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error

	// Download reads the whole object. Returns ErrObjectNotFound if absent.
	Download(ctx context.Context, bucket, key string) ([]byte, error)

	// Exists checks if an object exists.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// EnsureBucket ensures the bucket exists.
	EnsureBucket(ctx context.Context, bucket string) error
}

// Config holds S3/MinIO configuration.
type Config struct {
	// Endpoint is the S3/MinIO endpoint (e.g., "localhost:9000").
	Endpoint string

	// AccessKey is the access key.
	AccessKey string

	// SecretKey is the secret key.
	SecretKey string

	// UseSSL enables SSL for the connection.
	UseSSL bool

	// Region is the S3 region (optional for MinIO).
	Region string
}

// MinIOClient implements ObjectStore using the MinIO SDK.
type MinIOClient struct {
	client *minio.Client
	logger *slog.Logger
}

// NewMinIOClient creates a new MinIO S3 client.
func NewMinIOClient(cfg Config, logger *slog.Logger) (*MinIOClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOClient{
		client: client,
		logger: logger.With("component", "s3-client"),
	}, nil
}

// Upload uploads data to the specified bucket and key.
func (c *MinIOClient) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error {
	info, err := c.client.PutObject(ctx, bucket, key, data, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload object: %w", err)
	}

	c.logger.Debug("object uploaded",
		"bucket", bucket,
		"key", key,
		"size", info.Size,
	)

	return nil
}

// Download reads the whole object into memory.
func (c *MinIOClient) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, c.translate(err, "get object")
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, obj); err != nil {
		return nil, c.translate(err, "read object")
	}

	c.logger.Debug("object downloaded",
		"bucket", bucket,
		"key", key,
		"size", buf.Len(),
	)

	return buf.Bytes(), nil
}

// Exists checks if an object exists.
func (c *MinIOClient) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

// EnsureBucket ensures the bucket exists, creating it if necessary.
func (c *MinIOClient) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}

	if exists {
		return nil
	}

	if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}

	c.logger.Info("bucket created", "bucket", bucket)
	return nil
}

// Ping checks that the bucket is reachable.
func (c *MinIOClient) Ping(ctx context.Context, bucket string) error {
	if _, err := c.client.BucketExists(ctx, bucket); err != nil {
		return fmt.Errorf("ping storage: %w", err)
	}
	return nil
}

func (c *MinIOClient) translate(err error, op string) error {
	if isNotFound(err) {
		return ErrObjectNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

// Ensure MinIOClient implements ObjectStore.
var _ ObjectStore = (*MinIOClient)(nil)
