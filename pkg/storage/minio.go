package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOConfig holds connection settings for a self-hosted object store.
type MinIOConfig struct {
	Endpoint             string
	AccessKey            string
	SecretKey            string
	Bucket               string
	UseSSL               bool
	PresignExpireMinutes int
}

// MinIO stores videos in a MinIO (or any S3-compatible) bucket.
type MinIO struct {
	client *minio.Client
	cfg    MinIOConfig
	logger *zap.Logger
}

// NewMinIO connects and makes sure the bucket exists.
func NewMinIO(ctx context.Context, cfg MinIOConfig, logger *zap.Logger) (*MinIO, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	m := &MinIO{client: client, cfg: cfg, logger: logger}
	if err := m.ensureBucket(ctx); err != nil {
		return nil, err
	}
	logger.Info("minio storage ready", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", cfg.Bucket))
	return m, nil
}

func (m *MinIO) ensureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	m.logger.Info("created bucket", zap.String("bucket", m.cfg.Bucket))
	return nil
}

// Put uploads body under key.
func (m *MinIO) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	if size <= 0 {
		size = -1
	}
	_, err := m.client.PutObject(ctx, m.cfg.Bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	u := *m.client.EndpointURL()
	u.Path = "/" + m.cfg.Bucket + "/" + key
	return u.String(), nil
}

// Delete removes the object.
func (m *MinIO) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// DownloadURL returns a pre-signed GET URL.
func (m *MinIO) DownloadURL(ctx context.Context, key string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.cfg.Bucket, key, presignExpire(m.cfg.PresignExpireMinutes), nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}
