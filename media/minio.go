// Package media stores post images in an S3-compatible bucket.
package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"redgraph/models"
	"redgraph/service"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL prefixes object URLs. Defaults to the endpoint.
	PublicBaseURL string
}

type MinIO struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewMinIO(cfg Config) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect minio: %w", err)
	}
	return &MinIO{client: client, bucket: cfg.Bucket, baseURL: publicBase(cfg)}, nil
}

// EnsureBucket creates the bucket when it is missing.
func (m *MinIO) EnsureBucket(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if ok {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	return nil
}

func (m *MinIO) Upload(ctx context.Context, u service.Upload) (models.Image, error) {
	name := objectName(u.Filename)
	size := u.Size
	if size <= 0 {
		size = -1
	}
	_, err := m.client.PutObject(ctx, m.bucket, name, u.Body, size, minio.PutObjectOptions{
		ContentType: u.ContentType,
	})
	if err != nil {
		return models.Image{}, fmt.Errorf("put object %s: %w", name, err)
	}
	return models.Image{PublicID: name, URL: m.baseURL + "/" + m.bucket + "/" + name}, nil
}

func (m *MinIO) Remove(ctx context.Context, publicID string) error {
	return m.client.RemoveObject(ctx, m.bucket, publicID, minio.RemoveObjectOptions{})
}

func objectName(filename string) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(filename))
}

func publicBase(cfg Config) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + cfg.Endpoint
}
