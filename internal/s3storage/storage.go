package s3storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/straymandu/internal/config"
)

// Storage wraps MinIO/S3 interactions for report photos.
type Storage struct {
	client  *minio.Client
	bucket  string
	region  string
	baseURL string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	baseURL := cfg.MediaBaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.S3UseSSL {
			scheme = "https"
		}
		baseURL = scheme + "://" + cfg.S3Endpoint
	}
	return &Storage{
		client:  client,
		bucket:  cfg.MediaBucket,
		region:  cfg.S3Region,
		baseURL: baseURL,
	}, nil
}

// EnsureBucket makes sure the media bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// UploadImage stores a photo and returns the absolute URL reports reference it by.
func (s *Storage) UploadImage(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, objectKey, reader, size, opts); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return ObjectURL(s.baseURL, s.bucket, objectKey), nil
}

// ObjectURL joins the public base URL, bucket and key.
func ObjectURL(baseURL, bucket, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + bucket + "/" + strings.TrimLeft(key, "/")
}
