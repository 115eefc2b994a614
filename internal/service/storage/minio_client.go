package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"

	"chatcore-backend/pkg/config"
	"chatcore-backend/pkg/constants"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/resilience"
)

// MinioStore is the MinIO blob store. Every call goes through a circuit breaker
// with retry and timeout.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
	breaker   *resilience.Breaker
}

// NewMinioStore connects to MinIO and makes sure the bucket exists
func NewMinioStore(ctx context.Context, cfg *config.MinIOConfig, reg prometheus.Registerer) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	s := &MinioStore{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		breaker:   resilience.NewBreaker("minio", reg, resilience.Options{}),
	}

	err = s.breaker.Execute(ctx, "ensure_bucket", func(ctx context.Context) error {
		exists, err := client.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return fmt.Errorf("failed to check bucket: %w", err)
		}
		if exists {
			return nil
		}
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Put uploads r under key and returns its retrieval URL. Retries rewind r when
// it is seekable (multipart files are) and fail otherwise.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	attempt := 0
	err := s.breaker.Execute(ctx, "put_object", func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			seeker, ok := r.(io.Seeker)
			if !ok {
				return errors.New("upload body cannot be replayed")
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return err
			}
		}
		_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
		return err
	})
	if err != nil {
		return "", apperrors.TransientError("upload attachment", err)
	}
	return s.URL(ctx, key)
}

// PresignUpload returns a URL the client can PUT the object to
func (s *MinioStore) PresignUpload(ctx context.Context, key string) (string, time.Time, error) {
	var u *url.URL
	err := s.breaker.Execute(ctx, "presign_put", func(ctx context.Context) error {
		var err error
		u, err = s.client.PresignedPutObject(ctx, s.bucket, key, constants.PresignedURLExpiry)
		return err
	})
	if err != nil {
		return "", time.Time{}, apperrors.TransientError("presign upload", err)
	}
	return u.String(), time.Now().Add(constants.PresignedURLExpiry), nil
}

// Stat returns the size of a stored object
func (s *MinioStore) Stat(ctx context.Context, key string) (int64, error) {
	var info minio.ObjectInfo
	err := s.breaker.Execute(ctx, "stat_object", func(ctx context.Context) error {
		var err error
		info, err = s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return err
	})
	if err != nil {
		return 0, apperrors.TransientError("stat attachment", err)
	}
	if info.Key == "" {
		return 0, apperrors.NotFoundError("attachment")
	}
	return info.Size, nil
}

// URL returns the public object URL, or a long-lived presigned GET URL
func (s *MinioStore) URL(ctx context.Context, key string) (string, error) {
	if s.publicURL != "" {
		return s.publicURL + "/" + s.bucket + "/" + key, nil
	}

	var u *url.URL
	err := s.breaker.Execute(ctx, "presign_get", func(ctx context.Context) error {
		var err error
		u, err = s.client.PresignedGetObject(ctx, s.bucket, key, constants.DownloadURLExpiry, nil)
		return err
	})
	if err != nil {
		return "", apperrors.TransientError("presign download", err)
	}
	return u.String(), nil
}

// State exposes the breaker state for health checks
func (s *MinioStore) State() resilience.CircuitBreakerState {
	return s.breaker.GetCircuitBreakerState()
}
