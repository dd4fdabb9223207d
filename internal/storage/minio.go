package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Renditions never change once written; clients may cache them until the
// signed URL expires.
const minioCacheControl = "private, max-age=31536000, immutable"

// MinioConfig describes the remote object storage backend.
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool

	// SignedURLTTL is the lifetime of issued display URLs; RefreshBuffer is
	// the margin before expiry at which a cached URL is considered stale.
	SignedURLTTL  time.Duration
	RefreshBuffer time.Duration

	// Clock overrides time.Now for the URL cache; used in tests.
	Clock func() time.Time
}

var _ BlobStore = (*MinioStore)(nil)

// MinioStore keeps rendition blobs in a private bucket and resolves display
// URLs as presigned GETs, memoized in a process-local URLCache.
type MinioStore struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
	urls   *URLCache
}

// NewMinioStore connects to the object storage endpoint and creates the
// bucket if it does not exist yet.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = time.Hour
	}
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = time.Minute
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioStore{
		client: client,
		bucket: cfg.Bucket,
		ttl:    cfg.SignedURLTTL,
		urls:   NewURLCache(cfg.SignedURLTTL, cfg.RefreshBuffer, cfg.Clock),
	}, nil
}

// Put uploads the blob, dropping any cached URL for the key since the
// content it pointed at is superseded.
func (s *MinioStore) Put(ctx context.Context, key string, blob []byte, contentType string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(blob), int64(len(blob)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: minioCacheControl,
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", key, err)
	}
	s.urls.Invalidate(key)
	return nil
}

// Remove deletes the objects for the given keys and eagerly invalidates
// their cached URLs. Object storage treats removal of a missing key as
// success, which matches the idempotency contract.
func (s *MinioStore) Remove(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if !validKey(key) {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove blob %s: %w", key, err)
		}
		s.urls.Invalidate(key)
	}
	return nil
}

// ResolveURL returns a presigned GET URL for key, reusing a cached one while
// it remains comfortably inside its lifetime.
func (s *MinioStore) ResolveURL(ctx context.Context, key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if cached, ok := s.urls.Get(key); ok {
		return cached, nil
	}

	signed, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign URL for blob %s: %w", key, err)
	}

	resolved := signed.String()
	s.urls.Set(key, resolved)
	return resolved, nil
}
