// Package s3 holds the MinIO-backed object store behind askdb's two remote
// artifacts: database snapshots fetched for read-only sessions and Parquet
// run transcripts archived after an intent.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/askdb/askdb/internal/storage"
)

type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string

	// AutoCreateBucket is set for the transcript archive, which owns its
	// bucket. Snapshot fetches leave it off: a missing source bucket is a
	// user error, not something to create.
	AutoCreateBucket bool
}

// objectAPI is the slice of the MinIO client the store needs. Tests swap in
// a scripted fake.
type objectAPI interface {
	putObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	getObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	statObject(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	bucketExists(ctx context.Context, bucket string) (bool, error)
	makeBucket(ctx context.Context, bucket, region string) error
}

// Store implements storage.ObjectStore over one bucket, with an optional key
// prefix so several deployments can share it.
type Store struct {
	api    objectAPI
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	host, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	mc, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	store, err := NewWithClient(cfg.Bucket, cfg.Prefix, &minioAPI{client: mc})
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func NewWithClient(bucket, prefix string, api objectAPI) (*Store, error) {
	if api == nil {
		return nil, fmt.Errorf("object store client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	cleaned := ""
	if strings.Trim(strings.TrimSpace(prefix), "/") != "" {
		var err error
		cleaned, err = cleanKey(prefix)
		if err != nil {
			return nil, fmt.Errorf("invalid object store prefix %q", prefix)
		}
	}
	return &Store{api: api, bucket: bucket, prefix: cleaned}, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	resolved, err := s.resolveKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.api.putObject(ctx, s.bucket, resolved, body, size, opts.ContentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put object %q: %w", resolved, err)
	}
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resolved, err := s.resolveKey(key)
	if err != nil {
		return nil, err
	}
	body, err := s.api.getObject(ctx, s.bucket, resolved)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object %q: %w", resolved, err)
	}
	return body, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	resolved, err := s.resolveKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.api.statObject(ctx, s.bucket, resolved)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return storage.ObjectInfo{}, storage.ErrObjectNotFound
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat object %q: %w", resolved, err)
	}
	return info, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.api.bucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.api.makeBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) resolveKey(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return s.prefix + "/" + cleaned, nil
}

// cleanKey trims slashes and rejects empty, dot, and parent segments, so no
// key can escape the bucket prefix.
func cleanKey(raw string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", fmt.Errorf("object key is required")
	}
	for _, segment := range strings.Split(trimmed, "/") {
		switch segment {
		case "", ".", "..":
			return "", fmt.Errorf("invalid object key: %q", raw)
		}
	}
	return trimmed, nil
}

// parseEndpoint accepts a bare host:port or a full URL. A https:// scheme
// forces TLS; otherwise the configured flag decides.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false, fmt.Errorf("object store endpoint is required")
	}
	if !strings.Contains(trimmed, "://") {
		return trimmed, useSSL, nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("endpoint %q has no host", raw)
	}
	return parsed.Host, parsed.Scheme == "https" || useSSL, nil
}

// minioAPI adapts the concrete MinIO client to objectAPI, translating the
// service's not-found codes into storage.ErrObjectNotFound.
type minioAPI struct {
	client *minio.Client
}

func (m *minioAPI) putObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	uploaded, err := m.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, translateMinioErr(err)
	}
	return storage.ObjectInfo{Key: uploaded.Key, Size: uploaded.Size, ETag: uploaded.ETag}, nil
}

func (m *minioAPI) getObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioErr(err)
	}
	// GetObject is lazy; Stat forces the first request so a missing key
	// fails here instead of on the first Read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, translateMinioErr(err)
	}
	return obj, nil
}

func (m *minioAPI) statObject(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, translateMinioErr(err)
	}
	return storage.ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

func (m *minioAPI) bucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, translateMinioErr(err)
	}
	return exists, nil
}

func (m *minioAPI) makeBucket(ctx context.Context, bucket, region string) error {
	if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return translateMinioErr(err)
	}
	return nil
}

func translateMinioErr(err error) error {
	if err == nil {
		return nil
	}
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		switch response.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return storage.ErrObjectNotFound
		}
	}
	return err
}
