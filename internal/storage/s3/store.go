// Package s3 reads and writes query results on S3-compatible endpoints
// through minio-go. Keys are used exactly as the result location spells
// them.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/athenaq/athenaq/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	SessionToken     string
	UseSSL           bool
	UsePathStyle     bool
	AutoCreateBucket bool
}

// client is the subset of *minio.Client the store calls.
type client interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (object, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// object is the part of *minio.Object needed to detect a missing key
// before handing the body out.
type object interface {
	io.ReadCloser
	Stat() (minio.ObjectInfo, error)
}

type Store struct {
	client           client
	region           string
	autoCreateBucket bool
	buckets          sync.Map
}

func New(cfg Config) (*Store, error) {
	host, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	lookup := minio.BucketLookupAuto
	if cfg.UsePathStyle {
		lookup = minio.BucketLookupPath
	}
	mc, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		Secure:       secure,
		Region:       strings.TrimSpace(cfg.Region),
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client for %s: %w", host, err)
	}
	store, err := NewWithClient(minioAdapter{mc}, cfg.AutoCreateBucket)
	if err != nil {
		return nil, err
	}
	store.region = strings.TrimSpace(cfg.Region)
	return store, nil
}

func NewWithClient(c client, autoCreateBucket bool) (*Store, error) {
	if c == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	return &Store{client: c, autoCreateBucket: autoCreateBucket}, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if err := validate(bucket, key); err != nil {
		return storage.ObjectInfo{}, err
	}
	if s.autoCreateBucket {
		if err := s.ensureBucket(ctx, bucket); err != nil {
			return storage.ObjectInfo{}, err
		}
	}
	upload, err := s.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{ContentType: opts.ContentType})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put s3://%s/%s: %w", bucket, key, translate(err))
	}
	return storage.ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         upload.Size,
		ETag:         upload.ETag,
		LastModified: upload.LastModified,
	}, nil
}

// Get returns storage.ErrObjectNotFound for a missing bucket or key.
func (s *Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := validate(bucket, key); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err == nil {
		// GetObject is lazy; Stat surfaces NoSuchKey.
		if _, err = obj.Stat(); err != nil {
			_ = obj.Close()
		}
	}
	if err != nil {
		err = translate(err)
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

func (s *Store) ensureBucket(ctx context.Context, bucket string) error {
	if _, ok := s.buckets.Load(bucket); ok {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region})
		if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	s.buckets.Store(bucket, struct{}{})
	return nil
}

func validate(bucket, key string) error {
	if strings.TrimSpace(bucket) == "" {
		return fmt.Errorf("bucket is required")
	}
	if key == "" {
		return fmt.Errorf("object key is required")
	}
	return nil
}

// parseEndpoint accepts host[:port] or a URL; an https URL forces TLS.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("s3 endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("s3 endpoint %q has no host", raw)
	}
	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, useSSL, nil
	default:
		return "", false, fmt.Errorf("s3 endpoint %q: unsupported scheme %q", raw, parsed.Scheme)
	}
}

func translate(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}

type minioAdapter struct {
	*minio.Client
}

func (m minioAdapter) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (object, error) {
	obj, err := m.Client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}
