package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/logflow/batchflow/pkg/storage/s3"
)

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket string
	// Prefix is the key prefix of entries (e.g., "cache/")
	Prefix   string
	Region   string
	Endpoint string
}

// S3Backend stores entries as objects under a bucket prefix.
type S3Backend struct {
	prefix string
	bucket *s3.Bucket
}

// NewS3Backend creates the S3 client.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	b, err := s3.New(ctx, s3.Options{Bucket: cfg.Bucket, Region: cfg.Region, Endpoint: cfg.Endpoint})
	if err != nil {
		return nil, err
	}
	return &S3Backend{prefix: cfg.Prefix, bucket: b}, nil
}

func (b *S3Backend) key(k string) string {
	return path.Join(b.prefix, k+".json")
}

// Get downloads the entry for key.
func (b *S3Backend) Get(ctx context.Context, key string) (*Entry, error) {
	r, err := b.bucket.Get(ctx, b.key(key))
	if err != nil {
		if s3.IsNotFound(err) {
			return nil, ErrMiss
		}
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return decode(data)
}

// Put uploads e.
func (b *S3Backend) Put(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return b.bucket.Put(ctx, b.key(e.Key), bytes.NewReader(data), int64(len(data)), "application/json")
}

// Delete removes the entry for key.
func (b *S3Backend) Delete(ctx context.Context, key string) error {
	return b.bucket.Delete(ctx, b.key(key))
}

// Name returns "s3".
func (b *S3Backend) Name() string {
	return "s3"
}
