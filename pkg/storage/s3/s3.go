// Package s3 wraps the AWS SDK client for the one-bucket operations the
// storage layer and the remote cache need.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Options selects the bucket and how to reach it.
type Options struct {
	Bucket string
	Region string

	// Endpoint points at an S3-compatible service such as MinIO. Setting
	// it switches to path-style addressing.
	Endpoint string

	// Static credentials; the default provider chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string

	// Timeout bounds each request, including the transfer of the body.
	Timeout time.Duration
}

const defaultTimeout = 5 * time.Minute

// Bucket performs object operations on one bucket.
type Bucket struct {
	name    string
	timeout time.Duration
	api     *s3.Client
}

// New loads the AWS configuration and returns a Bucket handle.
func New(ctx context.Context, opts Options) (*Bucket, error) {
	var load []func(*config.LoadOptions) error
	if opts.Region != "" {
		load = append(load, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		load = append(load, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, load...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Bucket{name: opts.Bucket, timeout: timeout, api: api}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Get opens the object under key. The request deadline lasts until the
// returned reader is closed.
func (b *Bucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("get s3://%s/%s: %w", b.name, key, err)
	}
	return &body{ReadCloser: out.Body, cancel: cancel}, nil
}

type body struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *body) Close() error {
	defer r.cancel()
	return r.ReadCloser.Close()
}

// Put stores size bytes from r under key.
func (b *Bucket) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	in := &s3.PutObjectInput{
		Bucket:        aws.String(b.name),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := b.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", b.name, key, err)
	}
	return nil
}

// Delete removes the object under key. Deleting a missing key succeeds.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	_, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("delete s3://%s/%s: %w", b.name, key, err)
	}
	return nil
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
