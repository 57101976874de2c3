// Package storage writes run artifacts to local files or S3 and fetches
// remote inputs. Paths of the form s3://bucket/key select S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/storage/s3"
)

// Storage stores finished files under a path.
type Storage interface {
	// Reader opens the object at path.
	Reader(ctx context.Context, path string) (io.ReadCloser, error)

	// Commit publishes the complete local file tmp at path and removes tmp.
	Commit(ctx context.Context, tmp, path string) error

	// TempDir is where temporary files for this storage are created.
	TempDir(path string) string

	// Scheme returns the storage scheme (file, s3).
	Scheme() string
}

// Config configures remote storage.
type Config struct {
	Region   string
	Endpoint string
}

// IsRemote reports whether path names an object store.
func IsRemote(path string) bool {
	scheme, _, _ := ParsePath(path)
	return scheme == "s3"
}

// ParsePath extracts scheme, bucket and key from cloud URLs. Local paths
// return scheme "file" and the path as key.
func ParsePath(path string) (scheme, bucket, key string) {
	u, err := url.Parse(path)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Local file (or Windows drive letter)
		return "file", "", path
	}
	if u.Scheme == "file" {
		return "file", "", u.Path
	}
	return u.Scheme, u.Host, strings.TrimPrefix(u.Path, "/")
}

// Open returns the storage for path and the path within it.
func Open(ctx context.Context, path string, cfg Config) (Storage, string, error) {
	scheme, bucket, key := ParsePath(path)
	switch scheme {
	case "file":
		return &LocalStorage{}, key, nil
	case "s3":
		if bucket == "" || key == "" {
			return nil, "", bferrors.New(bferrors.CodeInvalidParameters, "s3 path needs a bucket and a key").
				WithContext("path", path)
		}
		b, err := s3.New(ctx, s3.Options{Bucket: bucket, Region: cfg.Region, Endpoint: cfg.Endpoint})
		if err != nil {
			return nil, "", err
		}
		return &S3Storage{bucket: b}, key, nil
	default:
		return nil, "", bferrors.New(bferrors.CodeInvalidParameters, "unsupported storage scheme").
			WithContext("scheme", scheme)
	}
}

// WriteFile creates a temporary file, lets render fill it by path, and
// commits it to dest. Nothing appears at dest unless render succeeds.
func WriteFile(ctx context.Context, cfg Config, dest string, render func(path string) error) error {
	st, key, err := Open(ctx, dest, cfg)
	if err != nil {
		return err
	}

	dir := st.TempDir(key)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return writeError(dest, err)
	}
	f, err := os.CreateTemp(dir, ".batchflow-*"+extension(key))
	if err != nil {
		return writeError(dest, err)
	}
	tmp := f.Name()
	f.Close()

	if err := render(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := st.Commit(ctx, tmp, key); err != nil {
		os.Remove(tmp)
		return writeError(dest, err)
	}
	return nil
}

// Write streams render's output to dest through WriteFile.
func Write(ctx context.Context, cfg Config, dest string, render func(w io.Writer) error) error {
	return WriteFile(ctx, cfg, dest, func(path string) error {
		f, err := os.Create(path)
		if err != nil {
			return writeError(dest, err)
		}
		if err := render(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return writeError(dest, err)
		}
		return nil
	})
}

// Fetch makes src available as a local file. Local paths are returned as
// is; remote objects are downloaded to a temporary file that keeps the
// object's extension, removed by cleanup.
func Fetch(ctx context.Context, cfg Config, src string) (local string, cleanup func(), err error) {
	if !IsRemote(src) {
		return src, func() {}, nil
	}
	st, key, err := Open(ctx, src, cfg)
	if err != nil {
		return "", nil, err
	}
	rc, err := st.Reader(ctx, key)
	if err != nil {
		return "", nil, bferrors.Wrap(err, bferrors.CodeFileNotFound, "cannot fetch input").
			WithContext("path", src)
	}
	defer rc.Close()

	f, err := os.CreateTemp("", "batchflow-*"+extension(key))
	if err != nil {
		return "", nil, err
	}
	cleanup = func() { os.Remove(f.Name()) }
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to download %s: %w", src, err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}

// extension keeps compound suffixes such as .csv.gz.
func extension(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if strings.EqualFold(ext, ".gz") {
		ext = filepath.Ext(strings.TrimSuffix(base, ext)) + ext
	}
	return ext
}

func writeError(dest string, err error) error {
	return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot write output").
		WithContext("path", dest)
}

// --- Local Storage ---

// LocalStorage handles local file operations.
type LocalStorage struct{}

func (s *LocalStorage) Scheme() string { return "file" }

func (s *LocalStorage) Reader(ctx context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// TempDir keeps the temporary file next to path so the commit is a rename.
func (s *LocalStorage) TempDir(path string) string {
	return filepath.Dir(path)
}

func (s *LocalStorage) Commit(ctx context.Context, tmp, path string) error {
	return os.Rename(tmp, path)
}

// --- S3 Storage ---

// S3Storage stores objects in one bucket.
type S3Storage struct {
	bucket *s3.Bucket
}

func (s *S3Storage) Scheme() string { return "s3" }

func (s *S3Storage) Reader(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.bucket.Get(ctx, key)
}

func (s *S3Storage) TempDir(string) string {
	return os.TempDir()
}

func (s *S3Storage) Commit(ctx context.Context, tmp, key string) error {
	f, err := os.Open(tmp)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if err := s.bucket.Put(ctx, key, f, info.Size(), mime.TypeByExtension(filepath.Ext(key))); err != nil {
		return err
	}
	f.Close()
	return os.Remove(tmp)
}
