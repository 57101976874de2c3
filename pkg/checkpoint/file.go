package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileBackend keeps one JSON file per entry in a directory.
type FileBackend struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string, ttl time.Duration) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileBackend{dir: dir, ttl: ttl, now: time.Now}, nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, key+".json")
}

// Get reads the entry for key. Expired entries are removed and reported
// as misses.
func (b *FileBackend) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, err
	}
	e, err := decode(data)
	if err != nil {
		return nil, err
	}
	if b.ttl > 0 && b.now().Sub(e.CreatedAt) > b.ttl {
		os.Remove(b.path(key))
		return nil, ErrMiss
	}
	return e, nil
}

// Put writes e atomically.
func (b *FileBackend) Put(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, ".entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), b.path(e.Key))
}

// Delete removes the entry for key.
func (b *FileBackend) Delete(ctx context.Context, key string) error {
	err := os.Remove(b.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Name returns "file".
func (b *FileBackend) Name() string {
	return "file"
}
