// Package checkpoint caches discovery reports keyed by the digest of the
// input log, the way it is read and the discovery parameters, so an
// unchanged log is not analysed twice.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/logflow/batchflow/pkg/discovery"
	"github.com/logflow/batchflow/pkg/schema"
	"github.com/logflow/batchflow/pkg/storage"
)

// ErrMiss is returned when no entry exists for a key.
var ErrMiss = errors.New("checkpoint: cache miss")

// keyVersion changes whenever the report layout changes.
const keyVersion = "batchflow/v2"

// Entry is one cached report.
type Entry struct {
	Key       string            `json:"key"`
	Input     string            `json:"input"`
	CreatedAt time.Time         `json:"created_at"`
	Report    *discovery.Report `json:"report"`
}

// Backend stores entries.
type Backend interface {
	// Get returns the entry stored under key, or ErrMiss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores e under e.Key.
	Put(ctx context.Context, e *Entry) error

	// Delete removes the entry stored under key.
	Delete(ctx context.Context, key string) error

	// Name returns the backend name for logging.
	Name() string
}

// Config selects and configures a backend.
type Config struct {
	// Dir is a local directory or an s3://bucket/prefix URL.
	Dir string
	// RedisAddr selects the Redis backend when set.
	RedisAddr string
	// TTL expires entries; 0 keeps them forever.
	TTL time.Duration

	Storage storage.Config
}

// DefaultDir returns ~/.batchflow/cache.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "batchflow-cache")
	}
	return filepath.Join(home, ".batchflow", "cache")
}

// Open returns the backend cfg selects: Redis when an address is given,
// S3 for s3:// directories and the local directory otherwise.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch {
	case cfg.RedisAddr != "":
		rc := DefaultRedisConfig(cfg.RedisAddr)
		rc.TTL = cfg.TTL
		b, err := NewRedisBackend(ctx, rc)
		if err != nil {
			return nil, err
		}
		return b, nil
	case storage.IsRemote(cfg.Dir):
		_, bucket, prefix := storage.ParsePath(cfg.Dir)
		b, err := NewS3Backend(ctx, S3Config{
			Bucket:   bucket,
			Prefix:   prefix,
			Region:   cfg.Storage.Region,
			Endpoint: cfg.Storage.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultDir()
		}
		b, err := NewFileBackend(dir, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// Settings is everything besides the log bytes that shapes a report.
type Settings struct {
	Schema    schema.Schema        `json:"schema"`
	Delimiter string               `json:"delimiter"`
	Engine    string               `json:"engine"`
	Params    discovery.Parameters `json:"params"`
}

// Key derives the cache key of an input digest under s.
func Key(digest string, s Settings) (string, error) {
	p, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode settings: %w", err)
	}
	h := sha256.New()
	io.WriteString(h, keyVersion)
	h.Write([]byte{0})
	io.WriteString(h, digest)
	h.Write([]byte{0})
	h.Write(p)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Digest returns the hex SHA-256 of everything r yields.
func Digest(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestFile returns the hex SHA-256 of the file at path.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Digest(f)
}

// Cache looks up and stores reports in a backend.
type Cache struct {
	backend Backend
	now     func() time.Time
}

// New wraps backend.
func New(backend Backend) *Cache {
	return &Cache{backend: backend, now: time.Now}
}

// Backend returns the underlying backend.
func (c *Cache) Backend() Backend {
	return c.backend
}

// Lookup returns the report cached for the input file at path under s,
// the key it was looked up with, and whether it was found. Backend
// failures count as misses.
func (c *Cache) Lookup(ctx context.Context, path string, s Settings) (*discovery.Report, string, bool) {
	digest, err := DigestFile(path)
	if err != nil {
		return nil, "", false
	}
	key, err := Key(digest, s)
	if err != nil {
		return nil, "", false
	}
	e, err := c.backend.Get(ctx, key)
	if err != nil || e.Report == nil {
		return nil, key, false
	}
	return e.Report, key, true
}

// Store caches r under key.
func (c *Cache) Store(ctx context.Context, key, input string, r *discovery.Report) error {
	return c.backend.Put(ctx, &Entry{
		Key:       key,
		Input:     input,
		CreatedAt: c.now().UTC(),
		Report:    r,
	})
}

func decode(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &e, nil
}
