// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < --config file < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/logflow/batchflow/pkg/discovery"
	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/parser"
	"github.com/logflow/batchflow/pkg/schema"
	"github.com/logflow/batchflow/pkg/writer"
)

// Config holds all batchflow configuration.
type Config struct {
	Version int `yaml:"version" toml:"version"`

	Discovery DiscoveryConfig `yaml:"discovery" toml:"discovery"`
	Schema    schema.Schema   `yaml:"schema" toml:"schema"`
	Input     InputConfig     `yaml:"input" toml:"input"`
	Output    OutputConfig    `yaml:"output" toml:"output"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// DiscoveryConfig holds the discovery parameters.
type DiscoveryConfig struct {
	MinSize          int      `yaml:"batch_min_size" toml:"batch_min_size"`
	MaxGap           Duration `yaml:"max_sequential_gap" toml:"max_sequential_gap"`
	ResourceAware    bool     `yaml:"resource_aware" toml:"resource_aware"`
	MinSupport       float64  `yaml:"min_rule_support" toml:"min_rule_support"`
	MaxRules         int      `yaml:"max_rules" toml:"max_rules"`
	ReadyNegatives   int      `yaml:"num_batch_ready_negative_events" toml:"num_batch_ready_negative_events"`
	EnabledNegatives int      `yaml:"num_batch_enabled_negative_events" toml:"num_batch_enabled_negative_events"`
	Seed             uint64   `yaml:"seed" toml:"seed"`
	ReuseBatches     bool     `yaml:"reuse_batches" toml:"reuse_batches"`
	Workers          int      `yaml:"workers" toml:"workers"` // 0 = auto
}

// InputConfig controls log reading.
type InputConfig struct {
	Delimiter string `yaml:"delimiter" toml:"delimiter"`
	Engine    string `yaml:"engine" toml:"engine"` // native | duckdb
}

// OutputConfig controls the written artifacts.
type OutputConfig struct {
	Compression  string `yaml:"compression" toml:"compression"` // snappy | zstd | gzip | lz4 | none
	RowGroupSize int64  `yaml:"row_group_size" toml:"row_group_size"`
}

// CacheConfig controls the report cache.
type CacheConfig struct {
	Enabled   bool     `yaml:"enabled" toml:"enabled"`
	Dir       string   `yaml:"dir" toml:"dir"`
	RedisAddr string   `yaml:"redis_addr" toml:"redis_addr"`
	TTL       Duration `yaml:"ttl" toml:"ttl"`
}

// StorageConfig configures the S3 sink.
type StorageConfig struct {
	Region   string `yaml:"region" toml:"region"`
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
}

// TelemetryConfig for optional tracing.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled" toml:"enabled"`
	Endpoint      string  `yaml:"endpoint" toml:"endpoint"`
	Insecure      bool    `yaml:"insecure" toml:"insecure"`
	SamplingRatio float64 `yaml:"sampling_ratio" toml:"sampling_ratio"`
}

// MetricsConfig for the Prometheus textfile.
type MetricsConfig struct {
	File string `yaml:"file" toml:"file"`
}

// Duration is a time.Duration written as a Go duration string ("90s", "1h").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	opts := discovery.DefaultOptions()

	return &Config{
		Version: 1,
		Discovery: DiscoveryConfig{
			MinSize:          opts.MinSize,
			MaxGap:           Duration{opts.MaxGap},
			MinSupport:       opts.MinSupport,
			MaxRules:         opts.MaxRules,
			ReadyNegatives:   opts.ReadyNegatives,
			EnabledNegatives: opts.EnabledNegatives,
		},
		Schema: schema.Default(),
		Input: InputConfig{
			Delimiter: ",",
			Engine:    string(parser.EngineNative),
		},
		Output: OutputConfig{
			Compression:  "snappy",
			RowGroupSize: 128 * 1024,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     filepath.Join(homeDir, ".batchflow", "cache"),
			TTL:     Duration{7 * 24 * time.Hour},
		},
		Telemetry: TelemetryConfig{
			Endpoint:      "localhost:4317",
			Insecure:      true,
			SamplingRatio: 1.0,
		},
	}
}

// Validate checks every value a run depends on.
func (c *Config) Validate() error {
	if err := c.Schema.Validate(); err != nil {
		return err
	}
	if len(c.Input.Delimiter) != 1 {
		return bferrors.InvalidParameter("input.delimiter", c.Input.Delimiter, "a single byte")
	}
	switch parser.Engine(c.Input.Engine) {
	case parser.EngineNative, parser.EngineDuckDB:
	default:
		return bferrors.InvalidParameter("input.engine", c.Input.Engine, "native or duckdb")
	}
	if _, ok := writer.ParseCompression(c.Output.Compression); !ok {
		return bferrors.InvalidParameter("output.compression", c.Output.Compression, "snappy, zstd, gzip, lz4 or none")
	}
	if c.Output.RowGroupSize < 0 {
		return bferrors.InvalidParameter("output.row_group_size", c.Output.RowGroupSize, ">= 0")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return bferrors.InvalidParameter("telemetry.sampling_ratio", c.Telemetry.SamplingRatio, "in [0, 1]")
	}
	return c.DiscoveryOptions().Validate()
}

// DiscoveryOptions converts the discovery section.
func (c *Config) DiscoveryOptions() discovery.Options {
	d := c.Discovery
	return discovery.Options{
		MinSize:          d.MinSize,
		MaxGap:           d.MaxGap.Duration,
		ResourceAware:    d.ResourceAware,
		MinSupport:       d.MinSupport,
		MaxRules:         d.MaxRules,
		ReadyNegatives:   d.ReadyNegatives,
		EnabledNegatives: d.EnabledNegatives,
		Seed:             d.Seed,
		ReuseBatches:     d.ReuseBatches,
		Workers:          d.Workers,
	}
}

// ParserConfig converts the schema and input sections.
func (c *Config) ParserConfig() parser.Config {
	cfg := parser.DefaultConfig()
	cfg.Schema = c.Schema
	if len(c.Input.Delimiter) == 1 {
		cfg.Delimiter = c.Input.Delimiter[0]
	}
	cfg.Engine = parser.Engine(c.Input.Engine)
	return cfg
}

// WriterConfig converts the schema and output sections.
func (c *Config) WriterConfig() writer.Config {
	cfg := writer.DefaultConfig()
	cfg.Schema = c.Schema
	cfg.Compression, _ = writer.ParseCompression(c.Output.Compression)
	if c.Output.RowGroupSize > 0 {
		cfg.RowGroupSize = c.Output.RowGroupSize
	}
	cfg.DuckDB = parser.Engine(c.Input.Engine) == parser.EngineDuckDB
	return cfg
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	search []string // candidate files, lowest priority first
	paths  []string // paths that were loaded
}

// NewManager creates a manager searching the standard locations.
func NewManager() *Manager {
	return NewManagerWithPaths(defaultPaths()...)
}

// NewManagerWithPaths creates a manager searching only the given files.
func NewManagerWithPaths(paths ...string) *Manager {
	return &Manager{
		config: Default(),
		search: paths,
	}
}

// Load loads configuration from all sources in priority order. explicit,
// when non-empty, is loaded after the searched files and must exist.
func (m *Manager) Load(explicit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.search {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but fail on broken ones
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		m.paths = append(m.paths, path)
	}

	if explicit != "" {
		if err := m.loadFile(explicit); err != nil {
			if os.IsNotExist(err) {
				return bferrors.FileNotFound(explicit)
			}
			return err
		}
		m.paths = append(m.paths, explicit)
	}

	return m.loadEnv()
}

// defaultPaths returns config file paths in priority order.
func defaultPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/batchflow/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".batchflow", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths,
			filepath.Join(cwd, ".batchflow.yaml"),
			filepath.Join(cwd, ".batchflow.toml"))
	}

	return paths
}

// loadFile decodes one file over the current configuration. Keys absent
// from the file keep their value.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, m.config)
	} else {
		err = yaml.Unmarshal(data, m.config)
	}
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeInvalidFormat, "invalid config file").
			WithContext("path", path)
	}
	return nil
}

// loadEnv overrides the discovery parameters from BATCHFLOW_* variables.
func (m *Manager) loadEnv() error {
	d := &m.config.Discovery
	vars := []struct {
		name string
		set  func(string) error
	}{
		{"BATCHFLOW_MIN_SIZE", intVar(&d.MinSize)},
		{"BATCHFLOW_MAX_GAP", d.MaxGap.set},
		{"BATCHFLOW_RESOURCE_AWARE", boolVar(&d.ResourceAware)},
		{"BATCHFLOW_MIN_SUPPORT", floatVar(&d.MinSupport)},
		{"BATCHFLOW_MAX_RULES", intVar(&d.MaxRules)},
		{"BATCHFLOW_WORKERS", intVar(&d.Workers)},
	}
	for _, v := range vars {
		raw, ok := os.LookupEnv(v.name)
		if !ok || raw == "" {
			continue
		}
		if err := v.set(raw); err != nil {
			return bferrors.Wrap(err, bferrors.CodeInvalidParameters, "invalid environment variable").
				WithContext("name", v.name).
				WithContext("value", raw)
		}
	}
	return nil
}

func (d *Duration) set(s string) error {
	return d.UnmarshalText([]byte(s))
}

func intVar(p *int) func(string) error {
	return func(s string) error {
		v, err := strconv.Atoi(s)
		if err == nil {
			*p = v
		}
		return err
	}
}

func floatVar(p *float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err == nil {
			*p = v
		}
		return err
	}
}

func boolVar(p *bool) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseBool(s)
		if err == nil {
			*p = v
		}
		return err
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.paths...)
}

// Save writes the current config to path as YAML or TOML by extension.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := m.config.Marshal(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Marshal renders the configuration in the format implied by path.
func (c *Config) Marshal(path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var b strings.Builder
		if err := toml.NewEncoder(&b).Encode(c); err != nil {
			return nil, err
		}
		return []byte(b.String()), nil
	}
	return yaml.Marshal(c)
}
