// Package parser reads activity-instance logs (CSV, XLSX, Parquet) into
// a model.Log, binding columns through an explicit schema.
package parser

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/logflow/batchflow/internal/model"
	"github.com/logflow/batchflow/internal/pool"
	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/schema"
	"github.com/logflow/batchflow/pkg/util"
)

// Parser streams activity instances out of an input.
// Implementations must not retain references to the output channel after
// returning; the caller closes out.
type Parser interface {
	// Parse reads from r and sends parsed instances to out.
	Parse(ctx context.Context, r io.Reader, out chan<- *model.Instance) error

	// Extra returns the names of the pass-through columns. It is valid once
	// Parse has returned.
	Extra() []string
}

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXLSX
	FormatParquet
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format string.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "csv", "txt":
		return FormatCSV
	case "xlsx", "excel":
		return FormatXLSX
	case "parquet", "pq":
		return FormatParquet
	default:
		return FormatUnknown
	}
}

// DetectFormat infers the format from a file name, ignoring a .gz suffix.
func DetectFormat(path string) Format {
	return ParseFormat(util.BaseFormat(path))
}

// Engine selects the reader implementation.
type Engine string

const (
	// EngineNative uses the built-in CSV scanner and excelize.
	EngineNative Engine = "native"
	// EngineDuckDB reads through an embedded DuckDB.
	EngineDuckDB Engine = "duckdb"
)

// Config holds parser configuration.
type Config struct {
	// Schema binds the log roles to column names.
	Schema schema.Schema

	// Delimiter is the CSV field delimiter (default: comma).
	Delimiter byte

	// BufferSize is the size of the read buffer in bytes.
	BufferSize int

	// Engine selects the reader; Parquet input always uses DuckDB.
	Engine Engine
}

// DefaultConfig returns a Config with the default schema.
func DefaultConfig() Config {
	return Config{
		Schema:     schema.Default(),
		Delimiter:  ',',
		BufferSize: pool.DefaultBufferSize,
		Engine:     EngineNative,
	}
}

// instances recycles Instance structs between parsers and ReadLog.
var instances = pool.NewInstancePool()

// NewParser creates a parser for the given format.
func NewParser(format Format, cfg Config) (Parser, error) {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = pool.DefaultBufferSize
	}
	switch format {
	case FormatCSV:
		if cfg.Engine == EngineDuckDB {
			return NewDuckDBParser(cfg, FormatCSV), nil
		}
		return NewCSVParser(cfg), nil
	case FormatXLSX:
		return NewXLSXParser(cfg), nil
	case FormatParquet:
		return NewDuckDBParser(cfg, FormatParquet), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// ReadLog runs p over r and collects the instances into a log, sorted
// stably by start time. The temporal invariant of every row is validated.
func ReadLog(ctx context.Context, p Parser, r io.Reader) (*model.Log, error) {
	out := make(chan *model.Instance, 1024)
	log := &model.Log{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(out)
		return p.Parse(gctx, r, out)
	})
	g.Go(func() error {
		for in := range out {
			log.Instances = append(log.Instances, *in)
			// The copy above owns Attrs now.
			in.Attrs = nil
			instances.Put(in)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Extra = p.Extra()
	if err := log.Validate(); err != nil {
		return nil, orderError(err)
	}
	sort.SliceStable(log.Instances, func(i, j int) bool {
		return log.Instances[i].Start.Before(log.Instances[j].Start)
	})
	return log, nil
}

// ReadFile opens path (transparently decompressing .gz), picks a parser by
// extension and reads the whole log.
func ReadFile(ctx context.Context, path string, cfg Config) (*model.Log, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, bferrors.New(bferrors.CodeInvalidFormat, "unsupported input format").
			WithContext("path", path)
	}
	p, err := NewParser(format, cfg)
	if err != nil {
		return nil, err
	}
	if dp, ok := p.(*DuckDBParser); ok {
		if _, err := os.Stat(path); err != nil {
			return nil, bferrors.FileNotFound(path)
		}
		dp.Path = path
		return ReadLog(ctx, dp, nil)
	}

	r, err := util.OpenFile(path)
	if os.IsNotExist(err) {
		return nil, bferrors.FileNotFound(path)
	}
	if err != nil {
		return nil, bferrors.Wrap(err, bferrors.CodeInvalidFormat, "cannot open input").
			WithContext("path", path)
	}
	defer r.Close()

	return ReadLog(ctx, p, r)
}

func orderError(err error) error {
	if oe, ok := err.(*model.OrderError); ok {
		return bferrors.New(bferrors.CodeInvalidTimestamp, oe.Msg).
			WithContext("row", oe.Row+1)
	}
	return err
}
