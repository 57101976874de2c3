// Package writer renders annotated logs, feature tables and reports.
package writer

import (
	"strings"
	"time"

	"github.com/logflow/batchflow/internal/model"
	"github.com/logflow/batchflow/pkg/schema"
	"github.com/logflow/batchflow/pkg/util"
)

// Format is a tabular output format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatParquet
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// DetectFormat infers the output format from a file name.
func DetectFormat(path string) Format {
	switch strings.ToLower(strings.TrimPrefix(util.BaseFormat(path), ".")) {
	case "csv", "txt":
		return FormatCSV
	case "parquet", "pq":
		return FormatParquet
	default:
		return FormatUnknown
	}
}

// Config holds writer configuration.
type Config struct {
	// Schema names the role columns of annotated logs.
	Schema schema.Schema

	// BatchSize is the number of rows per Arrow record batch.
	BatchSize int

	// Compression type for Parquet output.
	Compression CompressionType

	// RowGroupSize is the number of rows per Parquet row group.
	RowGroupSize int64

	// TimestampLayout formats CSV timestamps (default RFC 3339 with nanoseconds).
	TimestampLayout string

	// DuckDB writes annotated Parquet through DuckDB's COPY.
	DuckDB bool
}

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ParseCompression parses a compression type string.
func ParseCompression(s string) (CompressionType, bool) {
	switch strings.ToLower(s) {
	case "snappy":
		return CompressionSnappy, true
	case "gzip":
		return CompressionGzip, true
	case "zstd":
		return CompressionZstd, true
	case "lz4":
		return CompressionLZ4, true
	case "none", "uncompressed", "":
		return CompressionNone, true
	default:
		return CompressionNone, false
	}
}

// DefaultConfig returns a Config with the default schema and snappy Parquet.
func DefaultConfig() Config {
	return Config{
		Schema:          schema.Default(),
		BatchSize:       8192,
		Compression:     CompressionSnappy,
		RowGroupSize:    128 * 1024,
		TimestampLayout: time.RFC3339Nano,
	}
}

func (c Config) layout() string {
	if c.TimestampLayout != "" {
		return c.TimestampLayout
	}
	return time.RFC3339Nano
}

func (c Config) batchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return 8192
}

// attrValues returns the values of in's attributes in extra order; missing
// attributes are empty.
func attrValues(in *model.Instance, extra []string, out []string) []string {
	out = out[:0]
	for j, name := range extra {
		if j < len(in.Attrs) && in.Attrs[j].Key == name {
			out = append(out, in.Attrs[j].Value)
			continue
		}
		v := ""
		for _, a := range in.Attrs {
			if a.Key == name {
				v = a.Value
				break
			}
		}
		out = append(out, v)
	}
	return out
}
