package writer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/batchflow/internal/model"
	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/schema"
)

// timestampType stores instants as UTC microseconds.
var timestampType = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

// logSchema returns the Arrow schema of an annotated log.
func logSchema(s schema.Schema, extra []string) *arrow.Schema {
	fields := []arrow.Field{
		{Name: s.Case, Type: arrow.BinaryTypes.String},
		{Name: s.Activity, Type: arrow.BinaryTypes.String},
		{Name: s.Resource, Type: arrow.BinaryTypes.String},
		{Name: s.Enabled, Type: timestampType},
		{Name: s.Start, Type: timestampType},
		{Name: s.End, Type: timestampType},
		{Name: s.BatchID, Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: s.BatchType, Type: arrow.BinaryTypes.String, Nullable: true},
	}
	for _, name := range extra {
		fields = append(fields, arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

func codec(c CompressionType) compress.Compression {
	switch c {
	case CompressionSnappy:
		return compress.Codecs.Snappy
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	case CompressionLZ4:
		return compress.Codecs.Lz4
	default:
		return compress.Codecs.Uncompressed
	}
}

// newFileWriter opens a pqarrow writer with the configured properties.
func newFileWriter(sc *arrow.Schema, output io.Writer, cfg Config) (*pqarrow.FileWriter, error) {
	opts := []parquet.WriterProperty{
		parquet.WithCompression(codec(cfg.Compression)),
		parquet.WithDictionaryDefault(true),
		parquet.WithDataPageSize(1024 * 1024), // 1MB
	}
	if cfg.RowGroupSize > 0 {
		opts = append(opts, parquet.WithMaxRowGroupLength(cfg.RowGroupSize))
	}

	writer, err := pqarrow.NewFileWriter(sc, output, parquet.NewWriterProperties(opts...),
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	return writer, nil
}

// ParquetWriter writes activity instances to Parquet using Apache Arrow.
type ParquetWriter struct {
	cfg   Config
	extra []string

	schema  *arrow.Schema
	writer  *pqarrow.FileWriter
	builder *array.RecordBuilder
	attrs   []string

	mu               sync.Mutex
	rowCount         int
	totalRowsWritten int64
	closed           bool
}

// NewParquetWriter creates a Parquet writer for logs with the given
// pass-through columns.
func NewParquetWriter(output io.Writer, extra []string, cfg Config) (*ParquetWriter, error) {
	sc := logSchema(cfg.Schema, extra)
	writer, err := newFileWriter(sc, output, cfg)
	if err != nil {
		return nil, err
	}

	pw := &ParquetWriter{
		cfg:     cfg,
		extra:   extra,
		schema:  sc,
		writer:  writer,
		builder: array.NewRecordBuilder(memory.NewGoAllocator(), sc),
	}
	pw.builder.Reserve(cfg.batchSize())
	return pw, nil
}

// WriteInstance appends one activity instance.
func (w *ParquetWriter) WriteInstance(in *model.Instance) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.appendInstance(in)
	w.rowCount++

	// Write batch if we've accumulated enough rows
	if w.rowCount >= w.cfg.batchSize() {
		return w.flushBatch()
	}
	return nil
}

func (w *ParquetWriter) appendInstance(in *model.Instance) {
	b := w.builder
	b.Field(0).(*array.StringBuilder).Append(in.Case)
	b.Field(1).(*array.StringBuilder).Append(in.Activity)
	b.Field(2).(*array.StringBuilder).Append(in.Resource)
	b.Field(3).(*array.TimestampBuilder).Append(arrow.Timestamp(in.Enabled.UnixMicro()))
	b.Field(4).(*array.TimestampBuilder).Append(arrow.Timestamp(in.Start.UnixMicro()))
	b.Field(5).(*array.TimestampBuilder).Append(arrow.Timestamp(in.End.UnixMicro()))

	if in.BatchID.Valid() {
		b.Field(6).(*array.Int64Builder).Append(int64(in.BatchID))
	} else {
		b.Field(6).AppendNull()
	}
	if in.BatchType != "" {
		b.Field(7).(*array.StringBuilder).Append(string(in.BatchType))
	} else {
		b.Field(7).AppendNull()
	}

	w.attrs = attrValues(in, w.extra, w.attrs)
	for j, v := range w.attrs {
		b.Field(8 + j).(*array.StringBuilder).Append(v)
	}
}

// flushBatch writes the current batch to Parquet.
func (w *ParquetWriter) flushBatch() error {
	if w.rowCount == 0 {
		return nil
	}

	rec := w.builder.NewRecord()
	defer rec.Release()

	if err := w.writer.Write(rec); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}

	w.totalRowsWritten += int64(w.rowCount)
	w.rowCount = 0
	return nil
}

// Flush flushes any buffered data.
func (w *ParquetWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushBatch()
}

// Close flushes, finalizes the file and releases the builders.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	defer w.builder.Release()

	if err := w.flushBatch(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// RowsWritten returns the total number of rows written.
func (w *ParquetWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRowsWritten
}

// WriteParquet writes a whole annotated log as Parquet.
func WriteParquet(ctx context.Context, output io.Writer, log *model.Log, cfg Config) error {
	pw, err := NewParquetWriter(output, log.Extra, cfg)
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot create Parquet output")
	}
	for i := range log.Instances {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				pw.Close()
				return bferrors.Wrap(err, bferrors.CodeContextCanceled, "Parquet write interrupted")
			}
		}
		if err := pw.WriteInstance(&log.Instances[i]); err != nil {
			pw.Close()
			return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot write Parquet output")
		}
	}
	if err := pw.Close(); err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot write Parquet output")
	}
	return nil
}
