package writer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/batchflow/internal/model"
	bferrors "github.com/logflow/batchflow/pkg/errors"
)

// DuckDBWriter loads activity instances into an in-memory DuckDB table and
// exports it to Parquet with COPY on Close.
type DuckDBWriter struct {
	cfg        Config
	outputPath string
	extra      []string
	db         *sql.DB
	stmt       *sql.Stmt

	totalRowsWritten int64
	closed           bool
}

// NewDuckDBWriter creates a DuckDB-backed Parquet writer for outputPath.
func NewDuckDBWriter(outputPath string, extra []string, cfg Config) (*DuckDBWriter, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	s := cfg.Schema
	columns := []string{
		quoteIdent(s.Case) + " VARCHAR NOT NULL",
		quoteIdent(s.Activity) + " VARCHAR NOT NULL",
		quoteIdent(s.Resource) + " VARCHAR NOT NULL",
		quoteIdent(s.Enabled) + " TIMESTAMP NOT NULL",
		quoteIdent(s.Start) + " TIMESTAMP NOT NULL",
		quoteIdent(s.End) + " TIMESTAMP NOT NULL",
		quoteIdent(s.BatchID) + " BIGINT",
		quoteIdent(s.BatchType) + " VARCHAR",
	}
	for _, name := range extra {
		columns = append(columns, quoteIdent(name)+" VARCHAR")
	}

	if _, err := db.Exec("CREATE TABLE annotated (" + strings.Join(columns, ", ") + ")"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := db.Prepare("INSERT INTO annotated VALUES (" + placeholders + ")")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}

	return &DuckDBWriter{
		cfg:        cfg,
		outputPath: outputPath,
		extra:      extra,
		db:         db,
		stmt:       stmt,
	}, nil
}

// WriteLog inserts every instance of log in one transaction.
func (w *DuckDBWriter) WriteLog(ctx context.Context, log *model.Log) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt := tx.StmtContext(ctx, w.stmt)
	var attrs []string
	args := make([]any, 0, 8+len(w.extra))
	for i := range log.Instances {
		in := &log.Instances[i]

		var batchID, batchType any
		if in.BatchID.Valid() {
			batchID = int64(in.BatchID)
		}
		if in.BatchType != "" {
			batchType = string(in.BatchType)
		}
		args = append(args[:0],
			in.Case, in.Activity, in.Resource,
			in.Enabled.UTC(), in.Start.UTC(), in.End.UTC(),
			batchID, batchType,
		)
		attrs = attrValues(in, w.extra, attrs)
		for _, v := range attrs {
			args = append(args, v)
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert row %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	w.totalRowsWritten += int64(log.Len())
	return nil
}

// Close exports the table to Parquet and releases resources.
func (w *DuckDBWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.db.Close()
	defer w.stmt.Close()

	query := fmt.Sprintf(`COPY annotated TO '%s' (FORMAT PARQUET, COMPRESSION '%s')`,
		escapeLiteral(w.outputPath), duckdbCompression(w.cfg.Compression))
	if _, err := w.db.Exec(query); err != nil {
		return fmt.Errorf("failed to export parquet: %w", err)
	}
	return nil
}

// RowsWritten returns the total number of rows written.
func (w *DuckDBWriter) RowsWritten() int64 {
	return w.totalRowsWritten
}

// WriteDuckDB writes log to a Parquet file at path through DuckDB.
func WriteDuckDB(ctx context.Context, path string, log *model.Log, cfg Config) error {
	w, err := NewDuckDBWriter(path, log.Extra, cfg)
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot create DuckDB output")
	}
	if err := w.WriteLog(ctx, log); err != nil {
		w.db.Close()
		if ctx.Err() != nil {
			return bferrors.Wrap(err, bferrors.CodeContextCanceled, "DuckDB write interrupted")
		}
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot write DuckDB output")
	}
	if err := w.Close(); err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot write DuckDB output").
			WithContext("path", path)
	}
	return nil
}

func duckdbCompression(c CompressionType) string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionNone:
		return "uncompressed"
	default:
		return "snappy"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
