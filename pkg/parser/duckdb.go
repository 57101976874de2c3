package parser

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/batchflow/internal/model"
	bferrors "github.com/logflow/batchflow/pkg/errors"
)

// DuckDBParser reads Parquet files, and CSV files on request, through an
// embedded DuckDB. Typed timestamp columns are used as-is; text columns go
// through the same timestamp parsing as the native readers.
type DuckDBParser struct {
	cfg    Config
	format Format
	extra  []string

	// Path overrides the name of the *os.File passed to Parse. DuckDB
	// decompresses .gz inputs itself, so callers holding a path set it.
	Path string
}

// NewDuckDBParser creates a DuckDB-backed parser for format.
func NewDuckDBParser(cfg Config, format Format) *DuckDBParser {
	return &DuckDBParser{cfg: cfg, format: format}
}

// Extra implements Parser.
func (p *DuckDBParser) Extra() []string {
	return p.extra
}

// Parse implements the Parser interface.
func (p *DuckDBParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Instance) error {
	path := p.Path
	if path == "" {
		f, ok := r.(*os.File)
		if !ok {
			return ErrNeedsFile
		}
		path = f.Name()
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeUnknown, "open duckdb")
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, p.query(path))
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeParseFailed, "duckdb query").
			WithContext("path", path)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeParseFailed, "duckdb columns")
	}
	dec, err := newRowDecoder(p.cfg.Schema, header)
	if err != nil {
		return err
	}
	p.extra = dec.extra

	values := make([]any, len(header))
	ptrs := make([]any, len(header))
	for i := range values {
		ptrs[i] = &values[i]
	}
	fields := make([][]byte, len(header))

	row := 0
	for rows.Next() {
		row++
		if err := rows.Scan(ptrs...); err != nil {
			return bferrors.ParseError(p.format.String(), row, err)
		}
		for i, v := range values {
			fields[i] = valueBytes(v)
		}

		in := instances.Get()
		if err := dec.decode(fields, row, in); err != nil {
			instances.Put(in)
			return err
		}
		select {
		case out <- in:
		case <-ctx.Done():
			instances.Put(in)
			return bferrors.Wrap(ctx.Err(), bferrors.CodeContextCanceled, "duckdb read interrupted")
		}
	}
	return rows.Err()
}

func (p *DuckDBParser) query(path string) string {
	if p.format == FormatParquet {
		return fmt.Sprintf(`SELECT * FROM read_parquet('%s')`, escapePath(path))
	}
	delim := string(p.cfg.Delimiter)
	if p.cfg.Delimiter == '\t' {
		delim = `\t`
	}
	return fmt.Sprintf(`SELECT * FROM read_csv_auto('%s', header=true, delim='%s', all_varchar=true)`,
		escapePath(path), delim)
}

// valueBytes renders a scanned DuckDB value in the textual form the row
// decoder expects. Timestamps keep full precision in RFC 3339.
func valueBytes(v any) []byte {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return []byte(x)
	case []byte:
		return x
	case time.Time:
		return []byte(x.UTC().Format(time.RFC3339Nano))
	case int64:
		return strconv.AppendInt(nil, x, 10)
	case int32:
		return strconv.AppendInt(nil, int64(x), 10)
	case float64:
		return strconv.AppendFloat(nil, x, 'f', -1, 64)
	case bool:
		return strconv.AppendBool(nil, x)
	default:
		return []byte(fmt.Sprint(x))
	}
}

// escapePath escapes single quotes for DuckDB string literals.
func escapePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
