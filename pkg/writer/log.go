package writer

import (
	"context"
	"os"

	"github.com/logflow/batchflow/internal/model"
	bferrors "github.com/logflow/batchflow/pkg/errors"
)

// WriteLogFile writes an annotated log to a local path in the format implied
// by its extension.
func WriteLogFile(ctx context.Context, path string, log *model.Log, cfg Config) error {
	format := DetectFormat(path)
	if format == FormatParquet && cfg.DuckDB {
		return WriteDuckDB(ctx, path, log, cfg)
	}

	f, err := os.Create(path)
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot create output").
			WithContext("path", path)
	}
	switch format {
	case FormatCSV:
		err = WriteCSV(ctx, f, log, cfg)
	case FormatParquet:
		err = WriteParquet(ctx, f, log, cfg)
	default:
		err = bferrors.New(bferrors.CodeInvalidFormat, "unsupported output format").
			WithContext("path", path)
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = bferrors.Wrap(cerr, bferrors.CodeWriteFailed, "cannot close output").
			WithContext("path", path)
	}
	return err
}
