package writer

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/logflow/batchflow/internal/model"
	bferrors "github.com/logflow/batchflow/pkg/errors"
)

// WriteCSV writes an annotated log as CSV: the schema's role columns, then
// the pass-through columns. A null batch id is an empty cell.
func WriteCSV(ctx context.Context, w io.Writer, log *model.Log, cfg Config) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cfg.Schema.Header(log.Extra)); err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "failed to write CSV header")
	}

	layout := cfg.layout()
	record := make([]string, 0, 8+len(log.Extra))
	var extra []string
	for i := range log.Instances {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return bferrors.Wrap(err, bferrors.CodeContextCanceled, "CSV write interrupted")
			}
		}
		in := &log.Instances[i]
		record = append(record[:0],
			in.Case,
			in.Activity,
			in.Resource,
			in.Enabled.Format(layout),
			in.Start.Format(layout),
			in.End.Format(layout),
			in.BatchID.String(),
			string(in.BatchType),
		)
		extra = attrValues(in, log.Extra, extra)
		record = append(record, extra...)
		if err := cw.Write(record); err != nil {
			return bferrors.Wrap(err, bferrors.CodeWriteFailed, "failed to write CSV row").
				WithContext("row", i+1)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "failed to flush CSV")
	}
	return nil
}
