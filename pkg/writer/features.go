package writer

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"

	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/features"
)

// featureColumns are the non-numeric columns leading every feature row.
var featureColumns = []string{"batch_instance_id", "batch_instance_type", "activity", "resource"}

// featureSchema returns the Arrow schema of a feature table.
func featureSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: featureColumns[0], Type: arrow.PrimitiveTypes.Int64},
		{Name: featureColumns[1], Type: arrow.BinaryTypes.String},
		{Name: featureColumns[2], Type: arrow.BinaryTypes.String},
		{Name: featureColumns[3], Type: arrow.BinaryTypes.String},
		{Name: features.FeatureInstant, Type: timestampType},
		{Name: features.FeatureNumQueue, Type: arrow.PrimitiveTypes.Int64},
		{Name: features.FeatureTReady, Type: arrow.PrimitiveTypes.Float64},
		{Name: features.FeatureTWaiting, Type: arrow.PrimitiveTypes.Float64},
		{Name: features.FeatureTMaxFlow, Type: arrow.PrimitiveTypes.Float64},
		{Name: features.FeatureDayOfWeek, Type: arrow.PrimitiveTypes.Int64},
		{Name: features.FeatureDayOfMonth, Type: arrow.PrimitiveTypes.Int64},
		{Name: features.FeatureHourOfDay, Type: arrow.PrimitiveTypes.Int64},
		{Name: features.FeatureMinute, Type: arrow.PrimitiveTypes.Int64},
		{Name: "outcome", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)
}

// WriteFeaturesParquet writes the observation table as Parquet; durations
// are seconds.
func WriteFeaturesParquet(ctx context.Context, output io.Writer, t *features.Table, cfg Config) error {
	sc := featureSchema()
	fw, err := newFileWriter(sc, output, cfg)
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot create feature output")
	}

	b := array.NewRecordBuilder(memory.NewGoAllocator(), sc)
	defer b.Release()

	flush := func() error {
		rec := b.NewRecord()
		defer rec.Release()
		if rec.NumRows() == 0 {
			return nil
		}
		return fw.Write(rec)
	}

	for i := range t.Rows {
		o := &t.Rows[i]
		b.Field(0).(*array.Int64Builder).Append(int64(o.BatchID))
		b.Field(1).(*array.StringBuilder).Append(string(o.BatchType))
		b.Field(2).(*array.StringBuilder).Append(o.Activity)
		b.Field(3).(*array.StringBuilder).Append(o.Resource)
		b.Field(4).(*array.TimestampBuilder).Append(arrow.Timestamp(o.Instant.UnixMicro()))
		b.Field(5).(*array.Int64Builder).Append(int64(o.NumQueue))
		b.Field(6).(*array.Float64Builder).Append(o.TReady.Seconds())
		b.Field(7).(*array.Float64Builder).Append(o.TWaiting.Seconds())
		b.Field(8).(*array.Float64Builder).Append(o.TMaxFlow.Seconds())
		b.Field(9).(*array.Int64Builder).Append(int64(o.DayOfWeek))
		b.Field(10).(*array.Int64Builder).Append(int64(o.DayOfMonth))
		b.Field(11).(*array.Int64Builder).Append(int64(o.HourOfDay))
		b.Field(12).(*array.Int64Builder).Append(int64(o.Minute))
		b.Field(13).(*array.BooleanBuilder).Append(o.Outcome)

		if (i+1)%cfg.batchSize() == 0 {
			if err := ctx.Err(); err != nil {
				fw.Close()
				return bferrors.Wrap(err, bferrors.CodeContextCanceled, "feature write interrupted")
			}
			if err := flush(); err != nil {
				fw.Close()
				return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot write feature output")
			}
		}
	}
	if err := flush(); err != nil {
		fw.Close()
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot write feature output")
	}
	if err := fw.Close(); err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot write feature output")
	}
	return nil
}

// WriteFeaturesCSV writes the observation table as CSV with the same
// columns as the Parquet form.
func WriteFeaturesCSV(ctx context.Context, output io.Writer, t *features.Table, cfg Config) error {
	cw := csv.NewWriter(output)
	header := append(append([]string(nil), featureColumns...), features.Names...)
	header = append(header, "outcome")
	if err := cw.Write(header); err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot write feature output")
	}

	layout := cfg.layout()
	seconds := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	for i := range t.Rows {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return bferrors.Wrap(err, bferrors.CodeContextCanceled, "feature write interrupted")
			}
		}
		o := &t.Rows[i]
		err := cw.Write([]string{
			o.BatchID.String(),
			string(o.BatchType),
			o.Activity,
			o.Resource,
			o.Instant.Format(layout),
			strconv.Itoa(o.NumQueue),
			seconds(o.TReady.Seconds()),
			seconds(o.TWaiting.Seconds()),
			seconds(o.TMaxFlow.Seconds()),
			strconv.Itoa(o.DayOfWeek),
			strconv.Itoa(o.DayOfMonth),
			strconv.Itoa(o.HourOfDay),
			strconv.Itoa(o.Minute),
			strconv.FormatBool(o.Outcome),
		})
		if err != nil {
			return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot write feature output")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return bferrors.Wrap(err, bferrors.CodeWriteFailed, "cannot write feature output")
	}
	return nil
}

// WriteFeatures writes the table in format.
func WriteFeatures(ctx context.Context, output io.Writer, t *features.Table, format Format, cfg Config) error {
	switch format {
	case FormatCSV:
		return WriteFeaturesCSV(ctx, output, t, cfg)
	case FormatParquet:
		return WriteFeaturesParquet(ctx, output, t, cfg)
	default:
		return bferrors.New(bferrors.CodeInvalidFormat, "unsupported feature output format")
	}
}
