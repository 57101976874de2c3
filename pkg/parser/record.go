package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/logflow/batchflow/internal/model"
	"github.com/logflow/batchflow/internal/pool"
	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/schema"
)

// rowDecoder turns the fields of one row into an Instance using a binding.
// It is shared by every reader so that all formats agree on null handling
// and timestamp parsing.
type rowDecoder struct {
	schema  schema.Schema
	binding *schema.Binding
	extra   []string
}

func newRowDecoder(s schema.Schema, header []string) (*rowDecoder, error) {
	b, err := s.Bind(header)
	if err != nil {
		return nil, err
	}
	return &rowDecoder{schema: s, binding: b, extra: b.ExtraNames()}, nil
}

// field returns the value of role, or nil when the row is short or the role
// is unbound.
func (d *rowDecoder) field(fields [][]byte, r schema.Role) []byte {
	idx := d.binding.Index(r)
	if idx < 0 || idx >= len(fields) {
		return nil
	}
	return fields[idx]
}

// decode fills in from fields. row is the 1-based data row number used in
// error context.
func (d *rowDecoder) decode(fields [][]byte, row int, in *model.Instance) error {
	in.Case = string(pool.TrimSpaces(d.field(fields, schema.RoleCase)))
	in.Activity = string(pool.TrimSpaces(d.field(fields, schema.RoleActivity)))
	in.Resource = string(pool.TrimSpaces(d.field(fields, schema.RoleResource)))

	var err error
	if in.Enabled, err = d.timestamp(fields, schema.RoleEnabled, row); err != nil {
		return err
	}
	if in.Start, err = d.timestamp(fields, schema.RoleStart, row); err != nil {
		return err
	}
	if in.End, err = d.timestamp(fields, schema.RoleEnd, row); err != nil {
		return err
	}

	in.BatchID = model.NoBatch
	if raw := pool.TrimSpaces(d.field(fields, schema.RoleBatchID)); !isNull(raw) {
		id, err := parseBatchID(raw)
		if err != nil {
			return bferrors.Wrap(err, bferrors.CodeParseFailed, "invalid batch id").
				WithContext("column", d.schema.BatchID).
				WithContext("row", row).
				WithContext("value", string(raw))
		}
		in.BatchID = id
	}

	in.BatchType = ""
	if raw := pool.TrimSpaces(d.field(fields, schema.RoleBatchType)); !isNull(raw) {
		t, ok := model.ParseBatchType(string(raw))
		if !ok {
			return bferrors.New(bferrors.CodeParseFailed, "unknown batch type").
				WithContext("row", row).
				WithContext("value", string(raw))
		}
		in.BatchType = t
	}

	in.Attrs = in.Attrs[:0]
	for i, idx := range d.binding.Extra {
		var v string
		if idx < len(fields) {
			v = string(fields[idx])
		}
		in.Attrs = append(in.Attrs, model.Attribute{Key: d.extra[i], Value: v})
	}
	return nil
}

func (d *rowDecoder) timestamp(fields [][]byte, r schema.Role, row int) (time.Time, error) {
	raw := pool.TrimSpaces(d.field(fields, r))
	col := d.schema.Column(r)
	if len(raw) == 0 {
		return time.Time{}, bferrors.InvalidTimestamp(col, "", row)
	}
	t, err := pool.ParseTimestamp(raw, d.schema.TimestampFormat)
	if err != nil {
		return time.Time{}, bferrors.InvalidTimestamp(col, string(raw), row)
	}
	return t, nil
}

// isNull reports whether a cell holds a missing value as written by common
// dataframe tools.
func isNull(b []byte) bool {
	switch strings.ToLower(pool.BytesToString(b)) {
	case "", "na", "<na>", "nan", "null", "none":
		return true
	}
	return false
}

// parseBatchID accepts integers and integral floats ("3.0").
func parseBatchID(b []byte) (model.BatchID, error) {
	if n, err := pool.ParseInt64(b); err == nil {
		return model.BatchID(n), nil
	}
	f, err := pool.ParseFloat64(b)
	if err != nil {
		return model.NoBatch, err
	}
	if f != float64(int64(f)) {
		return model.NoBatch, strconv.ErrSyntax
	}
	return model.BatchID(int64(f)), nil
}
