package parser

import (
	"context"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/batchflow/internal/model"
	bferrors "github.com/logflow/batchflow/pkg/errors"
)

// XLSXParser reads the first sheet of an Excel workbook.
type XLSXParser struct {
	cfg   Config
	extra []string
}

// NewXLSXParser creates a new XLSX parser.
func NewXLSXParser(cfg Config) *XLSXParser {
	return &XLSXParser{cfg: cfg}
}

// Extra implements Parser.
func (p *XLSXParser) Extra() []string {
	return p.extra
}

// Parse reads a workbook and sends parsed instances to out.
// Workbooks need random access, so non-file readers are buffered by excelize.
func (p *XLSXParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Instance) error {
	var xl *excelize.File
	var err error
	if f, ok := r.(*os.File); ok {
		xl, err = excelize.OpenFile(f.Name())
	} else {
		xl, err = excelize.OpenReader(r)
	}
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeInvalidFormat, "open xlsx")
	}
	defer xl.Close()

	sheet := xl.GetSheetName(0)
	if sheet == "" {
		sheets := xl.GetSheetList()
		if len(sheets) == 0 {
			return ErrEmptyInput
		}
		sheet = sheets[0]
	}

	rows, err := xl.Rows(sheet)
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeParseFailed, "read xlsx rows").
			WithContext("sheet", sheet)
	}
	defer rows.Close()

	if !rows.Next() {
		return ErrEmptyInput
	}
	header, err := rows.Columns()
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeParseFailed, "read xlsx header")
	}
	dec, err := newRowDecoder(p.cfg.Schema, header)
	if err != nil {
		return err
	}
	p.extra = dec.extra

	row := 0
	fields := make([][]byte, 0, len(header))
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return bferrors.Wrap(err, bferrors.CodeContextCanceled, "xlsx parse interrupted")
		}

		// Raw values keep dates as serial numbers instead of display strings.
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return bferrors.ParseError("xlsx", row+1, err)
		}
		if blank(cols) {
			continue
		}
		row++

		fields = fields[:0]
		for _, c := range cols {
			fields = append(fields, []byte(c))
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
			return bferrors.Wrap(ctx.Err(), bferrors.CodeContextCanceled, "xlsx parse interrupted")
		}
	}
	return rows.Error()
}

func blank(cols []string) bool {
	for _, c := range cols {
		if c != "" {
			return false
		}
	}
	return true
}
