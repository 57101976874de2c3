package parser

import (
	"bufio"
	"context"
	"io"

	"github.com/logflow/batchflow/internal/model"
	bferrors "github.com/logflow/batchflow/pkg/errors"
)

// CSVParser reads delimited text logs with the FSM scanner.
// Quoted fields may contain delimiters and escaped quotes but not newlines.
type CSVParser struct {
	cfg     Config
	scanner *CSVScanner
	extra   []string
}

// NewCSVParser creates a new CSV parser.
func NewCSVParser(cfg Config) *CSVParser {
	return &CSVParser{
		cfg:     cfg,
		scanner: NewCSVScanner(cfg.Delimiter),
	}
}

// Extra implements Parser.
func (p *CSVParser) Extra() []string {
	return p.extra
}

// Parse implements the Parser interface.
func (p *CSVParser) Parse(ctx context.Context, r io.Reader, out chan<- *model.Instance) error {
	reader := bufio.NewReaderSize(r, p.cfg.BufferSize)

	headerLine, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return bferrors.Wrap(err, bferrors.CodeParseFailed, "read csv header")
	}
	headerLine = trimBOM(trimLineEnding(headerLine))
	if len(headerLine) == 0 {
		return ErrEmptyInput
	}

	fields := p.scanner.ScanLine(SanitizeUTF8(headerLine))
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = string(f)
	}
	dec, err := newRowDecoder(p.cfg.Schema, header)
	if err != nil {
		return err
	}
	p.extra = dec.extra

	row := 0
	for {
		if err := ctx.Err(); err != nil {
			return bferrors.Wrap(err, bferrors.CodeContextCanceled, "csv parse interrupted")
		}

		line, readErr := reader.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return bferrors.Wrap(readErr, bferrors.CodeParseFailed, "read csv")
		}

		line = trimLineEnding(line)
		if len(line) > 0 {
			row++
			in := instances.Get()
			if err := dec.decode(p.scanner.ScanLine(SanitizeUTF8(line)), row, in); err != nil {
				instances.Put(in)
				return err
			}
			select {
			case out <- in:
			case <-ctx.Done():
				instances.Put(in)
				return bferrors.Wrap(ctx.Err(), bferrors.CodeContextCanceled, "csv parse interrupted")
			}
		}

		if readErr == io.EOF {
			return nil
		}
	}
}

// trimLineEnding removes trailing \n and \r characters.
func trimLineEnding(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
