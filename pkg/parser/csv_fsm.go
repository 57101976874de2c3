package parser

import (
	"bytes"
	"unicode/utf8"
)

// scanState is the state of the field scanner between two bytes.
type scanState uint8

const (
	fieldStart scanState = iota // before the first byte of a field
	unquoted                    // inside an unquoted field
	quoted                      // inside a quoted field
	quoteSeen                   // a quote inside a quoted field: closing or escaped
)

// CSVScanner splits one CSV line into fields with a finite state machine.
// Unquoted fields alias the line; quoted fields containing "" are copied.
// The returned slice is reused by the next call.
type CSVScanner struct {
	delimiter byte
	fields    [][]byte
}

// NewCSVScanner creates a scanner for the given delimiter.
func NewCSVScanner(delimiter byte) *CSVScanner {
	return &CSVScanner{delimiter: delimiter, fields: make([][]byte, 0, 16)}
}

// ScanLine returns the fields of line, which must not contain the line
// ending. A trailing delimiter yields a final empty field. Bytes after a
// closing quote are kept as part of the quoted field.
func (s *CSVScanner) ScanLine(line []byte) [][]byte {
	if len(line) == 0 {
		return nil
	}
	fields := s.fields[:0]
	state := fieldStart
	start, end := 0, 0
	escaped := false

	emit := func(f []byte) {
		if escaped {
			f = bytes.ReplaceAll(f, []byte(`""`), []byte(`"`))
			escaped = false
		}
		fields = append(fields, f)
		state = fieldStart
	}

	for i, c := range line {
		switch state {
		case fieldStart:
			switch c {
			case '"':
				start, state = i+1, quoted
			case s.delimiter:
				fields = append(fields, nil)
			default:
				start, state = i, unquoted
			}
		case unquoted:
			if c == s.delimiter {
				emit(line[start:i])
			}
		case quoted:
			if c == '"' {
				end, state = i, quoteSeen
			}
		case quoteSeen:
			switch c {
			case s.delimiter:
				emit(line[start:end])
			case '"':
				escaped, state = true, quoted
			default:
				state = quoted
			}
		}
	}

	switch state {
	case fieldStart:
		fields = append(fields, nil)
	case unquoted, quoted:
		// An unterminated quote takes the rest of the line.
		emit(line[start:])
	case quoteSeen:
		emit(line[start:end])
	}
	s.fields = fields
	return fields
}

// SanitizeUTF8 replaces every run of invalid UTF-8 bytes with U+FFFD. Valid
// input is returned unchanged.
func SanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	return bytes.ToValidUTF8(data, []byte("�"))
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// trimBOM drops a leading UTF-8 byte order mark, as written by spreadsheet
// exports, so the first column binds by name.
func trimBOM(line []byte) []byte {
	return bytes.TrimPrefix(line, utf8BOM)
}
