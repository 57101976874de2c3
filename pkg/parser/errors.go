package parser

import "errors"

var (
	// ErrUnsupportedFormat is returned when the input format is not supported.
	ErrUnsupportedFormat = errors.New("parser: unsupported format")

	// ErrEmptyInput is returned when the input has no header row.
	ErrEmptyInput = errors.New("parser: empty input")

	// ErrNeedsFile is returned when a reader requires a named file.
	ErrNeedsFile = errors.New("parser: input must be a file on disk")
)
