// Package errors defines the coded errors batchflow returns and the
// non-fatal diagnostics that travel with a discovery result.
package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Code identifies a failure class. Codes are stable and appear in logs and
// CLI output.
type Code string

const (
	// Input (1xx).
	CodeFileNotFound     Code = "E101"
	CodeInvalidFormat    Code = "E103"
	CodeMissingColumn    Code = "E104"
	CodeInvalidTimestamp Code = "E105"
	CodeInvalidSchema    Code = "E106"

	// Processing (2xx).
	CodeParseFailed       Code = "E201"
	CodeInvalidParameters Code = "E203"

	// Output (3xx).
	CodeWriteFailed Code = "E301"

	// Runtime (4xx).
	CodeContextCanceled Code = "E401"

	CodeUnknown Code = "E999"
)

type field struct {
	key   string
	value any
}

// Error is a coded error with key/value context kept in insertion order.
type Error struct {
	Code    Code
	Message string
	Err     error
	fields  []field
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	for i, f := range e.fields {
		sep := ", "
		if i == 0 {
			sep = " ("
		}
		fmt.Fprintf(&b, "%s%s=%v", sep, f.key, f.value)
	}
	if len(e.fields) > 0 {
		b.WriteByte(')')
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithContext attaches a key/value pair. A repeated key overwrites the
// earlier value in place.
func (e *Error) WithContext(key string, value any) *Error {
	for i := range e.fields {
		if e.fields[i].key == key {
			e.fields[i].value = value
			return e
		}
	}
	e.fields = append(e.fields, field{key, value})
	return e
}

// Value returns the context value for key.
func (e *Error) Value(key string) (any, bool) {
	for _, f := range e.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return nil, false
}

// LogValue groups the code, message, context and cause for slog.
func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.fields)+3)
	attrs = append(attrs, slog.String("code", string(e.Code)), slog.String("msg", e.Message))
	for _, f := range e.fields {
		attrs = append(attrs, slog.Any(f.key, f.value))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("cause", e.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

// New returns an error with code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap annotates err with a code and message. Wrap(nil, ...) is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

func FileNotFound(path string) *Error {
	return New(CodeFileNotFound, "file not found").WithContext("path", path)
}

// MissingColumn reports a role whose column is absent from the header.
func MissingColumn(role, column string, available []string) *Error {
	return New(CodeMissingColumn, "required column not found").
		WithContext("role", role).
		WithContext("column", column).
		WithContext("available", available)
}

// InvalidTimestamp reports a value that does not parse as a timestamp or
// breaks the start <= end ordering.
func InvalidTimestamp(column, value string, row int) *Error {
	return New(CodeInvalidTimestamp, "failed to parse timestamp").
		WithContext("column", column).
		WithContext("value", value).
		WithContext("row", row)
}

// InvalidParameter reports a parameter outside its domain.
func InvalidParameter(name string, value any, constraint string) *Error {
	return New(CodeInvalidParameters, "invalid parameter").
		WithContext("name", name).
		WithContext("value", value).
		WithContext("constraint", constraint)
}

func ParseError(format string, row int, err error) *Error {
	return Wrap(err, CodeParseFailed, "parse error").
		WithContext("format", format).
		WithContext("row", row)
}

// GetCode returns the code of the first *Error in err's chain, or
// CodeUnknown.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode reports whether err's chain carries code.
func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// IsSchemaError reports whether err is a schema violation: a missing or
// mistyped role column, or a row breaking the temporal invariant.
func IsSchemaError(err error) bool {
	switch GetCode(err) {
	case CodeMissingColumn, CodeInvalidTimestamp, CodeInvalidSchema:
		return true
	default:
		return false
	}
}

// Is and As forward to the standard library so callers need one import.
var (
	Is = errors.Is
	As = errors.As
)
