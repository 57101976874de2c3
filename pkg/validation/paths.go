// Package validation checks input and output paths before a run starts.
package validation

import (
	"os"
	"path/filepath"

	bferrors "github.com/logflow/batchflow/pkg/errors"
	"github.com/logflow/batchflow/pkg/parser"
	"github.com/logflow/batchflow/pkg/storage"
	"github.com/logflow/batchflow/pkg/writer"
)

// MaxPathLength is the maximum allowed path length.
const MaxPathLength = 4096

// Kind is the artifact written to an output path.
type Kind int

const (
	// Table is an annotated log or a feature table (csv, parquet).
	Table Kind = iota
	// Report is a discovery report (json, yaml).
	Report
)

// ValidateFilePath checks the length of path and returns it cleaned.
func ValidateFilePath(path string) (string, error) {
	if path == "" {
		return "", bferrors.New(bferrors.CodeInvalidParameters, "empty file path")
	}
	if len(path) > MaxPathLength {
		return "", bferrors.New(bferrors.CodeInvalidParameters, "path too long").
			WithContext("maxLength", MaxPathLength)
	}
	if storage.IsRemote(path) {
		return path, nil
	}
	return filepath.Clean(path), nil
}

// ValidateInputFile checks that path names a readable log in a supported
// format. Remote inputs are only checked for their format.
func ValidateInputFile(path string) error {
	cleanPath, err := ValidateFilePath(path)
	if err != nil {
		return err
	}
	if parser.DetectFormat(cleanPath) == parser.FormatUnknown {
		return bferrors.New(bferrors.CodeInvalidFormat, "unsupported input format").
			WithContext("path", path)
	}
	if storage.IsRemote(cleanPath) {
		return nil
	}

	info, err := os.Stat(cleanPath)
	if os.IsNotExist(err) {
		return bferrors.FileNotFound(path)
	}
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeFileNotFound, "cannot access file")
	}
	if info.IsDir() {
		return bferrors.New(bferrors.CodeInvalidFormat, "path is a directory, expected file").
			WithContext("path", path)
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeFileNotFound, "cannot open file").
			WithContext("path", path)
	}
	file.Close()
	return nil
}

// ValidateOutputPath checks that an artifact of the given kind can be
// written to path. "-" (stdout) is accepted for reports.
func ValidateOutputPath(path string, kind Kind) error {
	if path == "-" && kind == Report {
		return nil
	}
	cleanPath, err := ValidateFilePath(path)
	if err != nil {
		return err
	}
	if kind == Table && writer.DetectFormat(cleanPath) == writer.FormatUnknown {
		return bferrors.New(bferrors.CodeInvalidFormat, "unsupported output format").
			WithContext("path", path)
	}
	if storage.IsRemote(cleanPath) {
		if _, bucket, key := storage.ParsePath(cleanPath); bucket == "" || key == "" {
			return bferrors.New(bferrors.CodeInvalidParameters, "s3 path needs a bucket and a key").
				WithContext("path", path)
		}
		return nil
	}

	dir := filepath.Dir(cleanPath)
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return bferrors.New(bferrors.CodeFileNotFound, "output directory does not exist").
			WithContext("directory", dir)
	}
	if err != nil {
		return bferrors.Wrap(err, bferrors.CodeFileNotFound, "cannot access output directory")
	}
	if !info.IsDir() {
		return bferrors.New(bferrors.CodeInvalidFormat, "parent path is not a directory").
			WithContext("directory", dir)
	}
	return nil
}
