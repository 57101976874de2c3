// Package util holds file helpers shared by readers and writers.
package util

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var gzipMagic = []byte{0x1f, 0x8b}

// OpenFile opens path for reading. Gzip content is decompressed whether or
// not the name ends in .gz; it is recognised by its magic bytes. Closing the
// returned reader closes the file.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	head, _ := br.Peek(len(gzipMagic))
	if !IsGzipFile(path) && string(head) != string(gzipMagic) {
		return &fileReader{Reader: br, file: f}, nil
	}

	zr, err := gzip.NewReader(br)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileReader{Reader: zr, file: f, gz: zr}, nil
}

type fileReader struct {
	io.Reader
	file *os.File
	gz   *gzip.Reader
}

func (r *fileReader) Close() error {
	if r.gz != nil {
		r.gz.Close()
	}
	return r.file.Close()
}

// IsGzipFile reports whether the path names a .gz file.
func IsGzipFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gz")
}

// StripCompression removes a trailing .gz from path.
func StripCompression(path string) string {
	if IsGzipFile(path) {
		return path[:len(path)-len(".gz")]
	}
	return path
}

// BaseFormat returns the lower-cased extension under any .gz suffix:
// "log.csv.gz" -> ".csv".
func BaseFormat(path string) string {
	return strings.ToLower(filepath.Ext(StripCompression(path)))
}
