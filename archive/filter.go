// Package archive provides read/write primitives over ar and tar (USTAR)
// containers with gzip/xz/bzip2 filters, and path-sanitized unpack-to-disk,
// implementing spec §4.3 / §6 (C3).
package archive

import (
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

// Filter identifies a compression filter by file extension, matching the
// teacher's internal/common.CompressionFormat convention.
type Filter string

const (
	FilterNone  Filter = ""
	FilterGzip  Filter = "gz"
	FilterBzip2 Filter = "bz2"
	FilterXZ    Filter = "xz"
)

// DetectFilter derives the compression filter from a filename's extension.
func DetectFilter(name string) Filter {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".tgz":
		return FilterGzip
	case ".bz2", ".tbz2", ".tbz":
		return FilterBzip2
	case ".xz", ".txz":
		return FilterXZ
	default:
		return FilterNone
	}
}

// NewReader wraps r with a decompressing reader for the given filter.
func NewReader(filter Filter, r io.Reader) (io.Reader, error) {
	switch filter {
	case FilterNone:
		return r, nil
	case FilterGzip:
		return gzip.NewReader(r)
	case FilterBzip2:
		return bzip2.NewReader(r, nil)
	case FilterXZ:
		return xz.NewReader(r)
	default:
		return nil, fmt.Errorf("archive: unsupported filter %q", filter)
	}
}

// WriteCloser is the common interface of every filter's compressing writer.
type WriteCloser interface {
	io.WriteCloser
}

// NewWriter wraps w with a compressing writer for the given filter.
func NewWriter(filter Filter, w io.Writer) (WriteCloser, error) {
	switch filter {
	case FilterNone:
		return nopWriteCloser{w}, nil
	case FilterGzip:
		return gzip.NewWriter(w), nil
	case FilterBzip2:
		return bzip2.NewWriter(w, nil)
	case FilterXZ:
		return xz.NewWriter(w)
	default:
		return nil, fmt.Errorf("archive: unsupported filter %q", filter)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
