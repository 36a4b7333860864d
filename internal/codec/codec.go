// Package codec provides the pluggable compression formats used for all
// persisted graphs. A deployment selects one codec; the codec's file
// extension keys every file in the graph store.
package codec

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// Codec wraps a byte stream with one compression format.
type Codec interface {
	// Name is the configuration value selecting this codec.
	Name() string
	// Extension is the file suffix for graphs persisted with this codec.
	Extension() string
	// Compress wraps w; the returned writer must be closed to flush.
	Compress(w io.Writer) (io.WriteCloser, error)
	// Decompress wraps r; returns an error if the stream header is invalid.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// Codec names accepted by Parse.
const (
	NameGzip = "gzip"
	NameLZMA = "lzma"
)

// Parse resolves a configuration value to a Codec.
func Parse(name string) (Codec, error) {
	switch name {
	case NameGzip:
		return Gzip{}, nil
	case NameLZMA:
		return LZMA{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Gzip is the gzip codec (.gz).
type Gzip struct{}

// Name implements Codec.
func (Gzip) Name() string { return NameGzip }

// Extension implements Codec.
func (Gzip) Extension() string { return ".gz" }

// Compress implements Codec.
func (Gzip) Compress(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

// Decompress implements Codec.
func (Gzip) Decompress(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	return zr, nil
}

// LZMA is the xz/lzma codec (.xz).
type LZMA struct{}

// Name implements Codec.
func (LZMA) Name() string { return NameLZMA }

// Extension implements Codec.
func (LZMA) Extension() string { return ".xz" }

// Compress implements Codec.
func (LZMA) Compress(w io.Writer) (io.WriteCloser, error) {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("xz writer: %w", err)
	}
	return xw, nil
}

// Decompress implements Codec.
func (LZMA) Decompress(r io.Reader) (io.ReadCloser, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("xz reader: %w", err)
	}
	return readCloser{xr}, nil
}

// readCloser adapts the xz reader, which has no Close of its own.
type readCloser struct {
	io.Reader
}

func (readCloser) Close() error { return nil }
