// Package compress wraps archive streams in one of the supported
// compression algorithms. The whole tar stream is compressed, not the
// individual entries, so corruption anywhere surfaces as a checksum
// failure when the stream is walked.
package compress

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type Algorithm string

const (
	Gzip Algorithm = "gzip"
	Lz4  Algorithm = "lz4"
	Zstd Algorithm = "zstd"
	None Algorithm = "none"
)

// Parse validates a configured algorithm name.
func Parse(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(s)) {
	case Gzip:
		return Gzip, nil
	case Lz4:
		return Lz4, nil
	case Zstd, "":
		return Zstd, nil
	case None:
		return None, nil
	}
	return "", ErrUnsupportedAlgo(s)
}

// Ext returns the extension appended after ".tar".
func Ext(algo Algorithm) string {
	switch algo {
	case Gzip:
		return ".gz"
	case Lz4:
		return ".lz4"
	case Zstd:
		return ".zst"
	}
	return ""
}

// DetectAlgorithm infers the algorithm from an archive file name.
func DetectAlgorithm(path string) (Algorithm, error) {
	switch {
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return Gzip, nil
	case strings.HasSuffix(path, ".tar.lz4"):
		return Lz4, nil
	case strings.HasSuffix(path, ".tar.zst"):
		return Zstd, nil
	case strings.HasSuffix(path, ".tar"):
		return None, nil
	}
	return "", fmt.Errorf("cannot detect compression from file name %q", path)
}

// NewWriter wraps w at the algorithm's maximum ratio. Archives are
// written once and read rarely, so the slowest, densest setting wins.
func NewWriter(w io.Writer, algo Algorithm) (io.WriteCloser, error) {
	switch algo {
	case Gzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case Lz4:
		lw := lz4.NewWriter(w)
		if err := lw.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, err
		}
		return lw, nil
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	case None:
		return nopWriteCloser{w}, nil
	}
	return nil, ErrUnsupportedAlgo(algo)
}

// NewReader wraps r in the matching decompressor.
func NewReader(r io.Reader, algo Algorithm) (io.ReadCloser, error) {
	switch algo {
	case Gzip:
		return gzip.NewReader(r)
	case Lz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case None:
		return io.NopCloser(r), nil
	}
	return nil, ErrUnsupportedAlgo(algo)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type ErrUnsupportedAlgo Algorithm

func (e ErrUnsupportedAlgo) Error() string {
	return "unsupported compression algorithm: " + string(e)
}
