package shared

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// gzipCompressionLevel is used for all outputs. BestSpeed uses 30% more space and saves roughly the same in time.
const gzipCompressionLevel = gzip.BestSpeed

// NewGzipWriter creates a gzip writer of the shared compression level
func NewGzipWriter(w io.Writer) *gzip.Writer {
	gz, err := gzip.NewWriterLevel(w, gzipCompressionLevel)
	if err != nil {
		panic(err) // only for invalid level
	}
	return gz
}

// GzipBytes compresses data in one go
func GzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 64)
	gz := NewGzipWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GunzipBytes decompresses data in one go
func GunzipBytes(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
