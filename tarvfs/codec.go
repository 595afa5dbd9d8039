package tarvfs

import (
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/meigma/arcvfs"
	"github.com/meigma/arcvfs/internal/zstdpool"
)

// codec wraps the tar block stream in a compression layer.
type codec interface {
	reader(r io.Reader) (io.ReadCloser, error)
	writer(w io.Writer) (io.WriteCloser, error)
}

type plainCodec struct{}

func (plainCodec) reader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

func (plainCodec) writer(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

type gzipCodec struct {
	level int
}

func (gzipCodec) reader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func (c gzipCodec) writer(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, c.level)
}

type zstdCodec struct {
	pool *zstdpool.Pool
}

func (c zstdCodec) reader(r io.Reader) (io.ReadCloser, error) {
	return c.pool.NewReader(r)
}

func (zstdCodec) writer(io.Writer) (io.WriteCloser, error) {
	return nil, arcvfs.ErrReadOnly
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
