// Package fileutil holds local file helpers shared by the archive engines:
// byte counting, spooling streams to disk, directory enumeration and the
// container replacement protocol.
package fileutil

import (
	"errors"
	"io"
	"math"
)

// ErrOverflow indicates a counter exceeded its maximum value.
var ErrOverflow = errors.New("fileutil: counter overflow")

// CountingWriter wraps a writer and counts bytes written.
type CountingWriter struct {
	W io.Writer
	N int64
}

// Write implements io.Writer.
func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.W.Write(p)
	if n > 0 {
		if cw.N > math.MaxInt64-int64(n) {
			return n, ErrOverflow
		}
		cw.N += int64(n)
	}
	return n, err
}

// CountingReader wraps a reader and reports progress every time a read
// completes. OnRead receives the running total.
type CountingReader struct {
	R      io.Reader
	N      int64
	OnRead func(total int64)
}

// Read implements io.Reader.
func (cr *CountingReader) Read(p []byte) (int, error) {
	n, err := cr.R.Read(p)
	if n > 0 {
		cr.N += int64(n)
		if cr.OnRead != nil {
			cr.OnRead(cr.N)
		}
	}
	return n, err
}
