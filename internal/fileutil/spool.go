package fileutil

import (
	"fmt"
	"io"
	"os"
)

// Spooled is a stream copied to a temporary file so its exact size is known
// before it is written into a container.
type Spooled struct {
	Path string
	Size int64
}

// Open opens the spooled content for reading.
func (s *Spooled) Open() (io.ReadCloser, error) {
	return os.Open(s.Path)
}

// Remove deletes the temporary file.
func (s *Spooled) Remove() {
	if s != nil && s.Path != "" {
		_ = os.Remove(s.Path)
	}
}

// Spool copies r into a new temporary file in dir ("" uses os.TempDir).
func Spool(dir string, r io.Reader) (*Spooled, error) {
	tmp, err := os.CreateTemp(dir, ".arcvfs-spool-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	cw := &CountingWriter{W: tmp}
	if _, err := io.Copy(cw, r); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("spool content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("close spool file: %w", err)
	}
	return &Spooled{Path: tmp.Name(), Size: cw.N}, nil
}
