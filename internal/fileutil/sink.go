package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// WriteFile writes the output of fill to dest atomically.
//
// Content goes to a temp file in dest's directory, which is renamed over
// dest once fill succeeds. Parent directories are created as needed. A
// non-zero modTime is applied before the rename, so a partially written
// file is never visible at dest.
func WriteFile(dest string, modTime time.Time, fill func(w io.Writer) error) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".arcvfs-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod: %w", err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(tmpPath, modTime, modTime); err != nil {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("chtimes: %w", err)
		}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename to %s: %w", dest, err)
	}
	return nil
}

// MakeDir creates dir and its parents and applies a non-zero modTime.
func MakeDir(dir string, modTime time.Time) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(dir, modTime, modTime); err != nil {
			return fmt.Errorf("chtimes: %w", err)
		}
	}
	return nil
}
