package fileutil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Sibling file suffixes used while a container is replaced.
const (
	TempSuffix = "temp"
	OldSuffix  = "old"
)

const commitBufferSize = 64 * 1024

// Commit replaces target with the output of write.
//
// The new content is written to "<target>temp". Then target is renamed to
// "<target>old", the temp file is renamed to target and the old file is
// removed. If write fails, or either rename fails, the temp file is removed
// and target is left as it was. A missing target is simply created.
func Commit(target string, write func(w io.Writer) error) error {
	tmpPath := target + TempSuffix
	oldPath := target + OldSuffix

	mode := fs.FileMode(0o644)
	info, statErr := os.Stat(target)
	hadOriginal := statErr == nil
	if hadOriginal {
		mode = info.Mode().Perm()
	}

	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmpPath, err)
	}
	bw := bufio.NewWriterSize(tmp, commitBufferSize)
	if err := write(bw); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("flush %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}

	if !hadOriginal {
		if err := os.Rename(tmpPath, target); err != nil {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("install %s: %w", target, err)
		}
		return nil
	}

	_ = os.Remove(oldPath)
	if err := os.Rename(target, oldPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move aside %s: %w", target, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		restoreErr := os.Rename(oldPath, target)
		_ = os.Remove(tmpPath)
		return errors.Join(fmt.Errorf("install %s: %w", target, err), restoreErr)
	}
	_ = os.Remove(oldPath)
	return nil
}
