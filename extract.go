package arcvfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/meigma/arcvfs/internal/dirindex"
	"github.com/meigma/arcvfs/internal/fileutil"
	"github.com/meigma/arcvfs/internal/textenc"
	"github.com/meigma/arcvfs/vpath"
)

// ExtractVirtualFile copies the member at fullName to dest. A directory
// member is created as a directory.
func (a *Archive) ExtractVirtualFile(fullName, dest string, enc Transcode) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	fullName = vpath.CleanMember(fullName)
	e, ok := a.lookup(fullName)
	if !ok {
		return a.fail("extract", &fs.PathError{Op: "extract", Path: fullName, Err: fs.ErrNotExist})
	}
	if err := a.extract(e, dest, enc, 1, 1); err != nil {
		return a.fail("extract", err)
	}
	return nil
}

// ExtractVirtualDirectory extracts the subtree at fullName. With an empty
// dest it is written to destParent joined with the directory's name, or to
// destParent itself for the archive root.
func (a *Archive) ExtractVirtualDirectory(fullName, destParent, dest string, enc Transcode) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	fullName = vpath.CleanMember(fullName)
	root, ok := a.lookup(fullName)
	if !ok {
		return a.fail("extract", &fs.PathError{Op: "extract", Path: fullName, Err: fs.ErrNotExist})
	}
	if !root.IsDir {
		return a.fail("extract", &fs.PathError{Op: "extract", Path: fullName, Err: ErrNotDirectory})
	}
	if dest == "" {
		_, name := vpath.Split(fullName)
		dest = filepath.Join(destParent, name)
	}

	var entries []dirindex.Entry
	a.idx.Walk(fullName, func(e dirindex.Entry) bool {
		entries = append(entries, e)
		return true
	})

	targets := make([]string, len(entries))
	for i, e := range entries {
		rel := strings.TrimPrefix(e.FullName, fullName)
		rel = strings.TrimPrefix(rel, "/")
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return a.fail("extract", &fs.PathError{Op: "extract", Path: e.FullName, Err: fs.ErrInvalid})
		}
		targets[i] = filepath.Join(dest, filepath.FromSlash(rel))
	}

	if err := os.MkdirAll(dest, 0o750); err != nil {
		return a.fail("extract", err)
	}
	for i, e := range entries {
		if e.IsDir {
			if err := os.MkdirAll(targets[i], 0o750); err != nil {
				return a.fail("extract", err)
			}
			continue
		}
		if err := a.extract(e, targets[i], enc, i+1, len(entries)); err != nil {
			return a.fail("extract", err)
		}
	}

	// Directory times last: writing children touches them.
	for i := len(entries) - 1; i >= 0; i-- {
		if e := entries[i]; e.IsDir && !e.ModTime.IsZero() {
			_ = os.Chtimes(targets[i], e.ModTime, e.ModTime)
		}
	}
	if !root.ModTime.IsZero() {
		_ = os.Chtimes(dest, root.ModTime, root.ModTime)
	}

	a.log().Debug("extracted directory",
		zap.String("archive", a.path),
		zap.String("member", fullName),
		zap.String("dest", dest),
		zap.Int("entries", len(entries)))
	return nil
}

// extract writes one entry to dest.
func (a *Archive) extract(e dirindex.Entry, dest string, enc Transcode, done, total int) error {
	if e.IsDir {
		return fileutil.MakeDir(dest, e.ModTime)
	}
	rc, err := a.open(e)
	if err != nil {
		return err
	}
	defer rc.Close()

	var r io.Reader = &fileutil.CountingReader{
		R: rc,
		OnRead: func(n int64) {
			a.progress.Report(ProgressEvent{
				Stage:      StageExtracting,
				Path:       e.FullName,
				BytesDone:  n,
				BytesTotal: e.Size,
				FilesDone:  done - 1,
				FilesTotal: total,
			})
		},
	}
	if enc.Text {
		tr, _, err := textenc.NewReader(r, sourceEncoding(enc), targetEncoding(enc))
		if err != nil {
			return err
		}
		r = tr
	}

	err = fileutil.WriteFile(dest, e.ModTime, func(w io.Writer) error {
		if _, err := io.Copy(w, r); err != nil {
			return fmt.Errorf("copy %s: %w", e.FullName, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.progress.Report(ProgressEvent{
		Stage:      StageExtracting,
		Path:       e.FullName,
		BytesDone:  e.Size,
		BytesTotal: e.Size,
		FilesDone:  done,
		FilesTotal: total,
	})
	return nil
}

// Files extracts each member to a new temporary file and returns the paths
// in order. Directories and missing members are errors. On failure every
// file already created is removed and no paths are returned.
func (a *Archive) Files(fullNames []string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []string
	cleanup := func() {
		for _, p := range out {
			_ = os.Remove(p)
		}
	}
	for _, name := range fullNames {
		name = vpath.CleanMember(name)
		e, ok := a.lookup(name)
		if !ok {
			cleanup()
			return nil, a.fail("files", &fs.PathError{Op: "extract", Path: name, Err: fs.ErrNotExist})
		}
		if e.IsDir {
			cleanup()
			return nil, a.fail("files", &fs.PathError{Op: "extract", Path: name, Err: ErrIsDirectory})
		}

		_, leaf := vpath.Split(name)
		tmp, err := os.CreateTemp(a.tempDir, "arcvfs-*-"+strings.ReplaceAll(leaf, "*", "_"))
		if err != nil {
			cleanup()
			return nil, a.fail("files", err)
		}
		path := tmp.Name()
		_ = tmp.Close()
		out = append(out, path)

		if err := a.extract(e, path, Binary, len(out), len(fullNames)); err != nil {
			cleanup()
			return nil, a.fail("files", err)
		}
	}
	return out, nil
}

func sourceEncoding(enc Transcode) string {
	if enc.Source == "" {
		return textenc.UTF8
	}
	return enc.Source
}

func targetEncoding(enc Transcode) string {
	if enc.Target == "" {
		return textenc.UTF8
	}
	return enc.Target
}
