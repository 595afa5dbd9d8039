package fileutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// LocalFile is one file or directory found beneath a local root.
type LocalFile struct {
	// Path is the absolute or root-relative path on disk.
	Path string

	// Rel is the slash-separated path relative to the walk root.
	Rel string

	IsDir bool
}

// ListTree returns every file and directory beneath root, excluding root
// itself, sorted so that parents precede their children. Symlinks are not
// followed.
func ListTree(root string) ([]LocalFile, error) {
	var (
		mu  sync.Mutex
		out []LocalFile
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		mu.Lock()
		out = append(out, LocalFile{Path: p, Rel: filepath.ToSlash(rel), IsDir: d.IsDir()})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	slices.SortFunc(out, func(a, b LocalFile) int {
		return strings.Compare(a.Rel, b.Rel)
	})
	return out, nil
}
