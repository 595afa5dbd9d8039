package extractcache

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
)

// cached is one extracted file.
type cached struct {
	path    string
	size    int64
	lastUse time.Time
}

// scan lists the extracted files beneath root. A missing root holds none.
func scan(root string) ([]cached, error) {
	var (
		mu  sync.Mutex
		out []cached
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mu.Lock()
		out = append(out, cached{path: p, size: info.Size(), lastUse: info.ModTime()})
		mu.Unlock()
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return out, err
}

func dirSize(root string) (int64, error) {
	files, err := scan(root)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.size
	}
	return total, nil
}

// pruneDir removes the least recently used files beneath root until at most
// targetBytes remain. The file at keep is never removed.
func pruneDir(root string, targetBytes int64, keep string) (freed, remaining int64, err error) {
	files, err := scan(root)
	if err != nil {
		return 0, 0, err
	}
	for _, f := range files {
		remaining += f.size
	}
	targetBytes = max(targetBytes, 0)
	if remaining <= targetBytes {
		return 0, remaining, nil
	}

	slices.SortFunc(files, func(a, b cached) int {
		if c := a.lastUse.Compare(b.lastUse); c != 0 {
			return c
		}
		return strings.Compare(a.path, b.path)
	})
	for _, f := range files {
		if remaining <= targetBytes {
			break
		}
		if f.path == keep {
			continue
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return freed, remaining, err
		}
		_ = os.Remove(filepath.Dir(f.path))
		remaining -= f.size
		freed += f.size
	}
	return freed, remaining, nil
}
