package arcvfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meigma/arcvfs/internal/dirindex"
	"github.com/meigma/arcvfs/internal/fileutil"
	"github.com/meigma/arcvfs/vpath"
)

// Interface compliance.
var _ Handler = (*Archive)(nil)

// stamp identifies the on-disk state an index was built from.
type stamp struct {
	modTime time.Time
	size    int64
}

func (s stamp) equal(o stamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

// Archive implements Handler for one archive file on top of an Engine.
//
// The directory index is built lazily and rebuilt whenever the file's
// modification time or size differs from the state it was built from.
// Calls on one Archive are serialized; nothing coordinates separate
// processes or separate Archive values for the same file.
type Archive struct {
	path   string
	engine Engine

	logger   *zap.Logger
	tempDir  string
	progress ProgressFunc

	mu      sync.Mutex
	idx     dirindex.Index
	members map[string]Member // stored name -> record
	order   []string          // stored names in container order
	built   stamp
}

// New returns an Archive for the file at path. The file need not exist yet;
// Create initializes it. A path naming a directory is rejected.
func New(path string, engine Engine, opts ...Option) (*Archive, error) {
	if path == "" {
		return nil, errors.New("arcvfs: empty archive path")
	}
	if engine == nil {
		return nil, errors.New("arcvfs: nil engine")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: path, Err: ErrIsDirectory}
	}
	a := &Archive{path: path, engine: engine}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// log returns the logger, falling back to a no-op logger if nil.
func (a *Archive) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

// Archive returns the archive file path.
func (a *Archive) Archive() string {
	return a.path
}

// Engine returns the format engine.
func (a *Archive) Engine() Engine {
	return a.engine
}

// Writable reports whether the format supports mutation.
func (a *Archive) Writable() bool {
	return a.engine.Writable()
}

// Valid reports whether the container exists and can be read.
func (a *Archive) Valid() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load() == nil
}

// Create replaces the archive file with an empty container.
func (a *Archive) Create() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.engine.Writable() {
		return a.fail("create", ErrReadOnly)
	}
	if err := fileutil.Commit(a.path, a.engine.WriteEmpty); err != nil {
		return a.fail("create", err)
	}
	a.invalidate()
	a.log().Debug("created archive", zap.String("archive", a.path), zap.String("format", a.engine.Format()))
	return a.load()
}

// invalidate drops the index so the next query rebuilds it.
func (a *Archive) invalidate() {
	a.idx = nil
	a.members = nil
	a.order = nil
}

// load ensures the index reflects the file on disk. It returns
// fs.ErrNotExist when the file is missing and ErrCorrupt when it cannot be
// scanned.
func (a *Archive) load() error {
	info, err := os.Stat(a.path)
	if err != nil {
		a.invalidate()
		return &fs.PathError{Op: "open", Path: a.path, Err: fs.ErrNotExist}
	}
	cur := stamp{modTime: info.ModTime(), size: info.Size()}
	if a.idx != nil && a.built.equal(cur) {
		return nil
	}

	a.progress.Report(ProgressEvent{Stage: StageScanning, Path: a.path})
	members, err := a.engine.Scan(a.path)
	if err != nil {
		a.invalidate()
		a.log().Debug("scan failed", zap.String("archive", a.path), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrCorrupt, a.path, err)
	}

	idx := dirindex.New(a.engine.IndexKind())
	byName := make(map[string]Member, len(members))
	order := make([]string, 0, len(members))
	for _, m := range members {
		if _, dup := byName[m.Name]; !dup {
			order = append(order, m.Name)
		}
		byName[m.Name] = m
		full := m.FullName()
		if full == "" {
			continue
		}
		idx.Insert(dirindex.Entry{
			FullName:       full,
			IsDir:          m.IsDir(),
			Size:           m.Size,
			CompressedSize: m.CompressedSize,
			Method:         m.Method,
			Comment:        m.Comment,
			ModTime:        m.ModTime,
		})
	}
	a.idx, a.members, a.order, a.built = idx, byName, order, cur
	a.log().Debug("rebuilt index",
		zap.String("archive", a.path),
		zap.Int("records", len(members)),
		zap.Int("entries", idx.Len()))
	return nil
}

// lookup returns the index entry at a cleaned full name.
func (a *Archive) lookup(fullName string) (dirindex.Entry, bool) {
	if a.load() != nil {
		return dirindex.Entry{}, false
	}
	return a.idx.Lookup(fullName)
}

// storedName returns the stored name of an existing record for e, if any.
// Synthesized directories have none.
func (a *Archive) storedName(e dirindex.Entry) (string, bool) {
	candidates := []string{e.FullName}
	if e.IsDir {
		candidates = []string{e.FullName + "/", e.FullName}
	}
	for _, name := range candidates {
		if _, ok := a.members[name]; ok {
			return name, true
		}
	}
	// Records may carry a leading slash or other non-canonical spelling.
	for _, name := range a.order {
		m := a.members[name]
		if m.FullName() == e.FullName && m.IsDir() == e.IsDir {
			return name, true
		}
	}
	return "", false
}

// recordsUnder returns the stored names of every record at or beneath
// fullName, in container order.
func (a *Archive) recordsUnder(fullName string) []string {
	var out []string
	for _, name := range a.order {
		full := a.members[name].FullName()
		if full == "" {
			continue
		}
		if vpath.HasPrefix(full, fullName) {
			out = append(out, name)
		}
	}
	return out
}

// open returns the content of the file member e.
func (a *Archive) open(e dirindex.Entry) (io.ReadCloser, error) {
	name, ok := a.storedName(e)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: e.FullName, Err: fs.ErrNotExist}
	}
	return a.engine.Open(a.path, name)
}

// fail logs a failed operation and wraps err with it.
func (a *Archive) fail(op string, err error) error {
	a.log().Warn("archive operation failed",
		zap.String("archive", a.path),
		zap.String("op", op),
		zap.Error(err))
	return fmt.Errorf("%s %s: %w", op, a.path, err)
}
