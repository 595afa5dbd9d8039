// Package registry maps archive files to format handlers.
//
// A Registry holds one factory per file extension and at most one live
// handler per archive file. Fully qualified names that cross nested archive
// boundaries ("outer.zip#virtual#/inner.tar#virtual#/a.txt") are resolved by
// extracting each inner archive through an extraction cache and opening a
// handler on the extracted copy.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/arcvfs"
	"github.com/meigma/arcvfs/extractcache"
	"github.com/meigma/arcvfs/tarvfs"
	"github.com/meigma/arcvfs/vpath"
	"github.com/meigma/arcvfs/zipvfs"
)

var (
	// ErrUnregistered is returned for a file whose extension has no factory.
	ErrUnregistered = errors.New("registry: no engine registered for extension")

	// ErrEmptyExtension is returned by Register for an empty extension.
	ErrEmptyExtension = errors.New("registry: empty extension")

	// ErrNilFactory is returned by Register for a nil factory.
	ErrNilFactory = errors.New("registry: nil factory")
)

// Registry resolves archive files to handlers. It is safe for concurrent
// use; concurrent lookups of the same file receive the same handler.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]arcvfs.Factory // lowercased extension -> factory
	handlers  map[string]arcvfs.Handler // absolute path -> handler

	group       singleflight.Group
	handlerOpts []arcvfs.Option
	logger      *zap.Logger

	cacheOnce sync.Once
	cache     *extractcache.Cache
	cacheErr  error
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Handlers created by the registry log through
// it too. By default nothing is logged.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithHandlerOptions sets options passed to every handler the registry
// constructs.
func WithHandlerOptions(opts ...arcvfs.Option) Option {
	return func(r *Registry) {
		r.handlerOpts = append(r.handlerOpts, opts...)
	}
}

// WithCache sets the cache holding extracted nested archives. Without it a
// cache under the system temporary directory is created on first use.
func WithCache(c *extractcache.Cache) Option {
	return func(r *Registry) {
		r.cache = c
	}
}

// WithoutDefaults leaves the registry without the built-in formats.
func WithoutDefaults() Option {
	return func(r *Registry) {
		r.factories = make(map[string]arcvfs.Factory)
	}
}

// New returns a registry with the ZIP, TAR, TAR.GZ and TAR.ZST engines
// registered.
func New(opts ...Option) *Registry {
	r := &Registry{
		factories: defaultFactories(),
		handlers:  make(map[string]arcvfs.Handler),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

func defaultFactories() map[string]arcvfs.Factory {
	m := make(map[string]arcvfs.Factory)
	add := func(exts []string, f arcvfs.Factory) {
		for _, ext := range exts {
			m[ext] = f
		}
	}
	add(zipvfs.Extensions, zipvfs.Factory)
	add(tarvfs.TarExtensions, tarvfs.Factory)
	add(tarvfs.GzipExtensions, tarvfs.GzipFactory)
	add(tarvfs.ZstdExtensions, tarvfs.ZstdFactory)
	return m
}

// log returns the logger, falling back to a no-op logger if nil.
func (r *Registry) log() *zap.Logger {
	if r.logger == nil {
		return zap.NewNop()
	}
	return r.logger
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// Register associates ext with f, replacing any previous factory. The
// extension is matched case-insensitively and may span several dots, as in
// "tar.gz".
func (r *Registry) Register(ext string, f arcvfs.Factory) error {
	ext = normalizeExt(ext)
	if ext == "" {
		return ErrEmptyExtension
	}
	if f == nil {
		return fmt.Errorf("%w: %q", ErrNilFactory, ext)
	}
	r.mu.Lock()
	r.factories[ext] = f
	r.mu.Unlock()
	return nil
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.factories))
	for ext := range r.factories {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// factoryFor returns the factory of the longest registered extension that
// name ends with.
func (r *Registry) factoryFor(name string) (arcvfs.Factory, bool) {
	base := strings.ToLower(filepath.Base(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		best    arcvfs.Factory
		bestLen int
	)
	for ext, f := range r.factories {
		if len(ext) > bestLen && strings.HasSuffix(base, "."+ext) {
			best, bestLen = f, len(ext)
		}
	}
	return best, best != nil
}

// IsRegisteredArchive reports whether name carries a registered extension.
// The file itself is not consulted.
func (r *Registry) IsRegisteredArchive(name string) bool {
	_, ok := r.factoryFor(name)
	return ok
}

// IsArchive reports whether path carries a registered extension and does not
// name a directory. Its content is not inspected.
func (r *Registry) IsArchive(path string) bool {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return false
	}
	return r.IsRegisteredArchive(path)
}

// Handler returns the handler for the archive file at path. A cached
// handler is reused while its container stays readable; otherwise a new one
// is constructed and cached. The file need not exist.
func (r *Registry) Handler(path string) (arcvfs.Handler, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("registry: resolve %s: %w", path, err)
	}
	if h, ok := r.cached(abs); ok {
		return h, nil
	}
	f, ok := r.factoryFor(abs)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregistered, path)
	}

	v, err, _ := r.group.Do(abs, func() (any, error) {
		if h, ok := r.cached(abs); ok {
			return h, nil
		}
		h, err := f(abs, r.options()...)
		if err != nil {
			return nil, fmt.Errorf("registry: open %s: %w", abs, err)
		}
		r.mu.Lock()
		r.handlers[abs] = h
		r.mu.Unlock()
		r.log().Debug("registered handler", zap.String("archive", abs))
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(arcvfs.Handler), nil
}

// cached returns the live handler for abs, if any.
func (r *Registry) cached(abs string) (arcvfs.Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[abs]
	r.mu.RUnlock()
	if !ok || !h.Valid() {
		return nil, false
	}
	return h, true
}

func (r *Registry) options() []arcvfs.Option {
	if r.logger == nil {
		return r.handlerOpts
	}
	opts := make([]arcvfs.Option, 0, len(r.handlerOpts)+1)
	opts = append(opts, arcvfs.WithLogger(r.logger))
	return append(opts, r.handlerOpts...)
}

// Dispose forgets the handler for path so the next lookup constructs a new
// one from disk.
func (r *Registry) Dispose(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	r.mu.Lock()
	delete(r.handlers, abs)
	r.mu.Unlock()
}

// CreateEmptyArchive replaces the file at path with an empty container of
// the format its extension names. On failure the previous file is left as
// it was.
func (r *Registry) CreateEmptyArchive(path string) error {
	if !r.IsRegisteredArchive(path) {
		return fmt.Errorf("%w: %s", ErrUnregistered, path)
	}
	h, err := r.Handler(path)
	if err != nil {
		return err
	}
	return h.Create()
}

// VirtualObject resolves a fully qualified name to a member. A name without
// an archive boundary resolves to the root of the archive it names. A
// member that cannot be found, including one inside a missing nested
// archive, yields a placeholder for which Exists reports false.
func (r *Registry) VirtualObject(name string) (*arcvfs.VirtualChild, error) {
	if !vpath.IsVirtual(name) {
		h, err := r.Handler(name)
		if err != nil {
			return nil, err
		}
		return h.VirtualFile(""), nil
	}
	p := vpath.Parse(name)
	h, err := r.Resolve(p.ContainingArchivePath())
	if errors.Is(err, fs.ErrNotExist) {
		return arcvfs.Placeholder(p.VirtualPart(), p.ContainingArchivePath()), nil
	}
	if err != nil {
		return nil, err
	}
	return h.VirtualFile(p.VirtualPart()), nil
}

// Resolve returns the handler for the archive at path, which may itself lie
// inside other archives. Nested archives are read from extracted copies;
// changes made through their handlers do not reach the enclosing archive.
func (r *Registry) Resolve(path string) (arcvfs.Handler, error) {
	if !vpath.IsVirtual(path) {
		return r.Handler(path)
	}
	p := vpath.Parse(path)
	if !r.IsRegisteredArchive(p.VirtualPart()) {
		return nil, fmt.Errorf("%w: %s", ErrUnregistered, path)
	}
	outer, err := r.Resolve(p.ContainingArchivePath())
	if err != nil {
		return nil, err
	}
	c, err := r.extractCache()
	if err != nil {
		return nil, err
	}
	local, err := c.Fetch(outer, p.VirtualPart())
	if err != nil {
		return nil, err
	}
	r.log().Debug("resolved nested archive",
		zap.String("path", p.Path()),
		zap.String("local", local))
	return r.Handler(local)
}

func (r *Registry) extractCache() (*extractcache.Cache, error) {
	r.cacheOnce.Do(func() {
		if r.cache != nil {
			return
		}
		dir := filepath.Join(os.TempDir(), "arcvfs-nested")
		r.cache, r.cacheErr = extractcache.New(dir, extractcache.WithLogger(r.logger))
	})
	return r.cache, r.cacheErr
}
