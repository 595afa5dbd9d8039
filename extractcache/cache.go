// Package extractcache keeps extracted copies of archive members on disk.
//
// Entries are keyed by the sha256 digest of the archive's absolute path and
// the member's full name, and laid out as
//
//	<dir>/<shard>/<digest>/<leaf name>
//
// so the extracted file keeps the member's name and extension. The entry
// directory's modification time records the member's timestamp and the
// file's modification time records its last use. A later Fetch whose member
// timestamp or size differs extracts it again; pruning removes the least
// recently used files first.
package extractcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/arcvfs"
	"github.com/meigma/arcvfs/vpath"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
)

var (
	// ErrEmptyDir is returned by New for an empty cache directory.
	ErrEmptyDir = errors.New("extractcache: cache dir is empty")

	// ErrTooLarge is returned by Fetch for a member larger than the cache's
	// size limit.
	ErrTooLarge = errors.New("extractcache: member exceeds cache size limit")
)

// Cache is a directory of extracted archive members. It is safe for
// concurrent use; concurrent fetches of the same member extract it once.
type Cache struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64
	logger         *zap.Logger

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the permissions of cache directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMaxBytes prunes the cache to at most n bytes after every fetch and
// refuses members larger than n. Zero disables the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New creates a cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, ErrEmptyDir
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 {
		return nil, errors.New("extractcache: shard prefix length must be >= 0")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) log() *zap.Logger {
	if c.logger == nil {
		return zap.NewNop()
	}
	return c.logger
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

// Key returns the cache key of a member.
func Key(archive, fullName string) digest.Digest {
	if abs, err := filepath.Abs(archive); err == nil {
		archive = abs
	}
	return digest.FromString(archive + "\x00" + vpath.CleanMember(fullName))
}

// entryDir returns the directory holding the entry for key.
func (c *Cache) entryDir(key digest.Digest) string {
	hexHash := key.Encoded()
	if c.shardPrefixLen <= 0 {
		return filepath.Join(c.dir, hexHash)
	}
	prefixLen := min(c.shardPrefixLen, len(hexHash))
	return filepath.Join(c.dir, hexHash[:prefixLen], hexHash)
}

// Fetch returns the path of an up-to-date extracted copy of the file member
// fullName of h, extracting it if needed. The returned file is the most
// recently used entry and survives the prune that follows the fetch.
func (c *Cache) Fetch(h arcvfs.Handler, fullName string) (string, error) {
	fullName = vpath.CleanMember(fullName)
	vc := h.VirtualFile(fullName)
	if !vc.Exists() {
		return "", &fs.PathError{Op: "fetch", Path: vc.AbsolutePath(), Err: fs.ErrNotExist}
	}
	if vc.IsDirectory {
		return "", &fs.PathError{Op: "fetch", Path: vc.AbsolutePath(), Err: arcvfs.ErrIsDirectory}
	}

	stamp := h.TimeStampFor(fullName)
	size := h.SizeFor(fullName)
	if c.maxBytes > 0 && size > c.maxBytes {
		return "", &fs.PathError{Op: "fetch", Path: vc.AbsolutePath(), Err: ErrTooLarge}
	}

	key := Key(h.Archive(), fullName)
	dir := c.entryDir(key)
	path := filepath.Join(dir, vc.Name)

	if !c.fresh(dir, path, stamp, size) {
		_, err, _ := c.group.Do(key.String(), func() (any, error) {
			if c.fresh(dir, path, stamp, size) {
				return nil, nil
			}
			if err := os.MkdirAll(dir, c.dirPerm); err != nil {
				return nil, err
			}
			if err := h.ExtractVirtualFile(fullName, path, arcvfs.Binary); err != nil {
				return nil, err
			}
			if err := os.Chtimes(dir, stamp, stamp); err != nil {
				return nil, fmt.Errorf("chtimes: %w", err)
			}
			c.log().Debug("extracted member",
				zap.String("archive", h.Archive()),
				zap.String("member", fullName),
				zap.String("key", key.String()))
			return nil, nil
		})
		if err != nil {
			return "", err
		}
	}

	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		return "", fmt.Errorf("chtimes: %w", err)
	}
	if c.maxBytes > 0 {
		if _, _, err := pruneDir(c.dir, c.maxBytes, path); err != nil {
			c.log().Warn("prune failed", zap.String("dir", c.dir), zap.Error(err))
		}
	}
	return path, nil
}

// fresh reports whether path holds a copy of a member of the given size
// extracted at stamp.
func (c *Cache) fresh(dir, path string, stamp time.Time, size int64) bool {
	info, err := os.Stat(path)
	if err != nil || info.Size() != size {
		return false
	}
	dirInfo, err := os.Stat(dir)
	if err != nil {
		return false
	}
	return dirInfo.ModTime().Unix() == stamp.Unix()
}

// Invalidate removes the cached copy of a member, if any.
func (c *Cache) Invalidate(archive, fullName string) error {
	return os.RemoveAll(c.entryDir(Key(archive, fullName)))
}

// Clear removes every cached entry.
func (c *Cache) Clear() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, c.dirPerm)
}

// SizeBytes returns the total size of cached files.
func (c *Cache) SizeBytes() (int64, error) {
	return dirSize(c.dir)
}

// Prune removes cached files until the total size is at most targetBytes.
// The least recently used files go first. It returns the bytes freed and
// the bytes remaining.
func (c *Cache) Prune(targetBytes int64) (freed, remaining int64, err error) {
	return pruneDir(c.dir, targetBytes, "")
}
