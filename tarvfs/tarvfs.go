// Package tarvfs implements the TAR archive engines: plain TAR, TAR
// compressed with gzip, and read-only TAR compressed with zstd.
//
// Headers are read and written with package tarentry. Names longer than the
// 100-byte name slot are split across the ustar prefix slot, or stored in a
// PAX path record when they cannot be split. Every record that is not a GNU
// long-name or PAX extension record is reported as a member, and members
// keep their PAX records, so links, special files and extended attributes
// are carried through rewrites.
package tarvfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/meigma/arcvfs"
	"github.com/meigma/arcvfs/internal/fileutil"
	"github.com/meigma/arcvfs/internal/zstdpool"
	"github.com/meigma/arcvfs/tarentry"
)

// Format names.
const (
	FormatTar     = "tar"
	FormatTarGzip = "tar.gz"
	FormatTarZstd = "tar.zst"
)

// Extensions handled by each engine.
var (
	TarExtensions  = []string{"tar"}
	GzipExtensions = []string{"tgz", "tar.gz"}
	ZstdExtensions = []string{"tzst", "tar.zst"}
)

// Engine reads and rewrites one flavor of TAR container.
type Engine struct {
	format   string
	codec    codec
	writable bool
}

// Engines.
var (
	Tar     = Engine{format: FormatTar, codec: plainCodec{}, writable: true}
	TarGzip = Engine{format: FormatTarGzip, codec: gzipCodec{level: gzip.DefaultCompression}, writable: true}
	TarZstd = Engine{format: FormatTarZstd, codec: zstdCodec{pool: zstdpool.Default}}
)

// Interface compliance.
var _ arcvfs.Engine = Engine{}

// New returns a handler for the TAR file at path.
func New(path string, opts ...arcvfs.Option) (*arcvfs.Archive, error) {
	return arcvfs.New(path, Tar, opts...)
}

// NewGzip returns a handler for the gzip-compressed TAR file at path.
func NewGzip(path string, opts ...arcvfs.Option) (*arcvfs.Archive, error) {
	return arcvfs.New(path, TarGzip, opts...)
}

// NewZstd returns a read-only handler for the zstd-compressed TAR file at
// path.
func NewZstd(path string, opts ...arcvfs.Option) (*arcvfs.Archive, error) {
	return arcvfs.New(path, TarZstd, opts...)
}

// Factory constructs plain TAR handlers for a registry.
func Factory(path string, opts ...arcvfs.Option) (arcvfs.Handler, error) {
	a, err := New(path, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GzipFactory constructs TAR.GZ handlers for a registry.
func GzipFactory(path string, opts ...arcvfs.Option) (arcvfs.Handler, error) {
	a, err := NewGzip(path, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ZstdFactory constructs TAR.ZST handlers for a registry.
func ZstdFactory(path string, opts ...arcvfs.Option) (arcvfs.Handler, error) {
	a, err := NewZstd(path, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Format implements arcvfs.Engine.
func (e Engine) Format() string { return e.format }

// IndexKind implements arcvfs.Engine.
func (Engine) IndexKind() arcvfs.IndexKind { return arcvfs.IndexTree }

// Writable implements arcvfs.Engine.
func (e Engine) Writable() bool { return e.writable }

// stream is an open container positioned before its first record.
type stream struct {
	f  *os.File
	rc io.ReadCloser
	tr *tarentry.Reader
}

func (e Engine) open(archive string) (*stream, error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, err
	}
	rc, err := e.codec.reader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s stream: %w", e.format, err)
	}
	return &stream{f: f, rc: rc, tr: tarentry.NewReader(rc)}, nil
}

func (s *stream) Read(p []byte) (int, error) {
	return s.tr.Read(p)
}

func (s *stream) Close() error {
	return errors.Join(s.rc.Close(), s.f.Close())
}

// storedName returns the member name of a header. Directory records are
// always reported with a trailing slash.
func storedName(h *tarentry.Entry) string {
	name := h.FullName()
	if h.IsDir() && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return name
}

func member(h *tarentry.Entry) arcvfs.Member {
	mode := fs.FileMode(h.Mode) & fs.ModePerm
	if h.IsDir() {
		mode |= fs.ModeDir
	}
	return arcvfs.Member{
		Name:           storedName(h),
		Size:           h.Size,
		CompressedSize: h.Size,
		ModTime:        h.ModTime,
		Mode:           mode,
	}
}

// Scan implements arcvfs.Engine.
func (e Engine) Scan(archive string) ([]arcvfs.Member, error) {
	s, err := e.open(archive)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var members []arcvfs.Member
	for {
		h, err := s.tr.Next()
		if errors.Is(err, io.EOF) {
			return members, nil
		}
		if err != nil {
			return nil, err
		}
		members = append(members, member(h))
	}
}

// Open implements arcvfs.Engine. The stream is read sequentially; when a
// name is stored more than once the last record wins.
func (e Engine) Open(archive, name string) (io.ReadCloser, error) {
	last, err := e.lastOrdinal(archive, name)
	if err != nil {
		return nil, err
	}

	s, err := e.open(archive)
	if err != nil {
		return nil, err
	}
	for i := 0; ; i++ {
		if _, err := s.tr.Next(); err != nil {
			s.Close()
			return nil, err
		}
		if i == last {
			return s, nil
		}
	}
}

// lastOrdinal returns the position of the last record stored as name.
func (e Engine) lastOrdinal(archive, name string) (int, error) {
	s, err := e.open(archive)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	last := -1
	for i := 0; ; i++ {
		h, err := s.tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		if storedName(h) == name {
			last = i
		}
	}
	if last < 0 {
		return 0, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return last, nil
}

// WriteEmpty implements arcvfs.Engine.
func (e Engine) WriteEmpty(dst io.Writer) error {
	return e.Rewrite("", dst, arcvfs.NewPlan())
}

// Rewrite implements arcvfs.Engine.
func (e Engine) Rewrite(archive string, dst io.Writer, p *arcvfs.Plan) error {
	if !e.writable {
		return arcvfs.ErrReadOnly
	}
	wc, err := e.codec.writer(dst)
	if err != nil {
		return err
	}
	tw := tarentry.NewWriter(wc)

	if archive != "" {
		if err := e.copyMembers(archive, tw, p); err != nil {
			return err
		}
	}
	for i, add := range p.Append {
		if err := appendMember(tw, add, i, len(p.Append), p.Progress); err != nil {
			return fmt.Errorf("append %s: %w", add.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return wc.Close()
}

func (e Engine) copyMembers(archive string, tw *tarentry.Writer, p *arcvfs.Plan) error {
	s, err := e.open(archive)
	if err != nil {
		return err
	}
	defer s.Close()

	copied := 0
	for {
		h, err := s.tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		name := storedName(h)
		if p.Omit[name] {
			continue
		}
		if newName, ok := p.Rename[name]; ok {
			h.SetFullName(newName)
		}
		if err := tw.WriteHeader(h); err != nil {
			return fmt.Errorf("copy %s: %w", name, err)
		}
		if _, err := io.Copy(tw, s.tr); err != nil {
			return fmt.Errorf("copy %s: %w", name, err)
		}
		copied++
		p.Progress.Report(arcvfs.ProgressEvent{
			Stage:     arcvfs.StageCopying,
			Path:      name,
			FilesDone: copied,
		})
	}
}

func appendMember(tw *tarentry.Writer, add arcvfs.Addition, i, n int, progress arcvfs.ProgressFunc) error {
	h := tarentry.New(add.Name)
	if !add.ModTime.IsZero() {
		h.ModTime = add.ModTime
	}
	if perm := add.Mode.Perm(); perm != 0 {
		h.Mode = int64(perm)
	}
	if !add.IsDir() {
		h.Size = add.Size
	}
	if err := tw.WriteHeader(h); err != nil {
		return err
	}
	if h.Size == 0 || add.Open == nil {
		return nil
	}

	rc, err := add.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	cr := &fileutil.CountingReader{
		R: rc,
		OnRead: func(done int64) {
			progress.Report(arcvfs.ProgressEvent{
				Stage:      arcvfs.StageAppending,
				Path:       add.Name,
				BytesDone:  done,
				BytesTotal: add.Size,
				FilesDone:  i,
				FilesTotal: n,
			})
		},
	}
	if _, err := io.CopyN(tw, cr, h.Size); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("content shorter than %d bytes: %w", h.Size, io.ErrUnexpectedEOF)
		}
		return err
	}
	return nil
}
