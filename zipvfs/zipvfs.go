// Package zipvfs implements the ZIP archive engine.
//
// Members are written DEFLATED. Directories are stored as empty members
// whose name ends in "/". A container never has zero records: when the last
// member is removed a placeholder "/" record is written, which the
// directory index ignores. Renamed members are copied with their compressed
// bytes unchanged under a new header.
package zipvfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/arcvfs"
	"github.com/meigma/arcvfs/internal/fileutil"
	"github.com/meigma/arcvfs/internal/zstdpool"
)

// Format is the engine's format name.
const Format = "zip"

// placeholderName is the record kept in an otherwise empty container.
const placeholderName = "/"

// Extensions are the file extensions handled by this engine.
var Extensions = []string{"zip", "jar", "war", "ear"}

// Engine reads and rewrites ZIP containers.
type Engine struct{}

// Interface compliance.
var (
	_ arcvfs.Engine    = Engine{}
	_ arcvfs.Commenter = Engine{}
)

// New returns a handler for the ZIP file at path.
func New(path string, opts ...arcvfs.Option) (*arcvfs.Archive, error) {
	return arcvfs.New(path, Engine{}, opts...)
}

// Factory constructs ZIP handlers for a registry.
func Factory(path string, opts ...arcvfs.Option) (arcvfs.Handler, error) {
	a, err := New(path, opts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Format implements arcvfs.Engine.
func (Engine) Format() string { return Format }

// IndexKind implements arcvfs.Engine.
func (Engine) IndexKind() arcvfs.IndexKind { return arcvfs.IndexMap }

// Writable implements arcvfs.Engine.
func (Engine) Writable() bool { return true }

func openReader(archive string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, err
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstdpool.Default.Decompressor())
	zr.RegisterDecompressor(zstd.ZipMethodPKWare, zstdpool.Default.Decompressor())
	return zr, nil
}

// Scan implements arcvfs.Engine.
func (Engine) Scan(archive string) ([]arcvfs.Member, error) {
	zr, err := openReader(archive)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	members := make([]arcvfs.Member, 0, len(zr.File))
	for _, f := range zr.File {
		members = append(members, member(f))
	}
	return members, nil
}

func member(f *zip.File) arcvfs.Member {
	return arcvfs.Member{
		Name:           f.Name,
		Size:           int64(f.UncompressedSize64),
		CompressedSize: int64(f.CompressedSize64),
		Method:         strconv.Itoa(int(f.Method)),
		Comment:        f.Comment,
		ModTime:        f.Modified,
		Mode:           f.Mode(),
	}
}

// Open implements arcvfs.Engine. When a name is stored more than once the
// last record wins.
func (Engine) Open(archive, name string) (io.ReadCloser, error) {
	zr, err := openReader(archive)
	if err != nil {
		return nil, err
	}
	var found *zip.File
	for _, f := range zr.File {
		if f.Name == name {
			found = f
		}
	}
	if found == nil {
		zr.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	rc, err := found.Open()
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &memberReader{ReadCloser: rc, zr: zr}, nil
}

type memberReader struct {
	io.ReadCloser
	zr *zip.ReadCloser
}

func (m *memberReader) Close() error {
	return errors.Join(m.ReadCloser.Close(), m.zr.Close())
}

// ArchiveComment implements arcvfs.Commenter.
func (Engine) ArchiveComment(archive string) (string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return "", err
	}
	defer zr.Close()
	return zr.Comment, nil
}

// WriteEmpty implements arcvfs.Engine.
func (e Engine) WriteEmpty(dst io.Writer) error {
	return e.Rewrite("", dst, arcvfs.NewPlan())
}

// Rewrite implements arcvfs.Engine.
func (Engine) Rewrite(archive string, dst io.Writer, p *arcvfs.Plan) error {
	zw := zip.NewWriter(dst)
	written := 0

	if archive != "" {
		zr, err := openReader(archive)
		if err != nil {
			return err
		}
		defer zr.Close()

		total := len(zr.File) + len(p.Append)
		for _, f := range zr.File {
			if p.Omit[f.Name] || f.Name == placeholderName {
				continue
			}
			if newName, ok := p.Rename[f.Name]; ok {
				err = copyRenamed(zw, f, newName)
			} else {
				err = zw.Copy(f)
			}
			if err != nil {
				return fmt.Errorf("copy %s: %w", f.Name, err)
			}
			written++
			p.Progress.Report(arcvfs.ProgressEvent{
				Stage:      arcvfs.StageCopying,
				Path:       f.Name,
				FilesDone:  written,
				FilesTotal: total,
			})
		}
		if err := zw.SetComment(zr.Comment); err != nil {
			return err
		}
	}

	for i, add := range p.Append {
		if err := appendMember(zw, add, i, len(p.Append), p.Progress); err != nil {
			return fmt.Errorf("append %s: %w", add.Name, err)
		}
		written++
	}

	if written == 0 {
		if _, err := zw.CreateHeader(&zip.FileHeader{Name: placeholderName, Method: zip.Store}); err != nil {
			return err
		}
	}
	return zw.Close()
}

// copyRenamed copies f's compressed bytes under newName.
func copyRenamed(zw *zip.Writer, f *zip.File, newName string) error {
	fh := f.FileHeader
	fh.Name = newName
	w, err := zw.CreateRaw(&fh)
	if err != nil {
		return err
	}
	r, err := f.OpenRaw()
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}

func appendMember(zw *zip.Writer, add arcvfs.Addition, i, n int, progress arcvfs.ProgressFunc) error {
	fh := &zip.FileHeader{Name: add.Name, Method: zip.Deflate, Modified: add.ModTime}
	if add.IsDir() {
		fh.Method = zip.Store
	}
	if add.Mode != 0 {
		fh.SetMode(add.Mode)
	}
	w, err := zw.CreateHeader(fh)
	if err != nil {
		return err
	}
	if add.IsDir() || add.Open == nil {
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
	_, err = io.Copy(w, cr)
	return err
}
