package arcvfs

import (
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/meigma/arcvfs/internal/dirindex"
	"github.com/meigma/arcvfs/vpath"
)

// IndexKind selects the directory index an engine's members are loaded into.
type IndexKind = dirindex.Kind

// Index kinds.
const (
	// IndexMap keys children by parent path.
	IndexMap = dirindex.KindMap

	// IndexTree links explicit parent and child nodes.
	IndexTree = dirindex.KindTree
)

// Member is one record as stored in a container.
type Member struct {
	// Name is the stored name. Directory names end in "/".
	Name string

	Size           int64
	CompressedSize int64
	Method         string
	Comment        string
	ModTime        time.Time
	Mode           fs.FileMode
}

// IsDir reports whether the member is a directory record.
func (m Member) IsDir() bool {
	return strings.HasSuffix(m.Name, "/")
}

// FullName returns the canonical member path. Placeholder records such as
// a lone "/" yield "".
func (m Member) FullName() string {
	return vpath.CleanMember(m.Name)
}

// Addition is a member to append while rewriting a container.
type Addition struct {
	// Name is the stored name. Directory names end in "/".
	Name string

	ModTime time.Time
	Mode    fs.FileMode

	// Size is the exact number of bytes Open yields.
	Size int64

	// Open returns the content. It is nil for directories and empty files.
	Open func() (io.ReadCloser, error)
}

// IsDir reports whether the addition is a directory record.
func (a Addition) IsDir() bool {
	return strings.HasSuffix(a.Name, "/")
}

// Plan describes one container rewrite. Every existing member is copied in
// order unless its stored name is in Omit; a member whose stored name is a
// key of Rename is written under the new name with its content unchanged.
// Append is written last, in order.
type Plan struct {
	Omit     map[string]bool
	Rename   map[string]string
	Append   []Addition
	Progress ProgressFunc
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{Omit: map[string]bool{}, Rename: map[string]string{}}
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return len(p.Omit) == 0 && len(p.Rename) == 0 && len(p.Append) == 0
}

// Engine reads and writes one container format.
type Engine interface {
	// Format names the container format.
	Format() string

	// IndexKind selects the directory index backend.
	IndexKind() IndexKind

	// Writable reports whether Rewrite and WriteEmpty are supported.
	Writable() bool

	// Scan returns every record of the container at archive in stored order.
	Scan(archive string) ([]Member, error)

	// Open returns the content of the record stored as name.
	Open(archive, name string) (io.ReadCloser, error)

	// Rewrite writes to dst a new container holding the records of the
	// container at archive transformed by p. An empty archive path denotes
	// a container with no records.
	Rewrite(archive string, dst io.Writer, p *Plan) error

	// WriteEmpty writes an empty container to dst.
	WriteEmpty(dst io.Writer) error
}

// Commenter is implemented by engines whose containers carry a comment.
type Commenter interface {
	ArchiveComment(archive string) (string, error)
}
