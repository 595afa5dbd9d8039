package arcvfs

import (
	"io/fs"
	"time"

	"github.com/meigma/arcvfs/internal/dirindex"
	"github.com/meigma/arcvfs/vpath"
)

// VirtualChild is one file or directory inside an archive.
//
// Values are created afresh by every query and hold no extraction state;
// use extractcache for reusable extracted copies.
type VirtualChild struct {
	// FullName is the canonical path from the archive root.
	FullName string

	// Name is the last segment of FullName.
	Name string

	// Path is the FullName of the parent directory ("" at the root).
	Path string

	IsDirectory bool

	Size           int64
	CompressedSize int64
	Method         string
	Comment        string
	ModTime        time.Time

	handler Handler
	archive string
}

// NewVirtualChild returns a node for fullName owned by h. It carries no
// metadata; h decides whether it exists.
func NewVirtualChild(fullName string, h Handler) *VirtualChild {
	vc := &VirtualChild{handler: h}
	if h != nil {
		vc.archive = h.Archive()
	}
	vc.setName(fullName)
	return vc
}

// Placeholder returns a node for a member of an archive that has no handler,
// for example because the archive file does not exist.
func Placeholder(fullName, archive string) *VirtualChild {
	vc := &VirtualChild{archive: archive}
	vc.setName(fullName)
	return vc
}

func fromEntry(e dirindex.Entry, h Handler) *VirtualChild {
	vc := NewVirtualChild(e.FullName, h)
	vc.IsDirectory = e.IsDir
	vc.Size = e.Size
	vc.CompressedSize = e.CompressedSize
	vc.Method = e.Method
	vc.Comment = e.Comment
	vc.ModTime = e.ModTime
	return vc
}

func (vc *VirtualChild) setName(fullName string) {
	vc.FullName = vpath.CleanMember(fullName)
	vc.Path, vc.Name = vpath.Split(vc.FullName)
}

// Handler returns the owning handler, or nil for a placeholder.
func (vc *VirtualChild) Handler() Handler {
	return vc.handler
}

// ContainingArchive returns the path of the archive holding the node.
func (vc *VirtualChild) ContainingArchive() string {
	return vc.archive
}

// AbsolutePath returns the fully qualified virtual path of the node.
func (vc *VirtualChild) AbsolutePath() string {
	return vc.archive + vpath.Separator + vc.FullName
}

// Exists reports whether the node is present in its archive.
func (vc *VirtualChild) Exists() bool {
	return vc.handler != nil && vc.handler.Exists(vc.FullName)
}

// Children returns the direct children of a directory node.
func (vc *VirtualChild) Children() []*VirtualChild {
	if vc.handler == nil || !vc.IsDirectory {
		return nil
	}
	return vc.handler.VirtualChildren(vc.FullName)
}

// Extract copies the node to dest: a file to the file dest, a directory to
// the directory dest.
func (vc *VirtualChild) Extract(dest string, enc Transcode) error {
	if vc.handler == nil {
		return &fs.PathError{Op: "extract", Path: vc.AbsolutePath(), Err: fs.ErrNotExist}
	}
	if vc.IsDirectory {
		return vc.handler.ExtractVirtualDirectory(vc.FullName, "", dest, enc)
	}
	return vc.handler.ExtractVirtualFile(vc.FullName, dest, enc)
}

// StandardName returns the name under which the node is stored.
func (vc *VirtualChild) StandardName() string {
	if vc.IsDirectory && vc.FullName != "" {
		return vc.FullName + "/"
	}
	return vc.FullName
}

// String returns the node's full name.
func (vc *VirtualChild) String() string {
	return vc.FullName
}
