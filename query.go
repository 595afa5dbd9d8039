package arcvfs

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/meigma/arcvfs/internal/classify"
	"github.com/meigma/arcvfs/internal/dirindex"
	"github.com/meigma/arcvfs/vpath"
)

// VirtualChildrenList returns the stored records of the container, or those
// beneath parent, in container order. It always reads the container rather
// than the index and reports only records that are physically present.
func (a *Archive) VirtualChildrenList(parent string) []*VirtualChild {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := os.Stat(a.path); err != nil {
		return nil
	}
	members, err := a.engine.Scan(a.path)
	if err != nil {
		a.log().Debug("list failed", zap.String("archive", a.path), zap.Error(err))
		return nil
	}

	parent = vpath.CleanMember(parent)
	var out []*VirtualChild
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		full := m.FullName()
		if full == "" || full == parent || !vpath.HasPrefix(full, parent) {
			continue
		}
		if seen[full] {
			continue
		}
		seen[full] = true
		out = append(out, fromEntry(dirindex.Entry{
			FullName:       full,
			IsDir:          m.IsDir(),
			Size:           m.Size,
			CompressedSize: m.CompressedSize,
			Method:         m.Method,
			Comment:        m.Comment,
			ModTime:        m.ModTime,
		}, a))
	}
	return out
}

// VirtualChildren returns the direct children of the directory at fullName.
func (a *Archive) VirtualChildren(fullName string) []*VirtualChild {
	return a.children(fullName, dirindex.ModeAll)
}

// VirtualChildFolders returns the direct child directories of fullName.
func (a *Archive) VirtualChildFolders(fullName string) []*VirtualChild {
	return a.children(fullName, dirindex.ModeFoldersOnly)
}

func (a *Archive) children(fullName string, mode dirindex.Mode) []*VirtualChild {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.load() != nil {
		return nil
	}
	entries := a.idx.Children(vpath.CleanMember(fullName), mode)
	out := make([]*VirtualChild, 0, len(entries))
	for _, e := range entries {
		out = append(out, fromEntry(e, a))
	}
	return out
}

// VirtualFile returns the member at fullName or a placeholder.
func (a *Archive) VirtualFile(fullName string) *VirtualChild {
	a.mu.Lock()
	defer a.mu.Unlock()

	fullName = vpath.CleanMember(fullName)
	if e, ok := a.lookup(fullName); ok {
		return fromEntry(e, a)
	}
	return NewVirtualChild(fullName, a)
}

// Exists reports whether a member exists at fullName. The root "" exists
// whenever the container is valid.
func (a *Archive) Exists(fullName string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.lookup(vpath.CleanMember(fullName))
	return ok
}

// StandardName returns the name under which vc is stored.
func (a *Archive) StandardName(vc *VirtualChild) string {
	return vc.StandardName()
}

// TimeStampFor returns the member's modification time, or the archive
// file's when the member is absent. It is the zero time when the archive
// file does not exist.
func (a *Archive) TimeStampFor(fullName string) time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.lookup(vpath.CleanMember(fullName)); ok && !e.ModTime.IsZero() {
		return e.ModTime
	}
	info, err := os.Stat(a.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// SizeFor returns the member's uncompressed size, or 0.
func (a *Archive) SizeFor(fullName string) int64 {
	e, _ := a.entry(fullName)
	return e.Size
}

// CompressedSizeFor returns the member's stored size, or 0.
func (a *Archive) CompressedSizeFor(fullName string) int64 {
	e, _ := a.entry(fullName)
	return e.CompressedSize
}

// CompressionMethodFor returns the member's compression method, or "".
func (a *Archive) CompressionMethodFor(fullName string) string {
	e, _ := a.entry(fullName)
	return e.Method
}

// CommentFor returns the member's comment, or "".
func (a *Archive) CommentFor(fullName string) string {
	e, _ := a.entry(fullName)
	return e.Comment
}

func (a *Archive) entry(fullName string) (dirindex.Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lookup(vpath.CleanMember(fullName))
}

// ArchiveComment returns the container's comment, or "".
func (a *Archive) ArchiveComment() string {
	c, ok := a.engine.(Commenter)
	if !ok {
		return ""
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.load() != nil {
		return ""
	}
	comment, err := c.ArchiveComment(a.path)
	if err != nil {
		return ""
	}
	return comment
}

// Classification returns the classification of a file member. Missing
// members, directories and unparsable content are classified as "file".
func (a *Archive) Classification(fullName string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.lookup(vpath.CleanMember(fullName))
	if !ok || e.IsDir {
		return classify.File
	}
	rc, err := a.open(e)
	if err != nil {
		return classify.File
	}
	defer rc.Close()
	return classify.Classify(e.FullName, rc)
}
