package arcvfs

import (
	"io"
	"time"
)

// Handler is the capability set every archive format provides.
//
// Member paths are cleaned before use, so "/docs//a.txt/" and "docs/a.txt"
// name the same member. Read operations never fail: absent members produce
// placeholders, empty lists or default metadata. Mutating operations return
// nil on success; on failure the archive file is unchanged.
type Handler interface {
	// Archive returns the path of the archive file.
	Archive() string

	// Valid reports whether the container exists and can be read.
	Valid() bool

	// Writable reports whether the format supports mutation.
	Writable() bool

	// Create replaces the archive file with an empty container.
	Create() error

	// VirtualChildrenList returns every stored member, or only those beneath
	// parent when parent is non-empty. It reads the container directly and
	// does not include synthesized directories.
	VirtualChildrenList(parent string) []*VirtualChild

	// VirtualChildren returns the direct children of a directory.
	VirtualChildren(fullName string) []*VirtualChild

	// VirtualChildFolders returns the direct child directories of a directory.
	VirtualChildFolders(fullName string) []*VirtualChild

	// VirtualFile returns the member at fullName, or a placeholder for which
	// Exists reports false.
	VirtualFile(fullName string) *VirtualChild

	// Exists reports whether a member exists at fullName.
	Exists(fullName string) bool

	// ExtractVirtualFile copies a member to dest. A directory member is
	// created as a directory. The member's modification time is preserved.
	ExtractVirtualFile(fullName, dest string, enc Transcode) error

	// ExtractVirtualDirectory extracts the subtree at fullName into dest,
	// which defaults to destParent joined with the directory's name (or
	// destParent itself for the archive root).
	ExtractVirtualDirectory(fullName, destParent, dest string, enc Transcode) error

	// Add adds local files and directories beneath virtualPath. An item
	// whose target already exists replaces it.
	Add(virtualPath string, items ...Item) error

	// AddReader adds the content of r as virtualPath/name, replacing any
	// existing member.
	AddReader(r io.Reader, virtualPath, name string, enc Transcode) error

	// Replace replaces the member at fullName with the local file source.
	// If fullName does not exist, source is added to its parent under name.
	Replace(fullName, source, name string, enc Transcode) error

	// ReplaceReader is Replace for streamed content.
	ReplaceReader(fullName string, r io.Reader, name string, enc Transcode) error

	// Delete removes a member and, for a directory, all its descendants.
	Delete(fullName string) error

	// Rename changes the leaf name of a member.
	Rename(fullName, newName string) error

	// Move moves a member into the directory destDir.
	Move(fullName, destDir string) error

	// FullRename moves a member to newFullName. A directory's descendants
	// move with it.
	FullRename(fullName, newFullName string) error

	// CreateFolder creates an empty directory member.
	CreateFolder(fullName string) error

	// CreateFile creates an empty file member.
	CreateFile(fullName string) error

	// Files extracts each member to a new temporary file and returns the
	// paths. If any extraction fails no paths are returned.
	Files(fullNames []string) ([]string, error)

	// Search streams a file member through m and returns matching lines.
	Search(fullName string, m *Matcher) []LineMatch

	// TimeStampFor returns a member's modification time, or the archive
	// file's when the member is absent.
	TimeStampFor(fullName string) time.Time

	// SizeFor returns a member's uncompressed size, or 0.
	SizeFor(fullName string) int64

	// CompressedSizeFor returns a member's stored size, or 0.
	CompressedSizeFor(fullName string) int64

	// CompressionMethodFor returns a member's compression method, or "".
	CompressionMethodFor(fullName string) string

	// CommentFor returns a member's comment, or "".
	CommentFor(fullName string) string

	// ArchiveComment returns the container's comment, or "".
	ArchiveComment() string

	// Classification returns a coarse content classification of a member.
	Classification(fullName string) string

	// StandardName returns the name under which vc is stored in the
	// container: its full name, with a trailing slash for directories.
	StandardName(vc *VirtualChild) string
}

// Factory constructs a handler for the archive file at path.
type Factory func(path string, opts ...Option) (Handler, error)
