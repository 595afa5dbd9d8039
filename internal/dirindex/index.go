// Package dirindex builds a directory tree from a flat list of archive members.
//
// Two backends implement Index. NewMap keys children by parent path
// (map-of-maps) and is used by the ZIP engine. NewTree links explicit
// parent and child nodes and is used by the TAR engines. Both synthesize
// every missing ancestor directory on insert. They differ when an existing
// directory is overwritten:
//
//   - Map: a new entry replaces the old one but the children stay keyed under
//     the path, so a file overwriting a directory still reports the old
//     children from Children.
//   - Tree: a directory overwriting a directory keeps the union of children;
//     a file overwriting a directory drops them.
package dirindex

import (
	"time"
)

// Mode selects which children Children returns.
type Mode uint8

const (
	// ModeAll returns files and directories.
	ModeAll Mode = iota
	// ModeFilesOnly returns files.
	ModeFilesOnly
	// ModeFoldersOnly returns directories.
	ModeFoldersOnly
)

func (m Mode) accepts(e Entry) bool {
	switch m {
	case ModeFilesOnly:
		return !e.IsDir
	case ModeFoldersOnly:
		return e.IsDir
	default:
		return true
	}
}

// Entry is one indexed member.
type Entry struct {
	// FullName is the canonical member path; the root is "".
	FullName string

	// IsDir reports whether the member is a directory.
	IsDir bool

	// Synthetic is set for directories created only because a descendant
	// exists. They have no stored record of their own.
	Synthetic bool

	Size           int64
	CompressedSize int64
	Method         string
	Comment        string
	ModTime        time.Time
}

// Index is an in-memory directory tree.
// Implementations are not safe for concurrent use.
type Index interface {
	// Insert adds or replaces e and synthesizes its missing ancestors.
	Insert(e Entry)

	// Lookup returns the entry at fullName. The root "" is always present.
	Lookup(fullName string) (Entry, bool)

	// Children returns the direct children of fullName sorted by name.
	Children(fullName string, mode Mode) []Entry

	// Walk visits every descendant of dir depth-first in name order until
	// fn returns false.
	Walk(dir string, fn func(Entry) bool)

	// Len returns the number of entries, excluding the root.
	Len() int
}

// Kind names an Index backend.
type Kind uint8

const (
	// KindMap selects the map-of-maps backend.
	KindMap Kind = iota
	// KindTree selects the linked node tree backend.
	KindTree
)

// New returns an empty index of the given kind.
func New(kind Kind) Index {
	if kind == KindTree {
		return NewTree()
	}
	return NewMap()
}

// Build returns an index of the given kind holding entries.
func Build(kind Kind, entries []Entry) Index {
	idx := New(kind)
	for _, e := range entries {
		idx.Insert(e)
	}
	return idx
}

func rootEntry() Entry {
	return Entry{FullName: "", IsDir: true, Synthetic: true}
}

func synthDir(fullName string) Entry {
	return Entry{FullName: fullName, IsDir: true, Synthetic: true}
}
