package vpath

import (
	"path/filepath"
	"strings"
)

// AbsoluteVirtualPath is a fully qualified name split at its last archive
// boundary.
//
// For "outer.zip#virtual#/inner.tar#virtual#/readme.txt" the containing
// archive is "outer.zip#virtual#/inner.tar" and the virtual part is
// "readme.txt". A path without a boundary names a real file; it is its own
// real part and has an empty virtual part.
type AbsoluteVirtualPath struct {
	container string
	virtual   string
	isVirtual bool
}

// Parse cleans raw and splits it at the last archive boundary.
func Parse(raw string) *AbsoluteVirtualPath {
	p := &AbsoluteVirtualPath{}
	p.set(raw)
	return p
}

func (p *AbsoluteVirtualPath) set(raw string) {
	raw = Clean(raw)
	i := strings.LastIndex(raw, CanonicalSeparator)
	if i < 0 {
		p.container = raw
		p.virtual = ""
		p.isVirtual = false
		return
	}
	p.container = raw[:i]
	p.virtual = CleanMember(raw[i+len(CanonicalSeparator):])
	p.isVirtual = true
}

// IsVirtual reports whether the path lies inside an archive. It is false only
// for the outermost real file.
func (p *AbsoluteVirtualPath) IsVirtual() bool {
	return p.isVirtual
}

// ContainingArchivePath returns the path of the archive holding the virtual
// part. For a real file it returns the file path itself.
func (p *AbsoluteVirtualPath) ContainingArchivePath() string {
	return p.container
}

// VirtualPart returns the member path inside the containing archive.
func (p *AbsoluteVirtualPath) VirtualPart() string {
	return p.virtual
}

// RealPart returns the containing archive as a path of its own. It recurses
// through nesting: the real part of a nested archive is itself virtual. A
// real file is its own real part.
func (p *AbsoluteVirtualPath) RealPart() *AbsoluteVirtualPath {
	if !p.isVirtual {
		return p
	}
	return Parse(p.container)
}

// SetVirtualPart replaces the member path. Setting it to "" collapses the
// path back to its containing archive.
func (p *AbsoluteVirtualPath) SetVirtualPart(part string) {
	part = CleanMember(part)
	if part == "" {
		if p.isVirtual {
			p.set(p.container)
		}
		return
	}
	if !p.isVirtual {
		p.isVirtual = true
	}
	p.virtual = part
}

// Name returns the last segment of the path.
func (p *AbsoluteVirtualPath) Name() string {
	if p.isVirtual && p.virtual != "" {
		_, name := Split(p.virtual)
		return name
	}
	if p.isVirtual {
		return Parse(p.container).Name()
	}
	return filepath.Base(p.container)
}

// Path returns the canonical fully qualified name.
func (p *AbsoluteVirtualPath) Path() string {
	if !p.isVirtual {
		return p.container
	}
	return p.container + Separator + p.virtual
}

// String implements fmt.Stringer.
func (p *AbsoluteVirtualPath) String() string {
	return p.Path()
}

// Depth returns the number of archive boundaries crossed by the path.
func (p *AbsoluteVirtualPath) Depth() int {
	return strings.Count(p.Path(), CanonicalSeparator)
}
