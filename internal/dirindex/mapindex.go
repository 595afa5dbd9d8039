package dirindex

import (
	"maps"
	"slices"

	"github.com/meigma/arcvfs/vpath"
)

// mapIndex stores, for every directory path, the entries directly inside it.
type mapIndex struct {
	dirs  map[string]map[string]Entry
	count int
}

// NewMap returns an empty map-of-maps index.
func NewMap() Index {
	return &mapIndex{dirs: map[string]map[string]Entry{"": {}}}
}

func (m *mapIndex) Insert(e Entry) {
	e.FullName = vpath.Join("", e.FullName)
	if e.FullName == "" {
		return
	}

	ancestors := vpath.Ancestors(e.FullName)
	for i := len(ancestors) - 1; i >= 0; i-- {
		a := ancestors[i]
		parent, name := vpath.Split(a)
		if _, ok := m.dirs[parent][name]; !ok {
			m.put(parent, name, synthDir(a))
		}
		if m.dirs[a] == nil {
			m.dirs[a] = map[string]Entry{}
		}
	}

	parent, name := vpath.Split(e.FullName)
	m.put(parent, name, e)
	if e.IsDir && m.dirs[e.FullName] == nil {
		m.dirs[e.FullName] = map[string]Entry{}
	}
}

func (m *mapIndex) put(parent, name string, e Entry) {
	children := m.dirs[parent]
	if children == nil {
		children = map[string]Entry{}
		m.dirs[parent] = children
	}
	if _, ok := children[name]; !ok {
		m.count++
	}
	children[name] = e
}

func (m *mapIndex) Lookup(fullName string) (Entry, bool) {
	fullName = vpath.Join("", fullName)
	if fullName == "" {
		return rootEntry(), true
	}
	parent, name := vpath.Split(fullName)
	e, ok := m.dirs[parent][name]
	return e, ok
}

func (m *mapIndex) Children(fullName string, mode Mode) []Entry {
	children := m.dirs[vpath.Join("", fullName)]
	if len(children) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(children))
	for _, name := range slices.Sorted(maps.Keys(children)) {
		if e := children[name]; mode.accepts(e) {
			out = append(out, e)
		}
	}
	return out
}

func (m *mapIndex) Walk(dir string, fn func(Entry) bool) {
	m.walk(vpath.Join("", dir), fn)
}

func (m *mapIndex) walk(dir string, fn func(Entry) bool) bool {
	for _, e := range m.Children(dir, ModeAll) {
		if !fn(e) {
			return false
		}
		if e.IsDir && !m.walk(e.FullName, fn) {
			return false
		}
	}
	return true
}

func (m *mapIndex) Len() int {
	return m.count
}
