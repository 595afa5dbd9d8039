package dirindex

import (
	"maps"
	"slices"
	"strings"

	"github.com/meigma/arcvfs/vpath"
)

type node struct {
	entry    Entry
	parent   *node
	children map[string]*node
}

func (n *node) child(name string) *node {
	if n.children == nil {
		return nil
	}
	return n.children[name]
}

func (n *node) attach(name string, c *node) {
	if n.children == nil {
		n.children = map[string]*node{}
	}
	c.parent = n
	n.children[name] = c
}

// treeIndex is a linked node tree rooted at "".
type treeIndex struct {
	root  *node
	count int
}

// NewTree returns an empty node tree index.
func NewTree() Index {
	return &treeIndex{root: &node{entry: rootEntry()}}
}

func (t *treeIndex) Insert(e Entry) {
	e.FullName = vpath.Join("", e.FullName)
	if e.FullName == "" {
		return
	}

	ancestors := vpath.Ancestors(e.FullName)
	cur := t.root
	for i := len(ancestors) - 1; i >= 0; i-- {
		_, name := vpath.Split(ancestors[i])
		next := cur.child(name)
		switch {
		case next == nil:
			next = &node{entry: synthDir(ancestors[i])}
			cur.attach(name, next)
			t.count++
		case !next.entry.IsDir:
			// A file standing where a directory is needed becomes one.
			next.entry = synthDir(ancestors[i])
		}
		cur = next
	}

	_, name := vpath.Split(e.FullName)
	existing := cur.child(name)
	n := &node{entry: e}
	if existing == nil {
		t.count++
	} else if existing.entry.IsDir && e.IsDir {
		n.children = existing.children
		for _, c := range n.children {
			c.parent = n
		}
	} else {
		t.count -= countNodes(existing)
	}
	cur.attach(name, n)
}

// countNodes returns the number of descendants of n.
func countNodes(n *node) int {
	total := 0
	for _, c := range n.children {
		total += 1 + countNodes(c)
	}
	return total
}

func (t *treeIndex) find(fullName string) *node {
	fullName = vpath.Join("", fullName)
	if fullName == "" {
		return t.root
	}
	cur := t.root
	for fullName != "" {
		seg, rest, _ := strings.Cut(fullName, "/")
		cur = cur.child(seg)
		if cur == nil {
			return nil
		}
		fullName = rest
	}
	return cur
}

func (t *treeIndex) Lookup(fullName string) (Entry, bool) {
	n := t.find(fullName)
	if n == nil {
		return Entry{}, false
	}
	return n.entry, true
}

func (t *treeIndex) Children(fullName string, mode Mode) []Entry {
	n := t.find(fullName)
	if n == nil || !n.entry.IsDir || len(n.children) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(n.children))
	for _, name := range slices.Sorted(maps.Keys(n.children)) {
		if e := n.children[name].entry; mode.accepts(e) {
			out = append(out, e)
		}
	}
	return out
}

func (t *treeIndex) Walk(dir string, fn func(Entry) bool) {
	if n := t.find(dir); n != nil {
		walkNode(n, fn)
	}
}

func walkNode(n *node, fn func(Entry) bool) bool {
	for _, name := range slices.Sorted(maps.Keys(n.children)) {
		c := n.children[name]
		if !fn(c.entry) {
			return false
		}
		if !walkNode(c, fn) {
			return false
		}
	}
	return true
}

func (t *treeIndex) Len() int {
	return t.count
}
