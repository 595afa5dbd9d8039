package vpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"root slash", "/", ""},
		{"simple", "foo", "foo"},
		{"leading slash", "/docs/readme", "docs/readme"},
		{"trailing slash", "docs/readme/", "docs/readme"},
		{"backslashes", `docs\sub\file.txt`, "docs/sub/file.txt"},
		{"double slashes", "docs//sub///file", "docs/sub/file"},
		{"dot root", "./", ""},
		{"dot segments", "./docs/./sub/.", "docs/sub"},
		{"dot prefix in name kept", ".hidden/..dots/a.", ".hidden/..dots/a."},
		{"dot dot kept", "a/../b", "a/../b"},
		{"mixed separators", `\\docs\/sub//`, "docs/sub"},
		{"drive letter untouched", `C:\temp\a.zip`, `C:\temp\a.zip`},
		{"real prefix preserved", `C:\temp\a.zip#virtual#/\dir//f.txt/`, `C:\temp\a.zip#virtual#/dir/f.txt`},
		{"archive root", "a.zip#virtual#/", "a.zip#virtual#/"},
		{"canonical separator", "a.zip#virtual#dir/f", "a.zip#virtual#/dir/f"},
		{"nested parts cleaned", "a.zip#virtual#//in.tar/#virtual#//x//y/", "a.zip#virtual#/in.tar#virtual#/x/y"},
		{"nested dot segments", "a.tar#virtual#/./x/./y", "a.tar#virtual#/x/y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Clean(tt.input))
		})
	}
}

func TestJoinSplit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a/b", Join("a", "b"))
	assert.Equal(t, "b", Join("", "b"))
	assert.Equal(t, "a", Join("a/", ""))
	assert.Equal(t, "a/b/c", Join("/a//b/", "/c/"))

	parent, name := Split("a/b/c")
	assert.Equal(t, "a/b", parent)
	assert.Equal(t, "c", name)

	parent, name = Split("c")
	assert.Empty(t, parent)
	assert.Equal(t, "c", name)
}

func TestAncestors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"a/b", "a"}, Ancestors("a/b/c"))
	assert.Empty(t, Ancestors("top"))
}

func TestHasPrefix(t *testing.T) {
	t.Parallel()

	assert.True(t, HasPrefix("docs/a.txt", "docs"))
	assert.True(t, HasPrefix("docs", "docs"))
	assert.True(t, HasPrefix("anything", ""))
	assert.False(t, HasPrefix("docs2/a.txt", "docs"))
	assert.False(t, HasPrefix("doc", "docs"))
}

func TestParseNested(t *testing.T) {
	t.Parallel()

	p := Parse("outer.zip#virtual#/inner.tar#virtual#/readme.txt")
	assert.True(t, p.IsVirtual())
	assert.Equal(t, "outer.zip#virtual#/inner.tar", p.ContainingArchivePath())
	assert.Equal(t, "readme.txt", p.VirtualPart())
	assert.Equal(t, "readme.txt", p.Name())
	assert.Equal(t, 2, p.Depth())

	realPart := p.RealPart()
	assert.True(t, realPart.IsVirtual())
	assert.Equal(t, "outer.zip", realPart.ContainingArchivePath())
	assert.Equal(t, "inner.tar", realPart.VirtualPart())

	outer := realPart.RealPart()
	assert.False(t, outer.IsVirtual())
	assert.Equal(t, "outer.zip", outer.Path())
	assert.Same(t, outer, outer.RealPart())
}

func TestParseRealFile(t *testing.T) {
	t.Parallel()

	p := Parse("/tmp/data/archive.zip")
	assert.False(t, p.IsVirtual())
	assert.Equal(t, "/tmp/data/archive.zip", p.ContainingArchivePath())
	assert.Empty(t, p.VirtualPart())
	assert.Equal(t, "archive.zip", p.Name())
	assert.Equal(t, "/tmp/data/archive.zip", p.String())
}

func TestSetVirtualPart(t *testing.T) {
	t.Parallel()

	p := Parse("outer.zip#virtual#/inner.tar#virtual#/readme.txt")
	p.SetVirtualPart("/docs//guide.md/")
	assert.Equal(t, "outer.zip#virtual#/inner.tar#virtual#/docs/guide.md", p.Path())

	p.SetVirtualPart("")
	assert.Equal(t, "outer.zip#virtual#/inner.tar", p.Path())
	assert.Equal(t, "outer.zip", p.ContainingArchivePath())
	assert.Equal(t, "inner.tar", p.VirtualPart())

	p.SetVirtualPart("")
	assert.False(t, p.IsVirtual())
	assert.Equal(t, "outer.zip", p.Path())

	p.SetVirtualPart("a/b")
	assert.True(t, p.IsVirtual())
	assert.Equal(t, "outer.zip#virtual#/a/b", p.Path())
}

func TestParseArchiveRoot(t *testing.T) {
	t.Parallel()

	p := Parse("outer.zip#virtual#/")
	assert.True(t, p.IsVirtual())
	assert.Empty(t, p.VirtualPart())
	assert.Equal(t, "outer.zip", p.Name())
}
