package tarvfs

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/arcvfs"
)

var fixtureTime = time.Date(2023, 7, 14, 9, 30, 0, 0, time.UTC)

type fixtureMember struct {
	name string
	body string
	dir  bool
}

// tarBytes builds a TAR stream with the standard library writer.
func tarBytes(t *testing.T, format tar.Format, members ...fixtureMember) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		hdr := &tar.Header{
			Name:    m.name,
			Mode:    0o644,
			Size:    int64(len(m.body)),
			ModTime: fixtureTime,
			Format:  format,
		}
		if m.dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
			hdr.Size = 0
		}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := io.WriteString(tw, m.body)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readMember(t *testing.T, h *arcvfs.Archive, fullName string) string {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, h.ExtractVirtualFile(fullName, dest, arcvfs.Binary))
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	return string(b)
}

// readWithStdlib lists a TAR stream with archive/tar.
func readWithStdlib(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	out := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		b, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(b)
	}
}

func TestScanStandardLibraryArchive(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.tar", tarBytes(t, tar.FormatUSTAR,
		fixtureMember{name: "docs", dir: true},
		fixtureMember{name: "docs/a.txt", body: "alpha"},
		fixtureMember{name: "src/main.go", body: "package main"},
	))
	h, err := New(path)
	require.NoError(t, err)

	require.True(t, h.Valid())
	assert.True(t, h.Exists("docs"))
	assert.True(t, h.Exists("src"), "ancestor directories are synthesized")
	assert.Equal(t, int64(5), h.SizeFor("docs/a.txt"))
	assert.Equal(t, int64(5), h.CompressedSizeFor("docs/a.txt"))
	assert.Equal(t, "", h.CompressionMethodFor("docs/a.txt"))
	assert.Equal(t, "", h.CommentFor("docs/a.txt"))
	assert.Equal(t, "", h.ArchiveComment())
	assert.True(t, h.TimeStampFor("docs/a.txt").Equal(fixtureTime))
	assert.Equal(t, "package main", readMember(t, h, "src/main.go"))

	var names []string
	for _, vc := range h.VirtualChildrenList("") {
		names = append(names, vc.FullName)
	}
	assert.Equal(t, []string{"docs", "docs/a.txt", "src/main.go"}, names)
}

func TestPAXLongNames(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("deep/", 40) + "file.txt"
	path := writeFile(t, "pax.tar", tarBytes(t, tar.FormatPAX,
		fixtureMember{name: long, body: "buried"},
	))
	h, err := New(path)
	require.NoError(t, err)

	assert.True(t, h.Exists(long))
	assert.Equal(t, "buried", readMember(t, h, long))
}

func TestLongNameUsesPrefix(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "long.tar")
	h, err := New(path)
	require.NoError(t, err)
	require.NoError(t, h.Create())

	dir := strings.Repeat("d", 80) + "/" + strings.Repeat("e", 40)
	require.NoError(t, h.AddReader(strings.NewReader("x"), dir, "leaf.txt", arcvfs.Binary))
	assert.True(t, h.Exists(dir+"/leaf.txt"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got := readWithStdlib(t, f)
	assert.Equal(t, "x", got[dir+"/leaf.txt"])
}

func TestLongLeafUsesPAXPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "longleaf.tar")
	h, err := New(path)
	require.NoError(t, err)
	require.NoError(t, h.Create())

	leaf := strings.Repeat("n", 120)
	require.NoError(t, h.AddReader(strings.NewReader("x"), "", leaf, arcvfs.Binary))
	assert.True(t, h.Exists(leaf))
	assert.Equal(t, "x", readMember(t, h, leaf))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, map[string]string{leaf: "x"}, readWithStdlib(t, f))
}

func TestRewriteKeepsLongNamedMembers(t *testing.T) {
	t.Parallel()

	long := "dir/" + strings.Repeat("x", 120) + ".txt"
	mtime := time.Date(2021, 3, 4, 5, 6, 7, 500000000, time.UTC)
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:       long,
		Mode:       0o640,
		Size:       4,
		ModTime:    mtime,
		Uname:      "release",
		PAXRecords: map[string]string{"SCHILY.xattr.user.origin": "ci"},
		Format:     tar.FormatPAX,
	}))
	_, err := io.WriteString(tw, "long")
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	path := writeFile(t, "pax.tar", buf.Bytes())

	h, err := New(path)
	require.NoError(t, err)
	require.True(t, h.Exists(long))

	require.NoError(t, h.AddReader(strings.NewReader("u"), "", "unrelated.txt", arcvfs.Binary))
	require.NoError(t, h.CreateFolder("other"))
	assert.Equal(t, "long", readMember(t, h, long))
	assert.True(t, h.TimeStampFor(long).Equal(mtime))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := tar.NewReader(f)
	hdr, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, long, hdr.Name)
	assert.True(t, hdr.ModTime.Equal(mtime))
	assert.Equal(t, "release", hdr.Uname)
	assert.Equal(t, "ci", hdr.PAXRecords["SCHILY.xattr.user.origin"])

	renamed := "dir/" + strings.Repeat("y", 130) + ".txt"
	require.NoError(t, h.FullRename(long, renamed))
	assert.False(t, h.Exists(long))
	assert.Equal(t, "long", readMember(t, h, renamed))
}

func TestDotSlashMembers(t *testing.T) {
	t.Parallel()

	// As written by "tar -C dir -cf x.tar .".
	path := writeFile(t, "dot.tar", tarBytes(t, tar.FormatUSTAR,
		fixtureMember{name: "./", dir: true},
		fixtureMember{name: "./a.txt", body: "alpha"},
		fixtureMember{name: "./sub/", dir: true},
		fixtureMember{name: "./sub/b.txt", body: "beta"},
	))
	h, err := New(path)
	require.NoError(t, err)

	var names []string
	for _, vc := range h.VirtualChildren("") {
		names = append(names, vc.FullName)
	}
	assert.Equal(t, []string{"a.txt", "sub"}, names)
	assert.False(t, h.Exists("."))
	assert.Equal(t, "beta", readMember(t, h, "sub/b.txt"))

	require.NoError(t, h.Rename("a.txt", "c.txt"))
	require.NoError(t, h.Delete("sub"))
	names = names[:0]
	for _, vc := range h.VirtualChildrenList("") {
		names = append(names, vc.FullName)
	}
	assert.Equal(t, []string{"c.txt"}, names)
	assert.Equal(t, "alpha", readMember(t, h, "c.txt"))
}

func TestGzipRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.tar.gz")
	h, err := NewGzip(path)
	require.NoError(t, err)
	require.NoError(t, h.Create())
	require.NoError(t, h.CreateFolder("dir"))
	require.NoError(t, h.AddReader(strings.NewReader("gzipped"), "dir", "g.txt", arcvfs.Binary))
	require.NoError(t, h.Rename("dir", "renamed"))

	assert.Equal(t, "gzipped", readMember(t, h, "renamed/g.txt"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	got := readWithStdlib(t, zr)
	assert.Equal(t, map[string]string{"renamed/": "", "renamed/g.txt": "gzipped"}, got)
}

func TestZstdReadOnly(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write(tarBytes(t, tar.FormatUSTAR, fixtureMember{name: "z.txt", body: "zstd"}))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	path := writeFile(t, "a.tar.zst", buf.Bytes())

	h, err := NewZstd(path)
	require.NoError(t, err)
	assert.False(t, h.Writable())
	assert.Equal(t, "zstd", readMember(t, h, "z.txt"))

	assert.ErrorIs(t, h.Delete("z.txt"), arcvfs.ErrReadOnly)
	assert.ErrorIs(t, h.CreateFile("new.txt"), arcvfs.ErrReadOnly)
	assert.ErrorIs(t, h.Create(), arcvfs.ErrReadOnly)
	assert.True(t, h.Exists("z.txt"))
}

func TestDirectoryMergeOnOverwrite(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "merge.tar", tarBytes(t, tar.FormatUSTAR,
		fixtureMember{name: "d/", dir: true},
		fixtureMember{name: "d/one.txt", body: "1"},
		fixtureMember{name: "d/", dir: true},
		fixtureMember{name: "d/two.txt", body: "2"},
	))
	h, err := New(path)
	require.NoError(t, err)

	var names []string
	for _, vc := range h.VirtualChildren("d") {
		names = append(names, vc.Name)
	}
	assert.Equal(t, []string{"one.txt", "two.txt"}, names)
}

func TestOpenLastRecordWins(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "dup.tar", tarBytes(t, tar.FormatUSTAR,
		fixtureMember{name: "dup.txt", body: "first"},
		fixtureMember{name: "other.txt", body: "o"},
		fixtureMember{name: "dup.txt", body: "second"},
	))

	rc, err := Tar.Open(path, "dup.txt")
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))

	_, err = Tar.Open(path, "missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProgressReported(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "p.tar")
	var stages []arcvfs.ProgressStage
	h, err := New(path, arcvfs.WithProgress(func(ev arcvfs.ProgressEvent) {
		stages = append(stages, ev.Stage)
	}))
	require.NoError(t, err)
	require.NoError(t, h.Create())
	require.NoError(t, h.AddReader(strings.NewReader("payload"), "", "a.txt", arcvfs.Binary))
	require.NoError(t, h.CreateFile("b.txt"))

	assert.Contains(t, stages, arcvfs.StageScanning)
	assert.Contains(t, stages, arcvfs.StageAppending)
	assert.Contains(t, stages, arcvfs.StageCopying)
	assert.Contains(t, stages, arcvfs.StageCommitting)
}
