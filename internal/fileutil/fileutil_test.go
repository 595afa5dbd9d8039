package fileutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitReplacesTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "a.zip")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o600))

	err := Commit(target, func(w io.Writer) error {
		_, err := io.WriteString(w, "new content")
		return err
	})
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(got))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.NoFileExists(t, target+TempSuffix)
	assert.NoFileExists(t, target+OldSuffix)
}

func TestCommitFailureKeepsOriginal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "a.tar")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o644))

	boom := errors.New("boom")
	err := Commit(target, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
	assert.NoFileExists(t, target+TempSuffix)
}

func TestCommitCreatesMissingTarget(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "fresh.zip")
	require.NoError(t, Commit(target, func(w io.Writer) error {
		_, err := w.Write([]byte{1, 2, 3})
		return err
	}))
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestSpool(t *testing.T) {
	t.Parallel()

	s, err := Spool(t.TempDir(), strings.NewReader("spooled bytes"))
	require.NoError(t, err)
	t.Cleanup(s.Remove)
	assert.Equal(t, int64(len("spooled bytes")), s.Size)

	rc, err := s.Open()
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "spooled bytes", string(got))

	s.Remove()
	assert.NoFileExists(t, s.Path)
}

func TestListTree(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b", "c"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "c", "d.txt"), []byte("d"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))

	files, err := ListTree(root)
	require.NoError(t, err)

	var rels []string
	for _, f := range files {
		rels = append(rels, f.Rel)
	}
	assert.Equal(t, []string{"a.txt", "b", "b/c", "b/c/d.txt"}, rels)
	assert.True(t, files[1].IsDir)
	assert.False(t, files[3].IsDir)
}

func TestCountingWriter(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	cw := &CountingWriter{W: &sb}
	_, err := io.WriteString(cw, "12345")
	require.NoError(t, err)
	_, err = io.WriteString(cw, "678")
	require.NoError(t, err)
	assert.Equal(t, int64(8), cw.N)
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "nested", "out.txt")
	stamp := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	err := WriteFile(dest, stamp, func(w io.Writer) error {
		_, err := io.WriteString(w, "payload")
		return err
	})
	require.NoError(t, err)

	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(stamp))
}

func TestWriteFileFailureLeavesNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest := filepath.Join(dir, "out.txt")
	boom := errors.New("boom")
	err := WriteFile(dest, time.Time{}, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMakeDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "a", "b")
	stamp := time.Date(2021, 6, 7, 8, 9, 10, 0, time.UTC)
	require.NoError(t, MakeDir(dir, stamp))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, info.ModTime().Equal(stamp))
}
