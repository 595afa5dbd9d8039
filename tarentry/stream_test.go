package tarentry

import (
	"archive/tar"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArchive(t *testing.T, files map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	for _, name := range order {
		e := New(name)
		e.ModTime = time.Unix(1600000000, 0)
		content := files[name]
		e.Size = int64(len(content))
		require.NoError(t, tw.WriteHeader(e))
		_, err := io.WriteString(tw, content)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestWriterReaderRoundTrip(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"dir/":          "",
		"dir/a.txt":     "alpha",
		"dir/empty.txt": "",
		"b.bin":         strings.Repeat("b", 1500),
	}
	order := []string{"dir/", "dir/a.txt", "dir/empty.txt", "b.bin"}
	data := writeArchive(t, files, order)
	assert.Zero(t, len(data)%BlockSize)

	tr := NewReader(bytes.NewReader(data))
	var got []string
	for {
		e, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, e.FullName())
		if e.FullName() == "b.bin" {
			// leave content unread to exercise skipping
			continue
		}
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		assert.Equal(t, files[e.FullName()], string(content))
	}
	assert.Equal(t, order, got)
}

func TestOutputReadableByArchiveTar(t *testing.T) {
	t.Parallel()

	data := writeArchive(t,
		map[string]string{"x/": "", "x/y.txt": "hello tar"},
		[]string{"x/", "x/y.txt"})

	r := tar.NewReader(bytes.NewReader(data))
	hdr, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "x/", hdr.Name)
	assert.Equal(t, byte(tar.TypeDir), hdr.Typeflag)

	hdr, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "x/y.txt", hdr.Name)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello tar", string(content))

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderHandlesPAXLongNames(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("segment/", 40) + "leaf.txt"
	var buf bytes.Buffer
	w := tar.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tar.Header{
		Name:     long,
		Mode:     0o644,
		Size:     4,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatPAX,
	}))
	_, err := w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	tr := NewReader(&buf)
	e, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, long, e.FullName())
	content, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))

	_, err = tr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderTruncatedContent(t *testing.T) {
	t.Parallel()

	data := writeArchive(t, map[string]string{"f": strings.Repeat("z", 700)}, []string{"f"})
	tr := NewReader(bytes.NewReader(data[:BlockSize+100]))
	_, err := tr.Next()
	require.NoError(t, err)
	_, err = io.ReadAll(tr)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestWriterRejectsOverflow(t *testing.T) {
	t.Parallel()

	tw := NewWriter(io.Discard)
	e := New("short")
	e.Size = 2
	require.NoError(t, tw.WriteHeader(e))
	n, err := tw.Write([]byte("abc"))
	assert.Equal(t, 2, n)
	require.ErrorIs(t, err, ErrWriteTooLong)
}

func TestWriterRejectsShortEntry(t *testing.T) {
	t.Parallel()

	tw := NewWriter(io.Discard)
	e := New("short")
	e.Size = 5
	require.NoError(t, tw.WriteHeader(e))
	_, err := tw.Write([]byte("ab"))
	require.NoError(t, err)
	require.Error(t, tw.Close())
}

func TestParsePAX(t *testing.T) {
	t.Parallel()

	recs, err := parsePAX([]byte("18 path=some/file\n" + "20 mtime=1600000000\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"path": "some/file", "mtime": "1600000000"}, recs)

	for _, bad := range []string{"18 path=some/file", "x path=a\n", "9 path=abc\n", "6 =ab\n"} {
		_, err := parsePAX([]byte(bad))
		assert.ErrorIs(t, err, ErrHeader, bad)
	}

	// The length prefix counts its own digits.
	rec := formatPAXRecord("path", strings.Repeat("p", 93))
	assert.Len(t, rec, 103)
	assert.True(t, strings.HasPrefix(rec, "103 path="))
}

func TestPAXTime(t *testing.T) {
	t.Parallel()

	for _, ts := range []time.Time{
		time.Unix(1600000000, 0),
		time.Unix(1600000000, 500000000),
		time.Unix(1600000000, 123456789),
		time.Unix(-1, -500000000),
	} {
		got, err := parsePAXTime(formatPAXTime(ts))
		require.NoError(t, err)
		assert.True(t, ts.Equal(got), "%v != %v", ts, got)
	}
	assert.Equal(t, "1600000000.5", formatPAXTime(time.Unix(1600000000, 500000000)))
}

func TestWriterLongNameUsesPAX(t *testing.T) {
	t.Parallel()

	name := "dir/" + strings.Repeat("x", 120) + ".txt"
	link := strings.Repeat("l", 150)
	var buf bytes.Buffer
	tw := NewWriter(&buf)
	e := New(name)
	e.Size = 2
	e.UID = 1 << 30
	e.Uname = strings.Repeat("u", 40)
	require.NoError(t, tw.WriteHeader(e))
	_, err := io.WriteString(tw, "ok")
	require.NoError(t, err)
	s := New("sym")
	s.Typeflag = TypeSymlink
	s.Linkname = link
	require.NoError(t, tw.WriteHeader(s))
	require.NoError(t, tw.Close())

	r := tar.NewReader(bytes.NewReader(buf.Bytes()))
	hdr, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, name, hdr.Name)
	assert.Equal(t, 1<<30, hdr.Uid)
	assert.Equal(t, strings.Repeat("u", 40), hdr.Uname)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(content))
	hdr, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, link, hdr.Linkname)

	tr := NewReader(bytes.NewReader(buf.Bytes()))
	got, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, name, got.FullName())
	assert.Equal(t, int64(1<<30), got.UID)
}

func TestPAXRecordsSurviveRewrite(t *testing.T) {
	t.Parallel()

	mtime := time.Unix(1600000000, 250000000)
	name := "dir/" + strings.Repeat("x", 120) + ".txt"
	var src bytes.Buffer
	w := tar.NewWriter(&src)
	require.NoError(t, w.WriteHeader(&tar.Header{
		Typeflag:   tar.TypeXGlobalHeader,
		PAXRecords: map[string]string{"comment": "build 42"},
		Format:     tar.FormatPAX,
	}))
	require.NoError(t, w.WriteHeader(&tar.Header{
		Name:       name,
		Mode:       0o600,
		Size:       3,
		ModTime:    mtime,
		Uname:      "builder",
		PAXRecords: map[string]string{"SCHILY.xattr.user.tag": "blue"},
		Format:     tar.FormatPAX,
	}))
	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Copy every entry through unchanged.
	var dst bytes.Buffer
	tr := NewReader(&src)
	tw := NewWriter(&dst)
	for {
		e, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, name, e.FullName())
		assert.True(t, mtime.Equal(e.ModTime))
		assert.Equal(t, "blue", e.PAX["SCHILY.xattr.user.tag"])
		assert.Equal(t, "build 42", e.GlobalPAX["comment"])
		require.NoError(t, tw.WriteHeader(e))
		_, err = io.Copy(tw, tr)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	r := tar.NewReader(&dst)
	hdr, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, byte(tar.TypeXGlobalHeader), hdr.Typeflag)
	assert.Equal(t, "build 42", hdr.PAXRecords["comment"])
	hdr, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, name, hdr.Name)
	assert.True(t, mtime.Equal(hdr.ModTime))
	assert.Equal(t, "builder", hdr.Uname)
	assert.Equal(t, "blue", hdr.PAXRecords["SCHILY.xattr.user.tag"])
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(content))
}

func TestReaderGNULongLinkAndBase256(t *testing.T) {
	t.Parallel()

	link := "target/" + strings.Repeat("t", 140)
	var buf bytes.Buffer
	w := tar.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tar.Header{
		Name:     "ln",
		Typeflag: tar.TypeSymlink,
		Linkname: link,
		Uid:      1 << 30,
		Gid:      1 << 31,
		ModTime:  time.Unix(1600000000, 0),
		Format:   tar.FormatGNU,
	}))
	require.NoError(t, w.Close())

	tr := NewReader(&buf)
	e, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "ln", e.FullName())
	assert.Equal(t, TypeSymlink, e.Typeflag)
	assert.Equal(t, link, e.Linkname)
	assert.Equal(t, int64(1<<30), e.UID)
	assert.Equal(t, int64(1<<31), e.GID)

	_, err = tr.Next()
	assert.Equal(t, io.EOF, err)
}
