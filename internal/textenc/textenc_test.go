package textenc

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "UTF-8", "utf8", "ISO-8859-1", "windows-1252", "Shift_JIS", "latin1"} {
		enc, err := Lookup(name)
		require.NoError(t, err, name)
		assert.NotNil(t, enc, name)
	}

	_, err := Lookup("no-such-charset")
	require.ErrorIs(t, err, ErrUnknownEncoding)
}

func TestSame(t *testing.T) {
	t.Parallel()

	assert.True(t, Same("", "UTF-8"))
	assert.True(t, Same("utf8", "utf-8"))
	assert.True(t, Same("ISO-8859-1", "iso-8859-1"))
	assert.False(t, Same("ISO-8859-1", "UTF-8"))
}

func TestNewReaderLatin1ToUTF8(t *testing.T) {
	t.Parallel()

	latin1 := []byte{'c', 'a', 'f', 0xe9, '\n'}
	r, from, err := NewReader(bytes.NewReader(latin1), "ISO-8859-1", "")
	require.NoError(t, err)
	assert.True(t, Same(from, "ISO-8859-1"))

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "café\n", string(got))
}

func TestNewReaderIdentityKeepsBytes(t *testing.T) {
	t.Parallel()

	// invalid UTF-8 must pass through untouched when no transcoding is needed
	data := []byte{0xff, 0xfe, 'x'}
	r, _, err := NewReader(bytes.NewReader(data), "UTF-8", "")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestNewWriterUTF8ToWindows1252(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := NewWriter(&buf, "", "windows-1252")
	require.NoError(t, err)
	_, err = io.WriteString(w, "naïve €")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, []byte{'n', 'a', 0xef, 'v', 'e', ' ', 0x80}, buf.Bytes())
}

func TestAutoDetection(t *testing.T) {
	t.Parallel()

	r, from, err := NewReader(strings.NewReader("plain ascii and ünïcödé"), Auto, "")
	require.NoError(t, err)
	assert.Equal(t, UTF8, from)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "plain ascii and ünïcödé", string(got))

	sentence := strings.Repeat("Le caf\xe9 est ferm\xe9 le dimanche et la client\xe8le attend. ", 20)
	r, from, err = NewReader(strings.NewReader(sentence), Auto, "")
	require.NoError(t, err)
	assert.NotEqual(t, UTF8, from)
	got, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, utf8.Valid(got))
	assert.Contains(t, string(got), "Le caf")
}

func TestTrimPartialRune(t *testing.T) {
	t.Parallel()

	full := []byte("ab€")
	assert.Equal(t, full, trimPartialRune(full))
	assert.Equal(t, []byte("ab"), trimPartialRune(full[:len(full)-1]))
	assert.Equal(t, []byte("ab"), trimPartialRune(full[:3]))
}
