package zstdpool

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write(data)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

func TestPoolReuse(t *testing.T) {
	t.Parallel()

	p := New(0)
	for _, s := range []string{"first payload", "second payload", ""} {
		rc, err := p.NewReader(bytes.NewReader(compress(t, []byte(s))))
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, s, string(got))
		require.NoError(t, rc.Close())
		require.NoError(t, rc.Close())
	}
}

func TestReadAfterClose(t *testing.T) {
	t.Parallel()

	rc, err := Default.NewReader(bytes.NewReader(compress(t, []byte("x"))))
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	_, err = rc.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestDecompressorCorrupt(t *testing.T) {
	t.Parallel()

	rc := New(1 << 20).Decompressor()(bytes.NewReader([]byte("not zstd at all")))
	defer rc.Close()
	_, err := io.ReadAll(rc)
	assert.Error(t, err)
}
