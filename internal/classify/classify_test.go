package classify

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildClass assembles a minimal class file for className with one method.
func buildClass(t *testing.T, className, method, desc string, flags uint16) []byte {
	t.Helper()
	var b bytes.Buffer
	w := func(v any) { require.NoError(t, binary.Write(&b, binary.BigEndian, v)) }
	utf8 := func(s string) {
		w(uint8(1))
		w(uint16(len(s)))
		b.WriteString(s)
	}

	w(uint32(0xCAFEBABE))
	w(uint16(0))  // minor
	w(uint16(52)) // major, Java 8

	// constant pool: 8 slots, the Long takes two
	w(uint16(9))
	utf8(className)
	w(uint8(7))
	w(uint16(1))
	utf8("java/lang/Object")
	w(uint8(7))
	w(uint16(3))
	utf8(method)
	utf8(desc)
	w(uint8(5))
	w(uint64(42))

	w(uint16(0x0021)) // public super
	w(uint16(2))      // this
	w(uint16(4))      // super
	w(uint16(0))      // interfaces
	w(uint16(0))      // fields

	w(uint16(1)) // methods
	w(flags)
	w(uint16(5))
	w(uint16(6))
	w(uint16(1)) // one attribute, skipped
	w(uint16(5))
	w(uint32(3))
	b.Write([]byte{1, 2, 3})

	w(uint16(0)) // class attributes
	return b.Bytes()
}

func TestClassifyExecutable(t *testing.T) {
	t.Parallel()

	data := buildClass(t, "com/example/App", "main", "([Ljava/lang/String;)V", accPublic|accStatic)
	got := Classify("bin/com/example/App.class", bytes.NewReader(data))
	assert.Equal(t, "executable(java:com.example.App)", got)
}

func TestClassifyNotExecutable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		desc   string
		flags  uint16
	}{
		{"instance main", "main", "([Ljava/lang/String;)V", accPublic},
		{"private static main", "main", "([Ljava/lang/String;)V", accStatic},
		{"wrong descriptor", "main", "()V", accPublic | accStatic},
		{"other method", "run", "([Ljava/lang/String;)V", accPublic | accStatic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := buildClass(t, "Tool", tt.method, tt.desc, tt.flags)
			assert.Equal(t, File, Classify("Tool.class", bytes.NewReader(data)))
		})
	}
}

func TestClassifyNonClassMembers(t *testing.T) {
	t.Parallel()

	data := buildClass(t, "App", "main", "([Ljava/lang/String;)V", accPublic|accStatic)
	assert.Equal(t, File, Classify("App.bin", bytes.NewReader(data)))
	assert.Equal(t, File, Classify("notes.class", bytes.NewReader([]byte("plain text"))))
}

func TestParseClassTruncated(t *testing.T) {
	t.Parallel()

	data := buildClass(t, "App", "main", "([Ljava/lang/String;)V", accPublic|accStatic)
	for _, n := range []int{3, 12, len(data) / 2, len(data) - 3} {
		_, err := ParseClass(data[:n])
		require.Error(t, err, "length %d", n)
	}

	info, err := ParseClass(data)
	require.NoError(t, err)
	assert.Equal(t, "App", info.Name)
	assert.True(t, info.HasMain)
}
