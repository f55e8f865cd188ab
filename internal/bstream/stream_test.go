package bstream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAdvancesOffset(t *testing.T) {
	r := New(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6}), 6)

	var b [2]byte
	require.NoError(t, r.Read(b[:]))
	assert.Equal(t, []byte{1, 2}, b[:])
	assert.Equal(t, int64(2), r.Offset())

	require.NoError(t, r.Read(b[:]))
	assert.Equal(t, []byte{3, 4}, b[:])
	assert.Equal(t, int64(4), r.Offset())
}

func TestPeekDoesNotAdvance(t *testing.T) {
	r := New(bytes.NewReader([]byte{0xAA, 0xBB, 0xCC, 0xDD}), 4)

	got, err := r.Peek(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, got)
	assert.Equal(t, int64(0), r.Offset(), "peek must not advance the offset")
}

func TestPeekTruncatedAtEOF(t *testing.T) {
	r := New(bytes.NewReader([]byte{1, 2}), 2)
	require.NoError(t, r.Seek(2))

	_, err := r.Peek(1)
	assert.Error(t, err)
}

func TestReadU32LERoundtrip(t *testing.T) {
	r := New(bytes.NewReader([]byte{0x78, 0x56, 0x34, 0x12}), 4)
	v, err := r.ReadU32LE()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v)
}

func TestReadCStrSavesAndRestoresOffset(t *testing.T) {
	data := []byte{0, 'h', 'i', 0, 'x', 'y'}
	r := New(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, r.Seek(4))

	s, err := r.ReadCStr(1, 16)
	require.NoError(t, err)
	assert.Equal(t, "hi", s)
	assert.Equal(t, int64(4), r.Offset(), "ReadCStr must restore the caller's offset")
}

func TestReadCStrTruncated(t *testing.T) {
	data := []byte{'n', 'o', 't', 'e', 'r', 'm'}
	r := New(bytes.NewReader(data), int64(len(data)))

	_, err := r.ReadCStr(0, 4)
	assert.Error(t, err)
}

func TestCopyStopsOnShortRead(t *testing.T) {
	var out bytes.Buffer
	in := bytes.NewReader([]byte{1, 2, 3})
	err := Copy(&out, in, 10)
	assert.Error(t, err)
}

func TestCopyExact(t *testing.T) {
	var out bytes.Buffer
	in := bytes.NewReader([]byte{1, 2, 3, 4})
	require.NoError(t, Copy(&out, in, 4))
	assert.Equal(t, []byte{1, 2, 3, 4}, out.Bytes())
}
