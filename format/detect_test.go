package format

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectAr(t *testing.T) {
	data := []byte("!<arch>\n")
	tag, err := Detect(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, Ar, tag)
}

func TestDetectElf(t *testing.T) {
	data := []byte{0x7F, 'E', 'L', 'F', 2, 1, 1, 0}
	tag, err := Detect(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, Elf, tag)
}

func TestDetectMachO64(t *testing.T) {
	data := make([]byte, 8)
	binary.BigEndian.PutUint32(data, 0xfeedfacf)
	tag, err := Detect(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, MachO, tag)
}

func TestDetectCoffByMachine(t *testing.T) {
	data := make([]byte, 20)
	binary.LittleEndian.PutUint16(data, 0x8664)
	tag, err := Detect(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, Coff, tag)
}

func TestDetectPE(t *testing.T) {
	data := make([]byte, 0x84)
	data[0], data[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(data[0x3c:], 0x80)
	copy(data[0x80:0x84], []byte("PE\x00\x00"))
	tag, err := Detect(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, Pe, tag)
}

func TestDetectUnknown(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	tag, err := Detect(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, Unknown, tag)
}
