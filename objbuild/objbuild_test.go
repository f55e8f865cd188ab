package objbuild

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsworld/xbinutils/format/objfmt"
)

func TestSymbolsAppliesPrefixAndSanitizes(t *testing.T) {
	sym, start, end := Symbols("my-prefix.", "data", "_binary_data")
	assert.Equal(t, "my_prefix_data", sym)
	assert.Equal(t, "my_prefix_data_start", start)
	assert.Equal(t, "my_prefix_data_end", end)
}

func TestSymbolsFallsBackToDefaultWhenNoPrefix(t *testing.T) {
	sym, start, end := Symbols("", "data", "_binary_data")
	assert.Equal(t, "_binary_data", sym)
	assert.Equal(t, "_binary_data_start", start)
	assert.Equal(t, "_binary_data_end", end)
}

func TestWriteCOFFDelegatesToXcoff(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCOFF(&buf, []byte("payload"), Params{Arch: objfmt.ArchX86_64, Basename: "blob"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "blob_start")
}

func TestWriteELFDelegatesToXelf(t *testing.T) {
	var buf bytes.Buffer
	err := WriteELF(&buf, []byte("payload"), Params{Arch: objfmt.ArchARM64, Basename: "blob"})
	require.NoError(t, err)
	out := buf.Bytes()
	assert.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, out[:4])
}

func TestWriteMachODelegatesToXmacho(t *testing.T) {
	var buf bytes.Buffer
	err := WriteMachO(&buf, []byte("payload"), Params{Arch: objfmt.ArchX86_64, Basename: "blob"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "blob_start")
}
