package xmacho

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsworld/xbinutils/format/objfmt"
	"github.com/appsworld/xbinutils/internal/bstream"
)

func TestWriteBin2Macho64RoundTripsSymbols(t *testing.T) {
	var out bytes.Buffer
	data := []byte("hello binary world")
	require.NoError(t, WriteBin2Macho(&out, data, WriteParams{
		Arch:     objfmt.ArchX86_64,
		Basename: "foo",
	}))

	buf := out.Bytes()
	s := bstream.New(bytes.NewReader(buf), int64(len(buf)))
	ctx, err := Init(s, 0)
	require.NoError(t, err)
	assert.True(t, ctx.Header.Is64)
	assert.Equal(t, MagicLE64, ctx.Header.Magic)
	assert.Equal(t, uint32(3), ctx.Header.NCmds)

	syms, err := ctx.ReadSyms(s)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "__binary_foo_start", syms[0].Name)
	assert.Equal(t, uint64(0), syms[0].Value)
	assert.Equal(t, "__binary_foo_end", syms[1].Name)
	assert.Equal(t, uint64(len(data)), syms[1].Value)
}

func TestWriteBin2Macho32RoundTripsSymbols(t *testing.T) {
	var out bytes.Buffer
	data := []byte("a smaller payload")
	require.NoError(t, WriteBin2Macho(&out, data, WriteParams{
		Arch:     objfmt.ArchX86,
		Basename: "bar",
	}))

	buf := out.Bytes()
	s := bstream.New(bytes.NewReader(buf), int64(len(buf)))
	ctx, err := Init(s, 0)
	require.NoError(t, err)
	assert.False(t, ctx.Header.Is64)
	assert.Equal(t, MagicLE32, ctx.Header.Magic)

	syms, err := ctx.ReadSyms(s)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "__binary_bar_start", syms[0].Name)
	assert.Equal(t, "__binary_bar_end", syms[1].Name)
	assert.Equal(t, uint64(len(data)), syms[1].Value)
}

func TestWriteBin2MachoHonoursExplicitSymbolPrefix(t *testing.T) {
	var out bytes.Buffer
	data := []byte("x")
	require.NoError(t, WriteBin2Macho(&out, data, WriteParams{
		Arch:         objfmt.ArchARM64,
		Basename:     "foo",
		SymbolPrefix: "custom_",
	}))

	buf := out.Bytes()
	s := bstream.New(bytes.NewReader(buf), int64(len(buf)))
	ctx, err := Init(s, 0)
	require.NoError(t, err)
	syms, err := ctx.ReadSyms(s)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "_custom_foo_start", syms[0].Name)
	assert.Equal(t, "_custom_foo_end", syms[1].Name)
}

func TestWriteBin2MachoZeroEndGrowsPayloadByOne(t *testing.T) {
	var out bytes.Buffer
	data := []byte("abc")
	require.NoError(t, WriteBin2Macho(&out, data, WriteParams{
		Arch:     objfmt.ArchX86_64,
		Basename: "z",
		ZeroEnd:  true,
	}))

	buf := out.Bytes()
	s := bstream.New(bytes.NewReader(buf), int64(len(buf)))
	ctx, err := Init(s, 0)
	require.NoError(t, err)
	syms, err := ctx.ReadSyms(s)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, uint64(len(data)+1), syms[1].Value)
}

func TestWriteBin2MachoSanitizesNonIdentifierBasename(t *testing.T) {
	var out bytes.Buffer
	data := []byte("x")
	require.NoError(t, WriteBin2Macho(&out, data, WriteParams{
		Arch:     objfmt.ArchX86_64,
		Basename: "my-file.bin",
	}))

	buf := out.Bytes()
	s := bstream.New(bytes.NewReader(buf), int64(len(buf)))
	ctx, err := Init(s, 0)
	require.NoError(t, err)
	syms, err := ctx.ReadSyms(s)
	require.NoError(t, err)
	assert.Equal(t, "__binary_my_file_bin_start", syms[0].Name)
}
