package xcoff

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsworld/xbinutils/format/objfmt"
	"github.com/appsworld/xbinutils/internal/bstream"
)

func TestWriteBin2CoffRoundTripsSymbols(t *testing.T) {
	var out bytes.Buffer
	data := []byte("hello coff world")
	require.NoError(t, WriteBin2Coff(&out, data, WriteParams{
		Arch:     objfmt.ArchX86_64,
		Basename: "foo",
	}))

	buf := out.Bytes()
	s := bstream.New(bytes.NewReader(buf), int64(len(buf)))
	ctx, err := Init(s, 0)
	require.NoError(t, err)
	assert.Equal(t, MachineAMD64, ctx.Header.Machine)
	assert.Equal(t, uint16(1), ctx.Header.NSects)
	assert.Equal(t, uint32(4), ctx.Header.NSyms)

	syms, err := ctx.ReadSyms(s)
	require.NoError(t, err)
	// the section symbol is not skipped: ".rdata" resolves like any other
	// short name, so all three named entries surface
	var names []string
	for _, sym := range syms {
		names = append(names, sym.Name)
	}
	assert.Contains(t, names, "_binary_foo_start")
	assert.Contains(t, names, "_binary_foo_end")
}

func TestWriteBin2CoffI386DoublesLeadingUnderscore(t *testing.T) {
	var out bytes.Buffer
	data := []byte("x")
	require.NoError(t, WriteBin2Coff(&out, data, WriteParams{
		Arch:     objfmt.ArchX86,
		Basename: "foo",
	}))

	buf := out.Bytes()
	s := bstream.New(bytes.NewReader(buf), int64(len(buf)))
	ctx, err := Init(s, 0)
	require.NoError(t, err)
	syms, err := ctx.ReadSyms(s)
	require.NoError(t, err)
	var names []string
	for _, sym := range syms {
		names = append(names, sym.Name)
	}
	assert.Contains(t, names, "__binary_foo_start")
	assert.Contains(t, names, "__binary_foo_end")
}

func TestWriteBin2CoffLongSymbolNameUsesStringTable(t *testing.T) {
	var out bytes.Buffer
	data := []byte("x")
	require.NoError(t, WriteBin2Coff(&out, data, WriteParams{
		Arch:     objfmt.ArchX86_64,
		Basename: "a_rather_long_basename_for_this_binary",
	}))

	buf := out.Bytes()
	s := bstream.New(bytes.NewReader(buf), int64(len(buf)))
	ctx, err := Init(s, 0)
	require.NoError(t, err)
	syms, err := ctx.ReadSyms(s)
	require.NoError(t, err)
	found := false
	for _, sym := range syms {
		if sym.Name == "_binary_a_rather_long_basename_for_this_binary_start" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestWriteBin2CoffZeroEndGrowsSectionByOne(t *testing.T) {
	var out bytes.Buffer
	data := []byte("abc")
	require.NoError(t, WriteBin2Coff(&out, data, WriteParams{
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
	for _, sym := range syms {
		if sym.Name == "_binary_z_end" {
			assert.Equal(t, uint64(len(data)+1), sym.Value)
		}
	}
}
