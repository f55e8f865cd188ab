package xmacho

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsworld/xbinutils/internal/bstream"
)

func TestInitDetectsMagicAndWordSize(t *testing.T) {
	b := newBuilder(true)
	data := b.finish(nil)
	s := bstream.New(bytes.NewReader(data), int64(len(data)))
	ctx, err := Init(s, 0)
	require.NoError(t, err)
	assert.True(t, ctx.Header.Is64)
	assert.False(t, ctx.Header.Swap)
	assert.Equal(t, MagicLE64, ctx.Header.Magic)

	b32 := newBuilder(false)
	data32 := b32.finish(nil)
	s32 := bstream.New(bytes.NewReader(data32), int64(len(data32)))
	ctx32, err := Init(s32, 0)
	require.NoError(t, err)
	assert.False(t, ctx32.Header.Is64)
}

func TestInitRejectsBadMagic(t *testing.T) {
	data := make([]byte, 32)
	s := bstream.New(bytes.NewReader(data), int64(len(data)))
	_, err := Init(s, 0)
	require.Error(t, err)
}

// buildSymtab assembles an LC_SYMTAB command plus its nlist/string table
// tail, returning the full command bytes and the tail bytes (nlist entries,
// then the string table). The command's offsets assume the caller places
// the tail right after the commands.
func buildSymtab(order binary.ByteOrder, is64 bool, headerSize, cmdsAreaSize int, entries []nlistFixture) ([]byte, []byte) {
	nlistSize := NlistSize32
	if is64 {
		nlistSize = NlistSize64
	}
	symoff := uint32(headerSize + cmdsAreaSize)
	var strtab bytes.Buffer
	strtab.WriteByte(0)
	var nlists bytes.Buffer
	for _, e := range entries {
		strx := uint32(strtab.Len())
		strtab.WriteString(e.name)
		strtab.WriteByte(0)

		var nb bytes.Buffer
		var strxBuf [4]byte
		order.PutUint32(strxBuf[:], strx)
		nb.Write(strxBuf[:])
		nb.WriteByte(e.typ)
		nb.WriteByte(e.sect)
		var descBuf [2]byte
		order.PutUint16(descBuf[:], 0)
		nb.Write(descBuf[:])
		if is64 {
			var valBuf [8]byte
			order.PutUint64(valBuf[:], e.value)
			nb.Write(valBuf[:])
		} else {
			var valBuf [4]byte
			order.PutUint32(valBuf[:], uint32(e.value))
			nb.Write(valBuf[:])
		}
		nlists.Write(nb.Bytes())
	}
	stroff := symoff + uint32(nlistSize*len(entries))

	var body [24 - 8]byte
	order.PutUint32(body[0:4], symoff)
	order.PutUint32(body[4:8], uint32(len(entries)))
	order.PutUint32(body[8:12], stroff)
	order.PutUint32(body[12:16], uint32(strtab.Len()))
	cmd := loadCommandBytes(order, LcSymtab, body[:])

	var tail bytes.Buffer
	tail.Write(nlists.Bytes())
	tail.Write(strtab.Bytes())
	return cmd, tail.Bytes()
}

type nlistFixture struct {
	name  string
	typ   byte
	sect  byte
	value uint64
}

func TestReadSymsClassifiesKinds(t *testing.T) {
	b := newBuilder(true)
	entries := []nlistFixture{
		{name: "_text_sym", typ: NTypeSect | NExt, sect: 1, value: 0x10},
		{name: "_data_sym", typ: NTypeSect, sect: 2, value: 0x20},
		{name: "_undef_sym", typ: 0, sect: 0, value: 0},
	}
	cmdsAreaSize := 8 + (24 - 8) // one LC_SYMTAB command
	symtabCmd, tail := buildSymtab(b.order, true, b.headerSize(), cmdsAreaSize, entries)
	b.cmd(symtabCmd)
	data := b.finish(tail)

	s := bstream.New(bytes.NewReader(data), int64(len(data)))
	ctx, err := Init(s, 0)
	require.NoError(t, err)
	syms, err := ctx.ReadSyms(s)
	require.NoError(t, err)
	require.Len(t, syms, 3)
	assert.Equal(t, "_text_sym", syms[0].Name)
	assert.Equal(t, byte('T'), syms[0].Type) // external -> uppercase
	assert.Equal(t, "_data_sym", syms[1].Name)
	assert.Equal(t, byte('d'), syms[1].Type) // not external -> lowercase
	assert.Equal(t, "_undef_sym", syms[2].Name)
	assert.Equal(t, byte('u'), syms[2].Type) // sect==0 -> U, not external -> lowercase
}

func TestDepLibsReadsDylibPaths(t *testing.T) {
	b := newBuilder(true)
	path := "/usr/lib/libSystem.B.dylib"
	body := make([]byte, 16+len(path)+1)
	b.order.PutUint32(body[0:4], 8+16) // dylib.offset: past the 8-byte cmd header and the 16-byte dylib_t
	copy(body[16:], path)
	b.cmd(loadCommandBytes(b.order, LcLoadDylib, body))
	data := b.finish(nil)

	s := bstream.New(bytes.NewReader(data), int64(len(data)))
	ctx, err := Init(s, 0)
	require.NoError(t, err)
	deps, err := ctx.DepLibs(s)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, deps)
}

func TestRPathListWalksCommands(t *testing.T) {
	b := newBuilder(true)
	for _, p := range []string{"@loader_path/../Frameworks", "/opt/lib"} {
		body := make([]byte, 4+len(p)+1)
		b.order.PutUint32(body[0:4], 12) // path_offset: right after rpath_command's own 12 bytes
		copy(body[4:], p)
		b.cmd(loadCommandBytes(b.order, LcRpath, body))
	}
	data := b.finish(nil)

	s := bstream.New(bytes.NewReader(data), int64(len(data)))
	ctx, err := Init(s, 0)
	require.NoError(t, err)
	rpaths, err := ctx.RPathList(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"@loader_path/../Frameworks", "/opt/lib"}, rpaths)
}
