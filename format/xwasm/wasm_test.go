package xwasm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsworld/xbinutils/internal/bstream"
)

// uleb32 encodes n as unsigned LEB128, the wire format every wasm section
// size, name length, and symbol-table field uses.
func uleb32(n uint32) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if n == 0 {
			return out
		}
	}
}

func name(s string) []byte {
	return append(uleb32(uint32(len(s))), []byte(s)...)
}

// section wraps payload with its id and ULEB128-encoded length.
func section(id uint8, payload []byte) []byte {
	out := []byte{id}
	out = append(out, uleb32(uint32(len(payload)))...)
	return append(out, payload...)
}

func wasmModule(sections ...[]byte) []byte {
	var out bytes.Buffer
	out.Write(Magic[:])
	out.Write([]byte{0x01, 0x00, 0x00, 0x00})
	for _, s := range sections {
		out.Write(s)
	}
	return out.Bytes()
}

func newStream(data []byte) *bstream.Reader {
	return bstream.New(bytes.NewReader(data), int64(len(data)))
}

func TestCheckHeaderRejectsBadMagic(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6e, 0x01, 0x00, 0x00, 0x00}
	s := newStream(data)
	err := CheckHeader(s, 0)
	assert.Error(t, err)
}

func TestCheckHeaderAcceptsValidModule(t *testing.T) {
	data := wasmModule()
	s := newStream(data)
	require.NoError(t, CheckHeader(s, 0))
}

func linkingSymtabEntry(kind uint8, flags uint32, extra []byte, nm string) []byte {
	out := []byte{kind}
	out = append(out, uleb32(flags)...)
	out = append(out, extra...)
	out = append(out, name(nm)...)
	return out
}

func TestReadSymsParsesLinkingSymtabSymbols(t *testing.T) {
	// function symbol, defined (index present)
	funcSym := linkingSymtabEntry(SymtabKindFunction, 0, uleb32(3), "do_work")
	// data symbol, undefined (no segment/offset/size fields)
	dataSym := linkingSymtabEntry(SymtabKindData, SymtabFlagUndefined, nil, "g_counter")
	// global symbol, defined
	globalSym := linkingSymtabEntry(SymtabKindGlobal, 0, uleb32(1), "g_flag")

	symtab := append(uleb32(3), funcSym...)
	symtab = append(symtab, dataSym...)
	symtab = append(symtab, globalSym...)

	subsec := append([]byte{LinkingSubsecSymtab}, uleb32(uint32(len(symtab)))...)
	subsec = append(subsec, symtab...)

	linkingPayload := append(uleb32(1), subsec...) // version=1
	custom := append(name(CustomLinking), linkingPayload...)

	data := wasmModule(section(SectionCustom, custom))
	s := newStream(data)
	syms, err := ReadSyms(s, 0)
	require.NoError(t, err)
	require.Len(t, syms, 3)
	assert.Equal(t, "do_work", syms[0].Name)
	assert.Equal(t, byte('T'), syms[0].Type)
	assert.Equal(t, "g_counter", syms[1].Name)
	assert.Equal(t, byte('U'), syms[1].Type)
	assert.Equal(t, "g_flag", syms[2].Name)
	assert.Equal(t, byte('D'), syms[2].Type)
}

func TestReadSymsNameSectionFallbackOnlyWhenEmpty(t *testing.T) {
	nameFuncs := append(uleb32(1), uleb32(0)...) // count=1, index=0
	nameFuncs = append(nameFuncs, name("exported_fn")...)
	nameSubsec := append([]byte{NameSubsecFunctions}, uleb32(uint32(len(nameFuncs)))...)
	nameSubsec = append(nameSubsec, nameFuncs...)
	customName := append(name(CustomName), nameSubsec...)

	data := wasmModule(section(SectionCustom, customName))
	s := newStream(data)
	syms, err := ReadSyms(s, 0)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "exported_fn", syms[0].Name)
	assert.Equal(t, byte('T'), syms[0].Type)
}

func TestReadSymsNameSectionSkippedWhenLinkingAlreadyFoundSymbols(t *testing.T) {
	funcSym := linkingSymtabEntry(SymtabKindFunction, 0, uleb32(0), "from_linking")
	symtab := append(uleb32(1), funcSym...)
	subsec := append([]byte{LinkingSubsecSymtab}, uleb32(uint32(len(symtab)))...)
	subsec = append(subsec, symtab...)
	linkingPayload := append(uleb32(1), subsec...)
	customLinking := append(name(CustomLinking), linkingPayload...)

	nameFuncs := append(uleb32(1), uleb32(0)...)
	nameFuncs = append(nameFuncs, name("from_name_section")...)
	nameSubsec := append([]byte{NameSubsecFunctions}, uleb32(uint32(len(nameFuncs)))...)
	nameSubsec = append(nameSubsec, nameFuncs...)
	customName := append(name(CustomName), nameSubsec...)

	data := wasmModule(section(SectionCustom, customLinking), section(SectionCustom, customName))
	s := newStream(data)
	syms, err := ReadSyms(s, 0)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "from_linking", syms[0].Name)
}

func buildImport(module, field string, kind uint8, typeData []byte) []byte {
	out := append(name(module), name(field)...)
	out = append(out, kind)
	out = append(out, typeData...)
	return out
}

func TestReadSymsImportSectionCoversEveryKind(t *testing.T) {
	limits32NoMax := uleb32(0x00) // flags=0, one bound follows
	limits32NoMax = append(limits32NoMax, uleb32(0)...)

	imports := []byte{}
	imports = append(imports, buildImport("env", "do_import", KindFunc, uleb32(2))...)
	imports = append(imports, buildImport("env", "my_table", KindTable, append([]byte{0x70}, limits32NoMax...))...)
	imports = append(imports, buildImport("env", "my_memory", KindMemory, limits32NoMax)...)
	imports = append(imports, buildImport("env", "my_global", KindGlobal, []byte{0x7f, 0x00})...)
	imports = append(imports, buildImport("env", "", KindTag, uleb32(0))...)

	payload := append(uleb32(5), imports...)
	data := wasmModule(section(SectionImport, payload))
	s := newStream(data)
	syms, err := ReadSyms(s, 0)
	require.NoError(t, err)
	require.Len(t, syms, 5)
	for _, sym := range syms {
		assert.Equal(t, byte('U'), sym.Type)
	}
	assert.Equal(t, "do_import", syms[0].Name)
	assert.Equal(t, "my_table", syms[1].Name)
	assert.Equal(t, "my_memory", syms[2].Name)
	assert.Equal(t, "my_global", syms[3].Name)
	assert.Equal(t, "env", syms[4].Name) // empty field falls back to module
}

func TestReadSymsExportSectionClassifiesFuncVsOther(t *testing.T) {
	exports := append(name("exported_func"), KindFunc)
	exports = append(exports, uleb32(0)...)
	exports = append(exports, name("exported_mem")...)
	exports = append(exports, KindMemory)
	exports = append(exports, uleb32(0)...)

	payload := append(uleb32(2), exports...)
	data := wasmModule(section(SectionExport, payload))
	s := newStream(data)
	syms, err := ReadSyms(s, 0)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "exported_func", syms[0].Name)
	assert.Equal(t, byte('T'), syms[0].Type)
	assert.Equal(t, "exported_mem", syms[1].Name)
	assert.Equal(t, byte('D'), syms[1].Type)
}

func TestReadSymsSkipsUnknownSectionsAndKeepsScanning(t *testing.T) {
	typeSection := section(1, []byte{0xde, 0xad, 0xbe, 0xef})
	exports := append(name("after_skip"), KindFunc)
	exports = append(exports, uleb32(0)...)
	exportPayload := append(uleb32(1), exports...)

	data := wasmModule(typeSection, section(SectionExport, exportPayload))
	s := newStream(data)
	syms, err := ReadSyms(s, 0)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "after_skip", syms[0].Name)
}
