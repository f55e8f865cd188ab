package archive

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appsworld/xbinutils/config"
	"github.com/appsworld/xbinutils/internal/bstream"
)

// padName returns a 16-byte header name field, space-padded per the AR
// convention.
func padName(name string) []byte {
	buf := make([]byte, 16)
	copy(buf, name)
	for i := len(name); i < 16; i++ {
		buf[i] = ' '
	}
	return buf
}

func decimalField(n int, width int) []byte {
	s := itoa(n)
	buf := make([]byte, width)
	copy(buf, s)
	for i := len(s); i < width; i++ {
		buf[i] = ' '
	}
	return buf
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// buildHeader assembles one 60-byte AR member header.
func buildHeader(name string, size int) []byte {
	var h []byte
	h = append(h, padName(name)...)
	h = append(h, decimalField(0, 12)...) // date
	h = append(h, decimalField(0, 6)...)  // uid
	h = append(h, decimalField(0, 6)...)  // gid
	h = append(h, decimalField(0, 8)...)  // mode
	h = append(h, decimalField(size, 10)...)
	h = append(h, '`', '\n')
	return h
}

func buildMember(name string, payload []byte) []byte {
	out := buildHeader(name, len(payload))
	out = append(out, payload...)
	if len(payload)%2 != 0 {
		out = append(out, 0)
	}
	return out
}

func buildArchive(members ...[]byte) []byte {
	var out []byte
	out = append(out, "!<arch>\n"...)
	for _, m := range members {
		out = append(out, m...)
	}
	return out
}

func TestCheckMagicAcceptsStandardAndBSDVariants(t *testing.T) {
	s := newStream([]byte("!<arch>\n"))
	require.NoError(t, CheckMagic(s))

	s = newStream([]byte("!<arch>\r\n"))
	require.NoError(t, CheckMagic(s))
}

func TestCheckMagicRejectsBadPrefix(t *testing.T) {
	s := newStream([]byte("not-an-arc"))
	assert.Error(t, CheckMagic(s))
}

func newStream(data []byte) *bstream.Reader {
	return bstream.New(bytes.NewReader(data), int64(len(data)))
}

func TestIterateShortNamesAndSymtab(t *testing.T) {
	symtab := buildMember("/", []byte{0, 0, 0, 0})
	objA := buildMember("a.o", []byte("AAAA"))
	objB := buildMember("b.o/", []byte("BBB"))

	data := buildArchive(symtab, objA, objB)
	members, err := Iterate(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, members, 3)

	assert.True(t, members[0].IsSymtab)
	assert.Equal(t, "/", members[0].Name)

	assert.Equal(t, "a.o", members[1].Name)
	assert.False(t, members[1].IsSymtab)
	assert.Equal(t, int64(4), members[1].Size)

	assert.Equal(t, "b.o", members[2].Name)
	assert.Equal(t, int64(3), members[2].Size)
}

func TestIterateLongNameTableResolution(t *testing.T) {
	longNames := "a_very_long_object_file_name.o/\nanother_long_name.o/\n"
	longNameMember := buildMember("//", []byte(longNames))
	obj := buildMember("/0", []byte("XYZ"))

	data := buildArchive(longNameMember, obj)
	members, err := Iterate(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "a_very_long_object_file_name.o/", members[0].Name)
	assert.Equal(t, DialectMSVC, members[0].Dialect)
}

func TestIterateBSDExtendedName(t *testing.T) {
	// "#N/L": the member payload begins with exactly N bytes holding the
	// name, occupying L bytes total (N plus any padding) before the
	// object's true data follows. L does NOT include the true data.
	innerName := "bsd_named_object.o"
	trueData := []byte("PAYLOADBYTES")
	nameArea := []byte(innerName) // no padding needed: L == N here
	payload := append(append([]byte{}, nameArea...), trueData...)
	member := buildMember("#"+itoa(len(innerName))+"/"+itoa(len(nameArea)), payload)

	data := buildArchive(member)
	members, err := Iterate(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, innerName, members[0].Name)
	assert.Equal(t, DialectBSD, members[0].Dialect)
	assert.Equal(t, int64(len(trueData)), members[0].Size)
}

func buildLinkerMember(offsets []uint32, symbolToIndex map[string]uint16, names []string) []byte {
	var buf bytes.Buffer
	putU32 := func(v uint32) {
		buf.WriteByte(byte(v))
		buf.WriteByte(byte(v >> 8))
		buf.WriteByte(byte(v >> 16))
		buf.WriteByte(byte(v >> 24))
	}
	putU16 := func(v uint16) {
		buf.WriteByte(byte(v))
		buf.WriteByte(byte(v >> 8))
	}

	putU32(uint32(len(offsets)))
	for _, o := range offsets {
		putU32(o)
	}
	putU32(uint32(len(names)))
	for _, n := range names {
		putU16(symbolToIndex[n])
	}
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func TestReadSymsFallsBackToLinkerMemberMap(t *testing.T) {
	// Build an archive with one object member whose own format can't be
	// detected (so readMemberSyms yields nothing), relying entirely on the
	// "/" linker member's symbol map keyed by header offset.
	objPayload := []byte("not-a-real-object-file-body")
	objHeader := buildHeader("dummy.o", len(objPayload))

	// Compute header offset of the object member ahead of time: magic (8)
	// + linker-member header+payload (computed after we know its size).
	names := []string{"exported_symbol"}
	linkerPayload := buildLinkerMember([]uint32{0}, map[string]uint16{"exported_symbol": 1}, names)
	linkerMember := buildMember("/", linkerPayload)

	objMemberHeaderOffset := int64(len("!<arch>\n")) + int64(len(linkerMember))

	// Patch the offsets table to reference the real header offset now that
	// it's known.
	linkerPayload = buildLinkerMember([]uint32{uint32(objMemberHeaderOffset)}, map[string]uint16{"exported_symbol": 1}, names)
	linkerMember = buildMember("/", linkerPayload)

	objMember := append(objHeader, objPayload...)
	if len(objPayload)%2 != 0 {
		objMember = append(objMember, 0)
	}

	data := buildArchive(linkerMember, objMember)
	members, err := ReadSyms(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Len(t, members[0].Symbols, 1)
	assert.Equal(t, "exported_symbol", members[0].Symbols[0].Name)
	assert.Equal(t, byte('T'), members[0].Symbols[0].Type)
}

func TestReadSymsSkipsFirstLinkerMemberAndUsesSecond(t *testing.T) {
	// Real .lib archives carry two "/" members: a big-endian "first linker
	// member" ReadSyms can't use (its counts read as little-endian blow the
	// sanity bounds), followed by the little-endian "Second Linker Member"
	// this format actually decodes. ReadSyms must keep trying after the
	// first one fails to parse, not give up on the whole archive.
	objPayload := []byte("not-a-real-object-file-body")
	objHeader := buildHeader("dummy.o", len(objPayload))
	objMember := append(objHeader, objPayload...)
	if len(objPayload)%2 != 0 {
		objMember = append(objMember, 0)
	}

	// Garbage first linker member: a big-endian member count of 1 (bytes
	// 00 00 00 01) reads back as the implausibly large little-endian value
	// 0x01000000, tripping parseLinkerMemberSymbols's numMembers bound.
	garbageFirstLinker := buildMember("/", []byte{0x00, 0x00, 0x00, 0x01, 0xFF, 0xFF, 0xFF, 0xFF})

	names := []string{"exported_symbol"}
	objMemberHeaderOffset := int64(len("!<arch>\n")) + int64(len(garbageFirstLinker)) + int64(len(buildMember("/", buildLinkerMember([]uint32{0}, map[string]uint16{"exported_symbol": 1}, names))))
	secondLinkerPayload := buildLinkerMember([]uint32{uint32(objMemberHeaderOffset)}, map[string]uint16{"exported_symbol": 1}, names)
	secondLinkerMember := buildMember("/", secondLinkerPayload)

	data := buildArchive(garbageFirstLinker, secondLinkerMember, objMember)
	members, err := ReadSyms(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Len(t, members[0].Symbols, 1)
	assert.Equal(t, "exported_symbol", members[0].Symbols[0].Name)
}

func TestExtractWritesMembersAndRenamesCollisions(t *testing.T) {
	dir := t.TempDir()

	// Pre-seed a colliding file so the first member must be renamed.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dup.o"), []byte("existing"), 0o644))

	m1 := buildMember("dup.o", []byte("first"))
	m2 := buildMember("dup.o", []byte("second"))
	data := buildArchive(m1, m2)

	written, err := Extract(bytes.NewReader(data), int64(len(data)), dir)
	require.NoError(t, err)
	require.Len(t, written, 2)

	assert.Equal(t, filepath.Join(dir, "dup_1.o"), written[0])
	assert.Equal(t, filepath.Join(dir, "dup_2.o"), written[1])

	got1, err := os.ReadFile(written[0])
	require.NoError(t, err)
	assert.Equal(t, "first", string(got1))

	got2, err := os.ReadFile(written[1])
	require.NoError(t, err)
	assert.Equal(t, "second", string(got2))
}

func TestExtractSkipsSymbolTableMember(t *testing.T) {
	dir := t.TempDir()
	symtab := buildMember("/", []byte{0, 0, 0, 0})
	obj := buildMember("real.o", []byte("DATA"))
	data := buildArchive(symtab, obj)

	written, err := Extract(bytes.NewReader(data), int64(len(data)), dir)
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.Equal(t, filepath.Join(dir, "real.o"), written[0])
}

func TestExtractStagesThroughConfigTmpDirWhenSet(t *testing.T) {
	dir := t.TempDir()
	stage := t.TempDir()

	prev := config.TmpDir
	config.TmpDir = stage
	defer func() { config.TmpDir = prev }()

	obj := buildMember("staged.o", []byte("DATA"))
	data := buildArchive(obj)

	written, err := Extract(bytes.NewReader(data), int64(len(data)), dir)
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.Equal(t, filepath.Join(dir, "staged.o"), written[0])

	got, err := os.ReadFile(written[0])
	require.NoError(t, err)
	assert.Equal(t, "DATA", string(got))

	// The staged temp file must not be left behind in TmpDir.
	entries, err := os.ReadDir(stage)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
