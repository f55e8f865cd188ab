package archive

import (
	"fmt"
	"io"

	"github.com/appsworld/xbinutils/format"
	"github.com/appsworld/xbinutils/format/symrec"
	"github.com/appsworld/xbinutils/format/xcoff"
	"github.com/appsworld/xbinutils/format/xelf"
	"github.com/appsworld/xbinutils/format/xmacho"
	"github.com/appsworld/xbinutils/format/xwasm"
	"github.com/appsworld/xbinutils/internal/bstream"
	"github.com/appsworld/xbinutils/xerrors"
)

// CheckMagic verifies the 8-byte "!<arch>\n" prefix (or its "\r\n"/">\n"
// BSD/Windows variants), leaving the stream positioned right after it.
func CheckMagic(s *bstream.Reader) error {
	if err := s.Seek(0); err != nil {
		return err
	}
	var magic [MagicSize]byte
	if err := s.Read(magic[:]); err != nil {
		return fmt.Errorf("archive: reading magic: %w: %v", xerrors.ErrTruncated, err)
	}
	if magic[0] != '!' || magic[1] != '<' || magic[2] != 'a' || magic[3] != 'r' ||
		magic[4] != 'c' || magic[5] != 'h' || (magic[6] != '>' && magic[6] != '\n') {
		return fmt.Errorf("archive: bad magic: %w", xerrors.ErrBadMagic)
	}
	if magic[7] == '\n' {
		return nil
	}
	if magic[7] == '\r' {
		var lf [1]byte
		if err := s.Read(lf[:]); err != nil || lf[0] != '\n' {
			return fmt.Errorf("archive: bad magic terminator: %w", xerrors.ErrBadMagic)
		}
		return nil
	}
	return fmt.Errorf("archive: bad magic terminator: %w", xerrors.ErrBadMagic)
}

type rawHeader struct {
	name, date, uid, gid, mode, size, fmag []byte
}

func readHeader(s *bstream.Reader) (rawHeader, error) {
	var buf [HeaderSize]byte
	if err := s.Read(buf[:]); err != nil {
		return rawHeader{}, err
	}
	return rawHeader{
		name: buf[0:16],
		date: buf[16:28],
		uid:  buf[28:34],
		gid:  buf[34:40],
		mode: buf[40:48],
		size: buf[48:58],
		fmag: buf[58:60],
	}, nil
}

// parseDecimal reads a left-justified, space-padded decimal field,
// stopping at the first space or NUL.
func parseDecimal(b []byte) (int64, error) {
	var v int64
	seenDigit := false
	for _, c := range b {
		if c == ' ' || c == 0 {
			break
		}
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("archive: non-decimal byte %q: %w", c, xerrors.ErrParse)
		}
		v = v*10 + int64(c-'0')
		seenDigit = true
	}
	if !seenDigit {
		return 0, fmt.Errorf("archive: empty decimal field: %w", xerrors.ErrParse)
	}
	return v, nil
}

func isSymbolTableName(name string) bool {
	if name == "/" || name == "//" {
		return true
	}
	return len(name) >= 9 && name[:9] == "__.SYMDEF"
}

// trimShortName copies header.name up to the first space, NUL, or slash
// (the SysV/GNU "name/" convention).
func trimShortName(raw []byte) string {
	n := 0
	for n < len(raw) && raw[n] != ' ' && raw[n] != 0 && raw[n] != '/' {
		n++
	}
	return string(raw[:n])
}

// longNameAt resolves a NUL- or newline-terminated entry in the "//"
// long-name table at the given byte offset.
func longNameAt(table []byte, offset int64) (string, bool) {
	if offset < 0 || offset >= int64(len(table)) {
		return "", false
	}
	end := offset
	for end < int64(len(table)) && table[end] != 0 && table[end] != '\n' {
		end++
	}
	return string(table[offset:end]), true
}

func slashIndex(name []byte) int {
	for i := 1; i < len(name); i++ {
		if name[i] == '/' {
			return i
		}
	}
	return -1
}

// parseBSDName implements the "#N/L" convention: N is the name's own
// length, L is the total number of bytes occupied by the name in the
// member's payload (N plus padding/NUL). As a supplement beyond plain
// spec.md §4.7 behaviour, when a long-name table is present and N looks
// like a table offset rather than a length (L < N, which an inline name
// length can never satisfy), the name is resolved there instead — Xcode's
// ranlib occasionally emits this BSD/long-table hybrid.
func parseBSDName(s *bstream.Reader, raw []byte, longNames []byte) (name string, consumed int64, err error) {
	slash := slashIndex(raw)
	if slash <= 0 {
		return "", 0, fmt.Errorf("archive: malformed BSD name %q: %w", raw, xerrors.ErrParse)
	}
	n, err := parseDecimal(raw[1:slash])
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("archive: malformed BSD name length: %w", xerrors.ErrParse)
	}
	total, err := parseDecimal(raw[slash+1:])
	if err != nil || total <= 0 {
		return "", 0, fmt.Errorf("archive: malformed BSD total length: %w", xerrors.ErrParse)
	}

	if total < n && longNames != nil {
		if resolved, ok := longNameAt(longNames, n); ok {
			return resolved, 0, nil
		}
	}

	buf := make([]byte, total)
	if err := s.Read(buf); err != nil {
		return "", 0, err
	}
	if n > total {
		n = total
	}
	return string(buf[:n]), total, nil
}

// parseMemberName implements §4.7's dialect-detection switch: "/<digits>"
// is an MSVC/SysV long-name-table offset, "/" or "__.SYMDEF[...]" is a
// symbol-table member, "#N/L" is BSD's name-in-payload convention, and
// anything else is a short inline name. consumed reports how many bytes
// of the member's declared size were read from the stream itself
// (non-zero only for the BSD case).
func parseMemberName(s *bstream.Reader, raw rawHeader, longNames []byte) (name string, dialect Dialect, consumed int64, isSymtab bool, err error) {
	switch {
	case raw.name[0] == '#' && slashIndex(raw.name) > 0:
		name, consumed, err = parseBSDName(s, raw.name, longNames)
		return name, DialectBSD, consumed, isSymbolTableName(name), err

	case raw.name[0] == '/' && raw.name[1] >= '0' && raw.name[1] <= '9':
		offset, perr := parseDecimal(raw.name[1:])
		if perr != nil {
			return "", DialectUnknown, 0, false, perr
		}
		resolved, ok := longNameAt(longNames, offset)
		if !ok {
			return "", DialectUnknown, 0, false, fmt.Errorf("archive: long-name offset %d out of range: %w", offset, xerrors.ErrParse)
		}
		return resolved, DialectMSVC, 0, false, nil

	case raw.name[0] == '/':
		return "/", DialectSysV, 0, true, nil

	default:
		name = trimShortName(raw.name)
		return name, DialectSysV, 0, isSymbolTableName(name), nil
	}
}

// Iterate walks every archive member, resolving names against the "//"
// long-name table as it is encountered (it must precede any member that
// references it, per the on-disk convention every dialect shares). The
// long-name table itself is never surfaced as a Member.
func Iterate(r io.ReaderAt, size int64) ([]Member, error) {
	s := bstream.New(r, size)
	if err := CheckMagic(s); err != nil {
		return nil, err
	}

	var longNames []byte
	var members []Member
	for s.Offset() < s.Size() {
		headerOffset := s.Offset()
		raw, err := readHeader(s)
		if err != nil {
			break
		}
		if raw.fmag[0] != '`' || raw.fmag[1] != '\n' {
			break
		}
		declaredSize, err := parseDecimal(raw.size)
		if err != nil {
			break
		}

		if raw.name[0] == '/' && raw.name[1] == '/' {
			longNames = make([]byte, declaredSize)
			if err := s.Read(longNames); err != nil {
				break
			}
			alignPad(s, declaredSize)
			continue
		}

		name, dialect, consumed, isSymtab, err := parseMemberName(s, raw, longNames)
		if err != nil {
			if err := s.Skip(declaredSize - consumed); err != nil {
				break
			}
			alignPad(s, declaredSize)
			continue
		}

		payloadOffset := s.Offset()
		payloadSize := declaredSize - consumed
		members = append(members, Member{
			Name:         name,
			Dialect:      dialect,
			HeaderOffset: headerOffset,
			Offset:       payloadOffset,
			Size:         payloadSize,
			IsSymtab:     isSymtab,
		})

		if err := s.Skip(payloadSize); err != nil {
			break
		}
		alignPad(s, declaredSize)
	}
	return members, nil
}

// alignPad skips the single pad byte AR/MSVC-lib inserts after an
// odd-sized member, bringing the stream to an even file offset.
func alignPad(s *bstream.Reader, declaredSize int64) {
	if declaredSize%2 != 0 {
		_ = s.Skip(1)
	}
}

// offsetReaderAt presents the byte range [base, base+size) of an
// underlying io.ReaderAt as its own zero-based stream, letting every
// per-format reader (which assumes its own file starts at offset 0) run
// unmodified against one archive member.
type offsetReaderAt struct {
	r    io.ReaderAt
	base int64
	size int64
}

func (o *offsetReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > o.size {
		return 0, fmt.Errorf("archive: member read at %d exceeds size %d", off, o.size)
	}
	if off+int64(len(p)) > o.size {
		p = p[:o.size-off]
	}
	return o.r.ReadAt(p, o.base+off)
}

// parseLinkerMemberSymbols decodes the MSVC "Second Linker Member"
// format: (num_members u32 LE, offsets[] u32 LE, num_symbols u32 LE,
// indices[] u16 LE, string_table), producing a map from each referenced
// member's archive header offset to the symbol names the linker member
// attributes to it.
func parseLinkerMemberSymbols(s *bstream.Reader, memberSize int64) (map[int64][]string, error) {
	start := s.Offset()

	numMembers, err := s.ReadU32LE()
	if err != nil {
		return nil, err
	}
	if numMembers == 0 || numMembers > 65536 || int64(numMembers)*4 >= memberSize {
		return nil, fmt.Errorf("archive: implausible linker-member count %d: %w", numMembers, xerrors.ErrParse)
	}

	offsets := make([]uint32, numMembers)
	for i := range offsets {
		offsets[i], err = s.ReadU32LE()
		if err != nil {
			return nil, err
		}
	}

	numSymbols, err := s.ReadU32LE()
	if err != nil {
		return nil, err
	}
	if numSymbols == 0 || numSymbols > 1000000 {
		return nil, fmt.Errorf("archive: implausible linker-member symbol count %d: %w", numSymbols, xerrors.ErrParse)
	}

	indices := make([]uint16, numSymbols)
	for i := range indices {
		indices[i], err = s.ReadU16LE()
		if err != nil {
			return nil, err
		}
	}

	stringTableSize := memberSize - (s.Offset() - start)
	if stringTableSize < 0 {
		return nil, fmt.Errorf("archive: linker-member string table has negative size: %w", xerrors.ErrParse)
	}
	strtab := make([]byte, stringTableSize)
	if err := s.Read(strtab); err != nil {
		return nil, err
	}

	result := make(map[int64][]string)
	pos := 0
	for i := 0; i < int(numSymbols) && pos < len(strtab); i++ {
		end := pos
		for end < len(strtab) && strtab[end] != 0 {
			end++
		}
		symName := string(strtab[pos:end])
		pos = end + 1

		idx := indices[i]
		if idx == 0 || int(idx) > len(offsets) {
			continue
		}
		headerOffset := int64(offsets[idx-1])
		result[headerOffset] = append(result[headerOffset], symName)
	}
	return result, nil
}

// ReadSyms implements §4.7's symbol aggregation: iterate every member,
// attempt the MSVC linker-member symbol map first, then run each object
// member through its own format's symbol reader; a member whose reader
// yields nothing falls back to the linker-member map, synthesising
// `{name, type: 'T'}` entries from that map.
func ReadSyms(r io.ReaderAt, size int64) ([]symrec.Member, error) {
	members, err := Iterate(r, size)
	if err != nil {
		return nil, err
	}

	// MSVC .lib archives carry two "/" members: the classic big-endian
	// first linker member, then the little-endian second linker member
	// this format actually decodes. Attempt every "/" member and merge
	// whatever parses, rather than stopping at the first one — the first
	// member's counts, read as little-endian, will almost always blow
	// parseLinkerMemberSymbols's sanity bounds and are simply skipped,
	// matching mslib/readsyms.c's per-member retry-and-merge loop.
	linkerSyms := map[int64][]string{}
	for _, m := range members {
		if m.Name != "/" || !m.IsSymtab {
			continue
		}
		s := bstream.New(&offsetReaderAt{r: r, base: m.Offset, size: m.Size}, m.Size)
		parsed, err := parseLinkerMemberSymbols(s, m.Size)
		if err != nil {
			continue
		}
		for offset, names := range parsed {
			linkerSyms[offset] = append(linkerSyms[offset], names...)
		}
	}

	var out []symrec.Member
	for _, m := range members {
		if m.IsSymtab {
			continue
		}

		memberR := &offsetReaderAt{r: r, base: m.Offset, size: m.Size}
		syms, _ := readMemberSyms(memberR, m.Size)
		if len(syms) == 0 {
			for _, name := range linkerSyms[m.HeaderOffset] {
				syms = append(syms, symrec.Symbol{Name: name, Type: 'T'})
			}
		}
		out = append(out, symrec.Member{ObjectFile: m.Name, Symbols: syms})
	}
	return out, nil
}

func readMemberSyms(r io.ReaderAt, size int64) ([]symrec.Symbol, error) {
	tag, err := format.Detect(r, size)
	if err != nil {
		return nil, err
	}

	s := bstream.New(r, size)
	switch tag {
	case format.Coff:
		ctx, err := xcoff.Init(s, 0)
		if err != nil {
			return nil, err
		}
		return ctx.ReadSyms(s)
	case format.Elf:
		ctx, err := xelf.Init(s)
		if err != nil {
			return nil, err
		}
		return ctx.ReadSyms(s)
	case format.MachO:
		ctx, err := xmacho.Init(s, 0)
		if err != nil {
			return nil, err
		}
		return ctx.ReadSyms(s)
	case format.Wasm:
		return xwasm.ReadSyms(s, 0)
	default:
		return nil, nil
	}
}
