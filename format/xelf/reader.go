package xelf

import (
	"encoding/binary"
	"fmt"

	"github.com/appsworld/xbinutils/format/symrec"
	"github.com/appsworld/xbinutils/internal/bstream"
	"github.com/appsworld/xbinutils/xerrors"
)

// Context is the per-file parse context described in §3: once populated it
// caches enough of the dynamic table and symbol/string tables that callers
// never need to re-scan headers mid-walk.
type Context struct {
	Header Header
	order  binary.ByteOrder

	DynamicOffset, DynamicSize int64
	DynstrOffset, DynstrSize   int64
	SymtabOffset, SymtabSize   int64
	StrtabOffset, StrtabSize   int64

	progHeaders []ProgHeader
	sections    []Section
}

// Init reads the ELF header and, where present, the section or program
// header tables needed to locate .dynamic/.dynstr/.symtab/.strtab, per
// §4.3's "Reading context" algorithm: section-header walk first, falling
// back to program headers (resolving a dynamic-table virtual address to a
// file offset via the containing PT_LOAD segment) when sections are
// absent or don't carry what's needed.
func Init(s *bstream.Reader) (*Context, error) {
	hdr, order, err := readHeader(s)
	if err != nil {
		return nil, err
	}
	ctx := &Context{Header: hdr, order: order}

	if err := ctx.readProgramHeaders(s); err != nil {
		return nil, err
	}
	if err := ctx.readSections(s); err != nil {
		return nil, err
	}

	if ctx.DynstrOffset == 0 {
		if err := ctx.fallbackToProgramHeaders(s); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}

func readHeader(s *bstream.Reader) (Header, binary.ByteOrder, error) {
	var ident [elfIdentSize]byte
	if err := s.Seek(0); err != nil {
		return Header{}, nil, err
	}
	if err := s.Read(ident[:]); err != nil {
		return Header{}, nil, fmt.Errorf("elf: reading e_ident: %w", err)
	}
	if ident[0] != 0x7F || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return Header{}, nil, fmt.Errorf("elf: bad e_ident magic: %w", xerrors.ErrBadMagic)
	}
	is64 := ident[4] == 2
	big := ident[5] == 2
	var order binary.ByteOrder = binary.LittleEndian
	if big {
		order = binary.BigEndian
	}

	var hdr Header
	hdr.Is64 = is64
	hdr.Big = big

	rest := make([]byte, restSize(is64))
	if err := s.Read(rest); err != nil {
		return Header{}, nil, fmt.Errorf("elf: reading header: %w: %v", xerrors.ErrTruncated, err)
	}
	r := reader{b: rest, o: order}
	hdr.Type = r.u16()
	hdr.Machine = r.u16()
	r.u32() // e_version
	if is64 {
		hdr.Entry = r.u64()
		hdr.Phoff = r.u64()
		hdr.Shoff = r.u64()
	} else {
		hdr.Entry = uint64(r.u32())
		hdr.Phoff = uint64(r.u32())
		hdr.Shoff = uint64(r.u32())
	}
	r.u32() // e_flags
	r.u16() // e_ehsize
	hdr.Phentsize = r.u16()
	hdr.Phnum = r.u16()
	hdr.Shentsize = r.u16()
	hdr.Shnum = r.u16()
	hdr.Shstrndx = r.u16()
	return hdr, order, nil
}

func restSize(is64 bool) int {
	if is64 {
		return Elf64HeaderSize - elfIdentSize
	}
	return Elf32HeaderSize - elfIdentSize
}

// reader is a tiny cursor over an already-read byte slice, used to decode
// fixed-layout structs without round-tripping through the stream for every
// field.
type reader struct {
	b []byte
	o binary.ByteOrder
	i int
}

func (r *reader) u16() uint16 {
	v := r.o.Uint16(r.b[r.i:])
	r.i += 2
	return v
}
func (r *reader) u32() uint32 {
	v := r.o.Uint32(r.b[r.i:])
	r.i += 4
	return v
}
func (r *reader) u64() uint64 {
	v := r.o.Uint64(r.b[r.i:])
	r.i += 8
	return v
}
func (r *reader) u8() uint8 {
	v := r.b[r.i]
	r.i++
	return v
}

func (ctx *Context) readProgramHeaders(s *bstream.Reader) error {
	if ctx.Header.Phoff == 0 || ctx.Header.Phnum == 0 {
		return nil
	}
	entSize := int(ctx.Header.Phentsize)
	buf := make([]byte, entSize)
	for i := 0; i < int(ctx.Header.Phnum); i++ {
		off := int64(ctx.Header.Phoff) + int64(i)*int64(entSize)
		if err := s.Seek(off); err != nil {
			return err
		}
		if err := s.Read(buf); err != nil {
			return fmt.Errorf("elf: program header %d: %w: %v", i, xerrors.ErrTruncated, err)
		}
		r := reader{b: buf, o: ctx.order}
		var ph ProgHeader
		ph.Type = r.u32()
		if ctx.Header.Is64 {
			flags := r.u32()
			_ = flags
			ph.Offset = r.u64()
			ph.Vaddr = r.u64()
			r.u64() // paddr
			ph.Filesz = r.u64()
			ph.Memsz = r.u64()
		} else {
			ph.Offset = uint64(r.u32())
			ph.Vaddr = uint64(r.u32())
			r.u32() // paddr
			ph.Filesz = uint64(r.u32())
			ph.Memsz = uint64(r.u32())
		}
		ctx.progHeaders = append(ctx.progHeaders, ph)
		if ph.Type == PT_DYNAMIC {
			ctx.DynamicOffset = int64(ph.Offset)
			ctx.DynamicSize = int64(ph.Filesz)
		}
	}
	return nil
}

func (ctx *Context) readSections(s *bstream.Reader) error {
	if ctx.Header.Shoff == 0 || ctx.Header.Shnum == 0 {
		return nil
	}
	entSize := int(ctx.Header.Shentsize)
	buf := make([]byte, entSize)
	for i := 0; i < int(ctx.Header.Shnum); i++ {
		off := int64(ctx.Header.Shoff) + int64(i)*int64(entSize)
		if err := s.Seek(off); err != nil {
			return err
		}
		if err := s.Read(buf); err != nil {
			return fmt.Errorf("elf: section header %d: %w: %v", i, xerrors.ErrTruncated, err)
		}
		r := reader{b: buf, o: ctx.order}
		var sec Section
		sec.Name = r.u32()
		sec.Type = r.u32()
		if ctx.Header.Is64 {
			sec.Flags = r.u64()
			sec.Addr = r.u64()
			sec.Offset = r.u64()
			sec.Size = r.u64()
			sec.Link = r.u32()
			sec.Info = r.u32()
			sec.Align = r.u64()
			sec.EntSize = r.u64()
		} else {
			sec.Flags = uint64(r.u32())
			sec.Addr = uint64(r.u32())
			sec.Offset = uint64(r.u32())
			sec.Size = uint64(r.u32())
			sec.Link = r.u32()
			sec.Info = r.u32()
			sec.Align = uint64(r.u32())
			sec.EntSize = uint64(r.u32())
		}
		ctx.sections = append(ctx.sections, sec)

		switch sec.Type {
		case SHT_DYNAMIC:
			ctx.DynamicOffset = int64(sec.Offset)
			ctx.DynamicSize = int64(sec.Size)
		case SHT_SYMTAB:
			ctx.SymtabOffset = int64(sec.Offset)
			ctx.SymtabSize = int64(sec.Size)
		}
	}
	// second pass: resolve sh_link-based string tables now that every
	// section is loaded.
	for _, sec := range ctx.sections {
		if sec.Type == SHT_DYNAMIC && int(sec.Link) < len(ctx.sections) {
			strs := ctx.sections[sec.Link]
			ctx.DynstrOffset = int64(strs.Offset)
			ctx.DynstrSize = int64(strs.Size)
		}
		if sec.Type == SHT_SYMTAB && int(sec.Link) < len(ctx.sections) {
			strs := ctx.sections[sec.Link]
			ctx.StrtabOffset = int64(strs.Offset)
			ctx.StrtabSize = int64(strs.Size)
		}
	}
	return nil
}

// fallbackToProgramHeaders resolves .dynstr when no section headers gave
// us one: walk the dynamic table for DT_STRTAB/DT_STRSZ, then translate
// the DT_STRTAB virtual address to a file offset via the PT_LOAD segment
// that contains it.
func (ctx *Context) fallbackToProgramHeaders(s *bstream.Reader) error {
	if ctx.DynamicOffset == 0 {
		return nil
	}
	entries, err := ctx.readDynamic(s)
	if err != nil {
		return err
	}
	var strtabVA uint64
	var strsz uint64
	for _, e := range entries {
		switch e.Tag {
		case DT_STRTAB:
			strtabVA = e.Value
		case DT_STRSZ:
			strsz = e.Value
		}
	}
	if strtabVA == 0 {
		return nil
	}
	off, ok := ctx.vaddrToOffset(strtabVA)
	if !ok {
		return fmt.Errorf("elf: DT_STRTAB va 0x%x not covered by any PT_LOAD: %w", strtabVA, xerrors.ErrUnsupported)
	}
	ctx.DynstrOffset = off
	ctx.DynstrSize = int64(strsz)
	return nil
}

func (ctx *Context) vaddrToOffset(va uint64) (int64, bool) {
	for _, ph := range ctx.progHeaders {
		if ph.Type != PT_LOAD {
			continue
		}
		if va >= ph.Vaddr && va < ph.Vaddr+ph.Memsz {
			return int64(ph.Offset) + int64(va-ph.Vaddr), true
		}
	}
	return 0, false
}

func (ctx *Context) dynEntrySize() int {
	if ctx.Header.Is64 {
		return Elf64DynSize
	}
	return Elf32DynSize
}

// readDynamic reads the full .dynamic table, stopping at (and including)
// DT_NULL.
func (ctx *Context) readDynamic(s *bstream.Reader) ([]DynEntry, error) {
	entSize := ctx.dynEntrySize()
	var entries []DynEntry
	off := ctx.DynamicOffset
	for i := 0; ctx.DynamicSize == 0 || int64(i)*int64(entSize) < ctx.DynamicSize; i++ {
		if err := s.Seek(off + int64(i)*int64(entSize)); err != nil {
			return nil, err
		}
		buf := make([]byte, entSize)
		if err := s.Read(buf); err != nil {
			return nil, fmt.Errorf("elf: dynamic entry %d: %w: %v", i, xerrors.ErrTruncated, err)
		}
		r := reader{b: buf, o: ctx.order}
		var e DynEntry
		if ctx.Header.Is64 {
			e.Tag = int64(r.u64())
			e.Value = r.u64()
		} else {
			e.Tag = int64(int32(r.u32()))
			e.Value = uint64(r.u32())
		}
		entries = append(entries, e)
		if e.Tag == DT_NULL {
			break
		}
	}
	return entries, nil
}

// ReadSyms iterates .symtab applying the nm-style classification rules
// from §4.3: skip empty/section/file symbols and local defined symbols;
// map STT_FUNC/STT_OBJECT/undefined/other to T/D/U/S respectively.
func (ctx *Context) ReadSyms(s *bstream.Reader) ([]symrec.Symbol, error) {
	if ctx.SymtabOffset == 0 {
		return nil, fmt.Errorf("elf: no .symtab: %w", xerrors.ErrUnsupported)
	}
	entSize := Elf32SymbolSize
	if ctx.Header.Is64 {
		entSize = Elf64SymbolSize
	}
	count := int(ctx.SymtabSize) / entSize
	var out []symrec.Symbol
	for i := 0; i < count; i++ {
		if err := s.Seek(ctx.SymtabOffset + int64(i)*int64(entSize)); err != nil {
			return nil, err
		}
		buf := make([]byte, entSize)
		if err := s.Read(buf); err != nil {
			return nil, fmt.Errorf("elf: symbol %d: %w: %v", i, xerrors.ErrTruncated, err)
		}
		r := reader{b: buf, o: ctx.order}
		var sym Symbol
		if ctx.Header.Is64 {
			sym.Name = r.u32()
			sym.Info = r.u8()
			sym.Other = r.u8()
			sym.Shndx = r.u16()
			sym.Value = r.u64()
			sym.Size = r.u64()
		} else {
			sym.Name = r.u32()
			sym.Value = uint64(r.u32())
			sym.Size = uint64(r.u32())
			sym.Info = r.u8()
			sym.Other = r.u8()
			sym.Shndx = r.u16()
		}

		typ := sym.Type()
		if typ == STT_SECTION || typ == STT_FILE {
			continue
		}
		name, err := s.ReadCStr(ctx.StrtabOffset+int64(sym.Name), 4096)
		if err != nil || name == "" {
			continue
		}
		if name[0] == '.' || name[0] == '$' {
			continue
		}
		if sym.Bind() == STB_LOCAL && sym.Shndx != 0 {
			continue
		}

		var kind byte
		switch {
		case sym.Shndx == 0:
			kind = 'U'
		case typ == STT_FUNC:
			kind = 'T'
		case typ == STT_OBJECT:
			kind = 'D'
		default:
			kind = 'S'
		}
		if sym.Bind() != STB_LOCAL {
			kind = upper(kind)
		} else {
			kind = lower(kind)
		}
		out = append(out, symrec.Symbol{Name: name, Type: kind, Value: sym.Value, HasValue: true, Section: int(sym.Shndx)})
	}
	return out, nil
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 32
	}
	return b
}
func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}

// DepLibs implements §4.3's dependency reading: PT_INTERP path first, then
// DT_NEEDED/DT_SONAME/DT_AUXILIARY/DT_FILTER strings resolved against
// .dynstr, in file order, until DT_NULL.
func (ctx *Context) DepLibs(s *bstream.Reader) ([]string, error) {
	var out []string
	for _, ph := range ctx.progHeaders {
		if ph.Type == PT_INTERP {
			str, err := s.ReadCStr(int64(ph.Offset), int(ph.Filesz)+1)
			if err == nil && str != "" {
				out = append(out, str)
			}
			break
		}
	}
	entries, err := ctx.readDynamic(s)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		switch e.Tag {
		case DT_NEEDED, DT_SONAME, DT_AUXILIARY, DT_FILTER:
			str, err := s.ReadCStr(ctx.DynstrOffset+int64(e.Value), 4096)
			if err == nil && str != "" {
				out = append(out, str)
			}
		}
	}
	return out, nil
}
