package xelf

import (
	"encoding/binary"
	"io"

	"github.com/appsworld/xbinutils/format/objfmt"
)

// machineFor maps an objfmt.Arch to its ELF e_machine code, per
// core/src/xmake/binutils/elf/bin2elf.c's arch table. Unrecognised arches
// fall back to x86_64, matching the original's "return X86_64" default.
func machineFor(arch objfmt.Arch) uint16 {
	switch arch {
	case objfmt.ArchX86:
		return EM_386
	case objfmt.ArchX86_64:
		return EM_X86_64
	case objfmt.ArchARM:
		return EM_ARM
	case objfmt.ArchARM64:
		return EM_AARCH64
	case objfmt.ArchMIPS, objfmt.ArchMIPS64:
		return EM_MIPS
	case objfmt.ArchPPC:
		return EM_PPC
	case objfmt.ArchPPC64:
		return EM_PPC64
	case objfmt.ArchRISCV, objfmt.ArchRISCV64:
		return EM_RISCV
	case objfmt.ArchSPARC:
		return EM_SPARC
	case objfmt.ArchSPARC64:
		return EM_SPARCV9
	case objfmt.ArchS390, objfmt.ArchS390X:
		return EM_S390
	case objfmt.ArchLoong, objfmt.ArchLoong64:
		return EM_LOONGARCH
	case objfmt.ArchWasm, objfmt.ArchWasm64:
		return EM_WASM
	case objfmt.ArchSuperH:
		return EM_SH
	case objfmt.ArchIA64:
		return EM_IA64
	default:
		return EM_X86_64
	}
}

// sanitizeSymbol replaces every byte that is not a letter, digit, or
// underscore with an underscore, per §4.3 step 2.
func sanitizeSymbol(s string) string {
	b := []byte(s)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_' {
			b[i] = '_'
		}
	}
	return string(b)
}

// WriteParams bundles bin2elf's optional arguments.
type WriteParams struct {
	SymbolPrefix string
	Arch         objfmt.Arch
	Basename     string
	ZeroEnd      bool
}

const (
	shstrtabContent = "\x00.rodata\x00.symtab\x00.strtab\x00.shstrtab\x00.note.GNU-stack\x00"
	shNameRodata    = 1
	shNameSymtab    = 9
	shNameStrtab    = 17
	shNameShstrtab  = 25
	shNameNoteStack = 35
)

// WriteBin2Elf emits a minimal relocatable ELF object embedding data as
// two global symbols (`<symbol>_start`, `<symbol>_end`) exposed via a
// `.rodata` section, per §4.3's six-section object-writing algorithm.
func WriteBin2Elf(w io.Writer, data []byte, p WriteParams) error {
	is64 := p.Arch.Is64()
	basename := p.Basename
	if basename == "" {
		basename = "data"
	}
	symName := p.SymbolPrefix + basename
	if p.SymbolPrefix == "" {
		symName = "_binary_" + basename
	}
	symName = sanitizeSymbol(symName)
	symStart := symName + "_start"
	symEnd := symName + "_end"

	payload := data
	if p.ZeroEnd {
		payload = append(append([]byte(nil), data...), 0)
	}

	if is64 {
		return writeBin2Elf64(w, payload, symStart, symEnd, p.Arch)
	}
	return writeBin2Elf32(w, payload, symStart, symEnd, p.Arch)
}

func writeBin2Elf32(w io.Writer, payload []byte, symStart, symEnd string, arch objfmt.Arch) error {
	const (
		headerSize  = uint32(Elf32HeaderSize)
		secSize     = uint32(Elf32SectionSize)
		symSize     = uint32(Elf32SymbolSize)
		sectionCnt  = 6
	)
	secHdrsOfs := headerSize
	rodataOfs := secHdrsOfs + sectionCnt*secSize
	rodataSize := uint32(len(payload))
	rodataPad := (4 - rodataSize%4) % 4
	symtabOfs := rodataOfs + rodataSize + rodataPad
	symtabSize := 3 * symSize
	symtabPad := (4 - symtabSize%4) % 4
	strtabOfs := symtabOfs + symtabSize + symtabPad
	strtabSize := uint32(1 + len(symStart) + 1 + len(symEnd) + 1)
	strtabPad := (4 - strtabSize%4) % 4
	shstrtabOfs := strtabOfs + strtabSize + strtabPad
	shstrtabSize := uint32(len(shstrtabContent))

	buf := newWBuf(binary.LittleEndian)
	ident := []byte{0x7f, 'E', 'L', 'F', 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	buf.bytes(ident)
	buf.u16(1) // ET_REL
	buf.u16(machineFor(arch))
	buf.u32(1) // e_version
	buf.u32(0) // e_entry
	buf.u32(0) // e_phoff
	buf.u32(secHdrsOfs)
	buf.u32(0) // e_flags
	buf.u16(uint16(headerSize))
	buf.u16(0) // e_phentsize
	buf.u16(0) // e_phnum
	buf.u16(uint16(secSize))
	buf.u16(sectionCnt)
	buf.u16(4) // e_shstrndx

	writeSection32(buf, 0, 0, 0, 0, 0, 0, 0, 0, 0) // NULL
	writeSection32(buf, shNameRodata, SHT_PROGBITS, SHF_ALLOC, rodataOfs, rodataSize, 0, 0, 4, 0)
	writeSection32(buf, shNameSymtab, SHT_SYMTAB, 0, symtabOfs, symtabSize, 3, 1, 4, symSize)
	writeSection32(buf, shNameStrtab, SHT_STRTAB, 0, strtabOfs, strtabSize, 0, 0, 1, 0)
	writeSection32(buf, shNameShstrtab, SHT_STRTAB, 0, shstrtabOfs, shstrtabSize, 0, 0, 1, 0)
	writeSection32(buf, shNameNoteStack, SHT_PROGBITS, 0, shstrtabOfs+shstrtabSize, 0, 0, 0, 1, 0)

	buf.bytes(payload)
	buf.pad(int(rodataPad))

	symInfo := uint32(STB_GLOBAL)<<4 | uint32(STT_OBJECT)
	writeSym32(buf, 0, 0, 0, 0) // NULL symbol
	writeSym32(buf, 1, symInfo, 1, 0)
	writeSym32(buf, uint32(1+len(symStart)+1), symInfo, 1, uint32(len(payload)))
	buf.pad(int(symtabPad))

	buf.u8(0)
	buf.str(symStart)
	buf.u8(0)
	buf.str(symEnd)
	buf.u8(0)
	buf.pad(int(strtabPad))

	buf.str(shstrtabContent)

	_, err := w.Write(buf.b)
	return err
}

func writeBin2Elf64(w io.Writer, payload []byte, symStart, symEnd string, arch objfmt.Arch) error {
	const (
		headerSize = uint32(Elf64HeaderSize)
		secSize    = uint32(Elf64SectionSize)
		symSize    = uint32(Elf64SymbolSize)
		sectionCnt = 6
	)
	secHdrsOfs := headerSize
	rodataOfs := secHdrsOfs + sectionCnt*secSize
	rodataSize := uint32(len(payload))
	rodataPad := (8 - rodataSize%8) % 8
	symtabOfs := rodataOfs + rodataSize + rodataPad
	symtabSize := 3 * symSize
	symtabPad := (8 - symtabSize%8) % 8
	strtabOfs := symtabOfs + symtabSize + symtabPad
	strtabSize := uint32(1 + len(symStart) + 1 + len(symEnd) + 1)
	strtabPad := (8 - strtabSize%8) % 8
	shstrtabOfs := strtabOfs + strtabSize + strtabPad
	shstrtabSize := uint32(len(shstrtabContent))

	buf := newWBuf(binary.LittleEndian)
	ident := []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	buf.bytes(ident)
	buf.u16(1) // ET_REL
	buf.u16(machineFor(arch))
	buf.u32(1)                // e_version
	buf.u64(0)                // e_entry
	buf.u64(0)                // e_phoff
	buf.u64(uint64(secHdrsOfs))
	buf.u32(0) // e_flags
	buf.u16(uint16(headerSize))
	buf.u16(0) // e_phentsize
	buf.u16(0) // e_phnum
	buf.u16(uint16(secSize))
	buf.u16(sectionCnt)
	buf.u16(4) // e_shstrndx

	writeSection64(buf, 0, 0, 0, 0, 0, 0, 0, 0, 0) // NULL
	writeSection64(buf, shNameRodata, SHT_PROGBITS, uint64(SHF_ALLOC), uint64(rodataOfs), uint64(rodataSize), 0, 0, 8, 0)
	writeSection64(buf, shNameSymtab, SHT_SYMTAB, 0, uint64(symtabOfs), uint64(symtabSize), 3, 1, 8, uint64(symSize))
	writeSection64(buf, shNameStrtab, SHT_STRTAB, 0, uint64(strtabOfs), uint64(strtabSize), 0, 0, 1, 0)
	writeSection64(buf, shNameShstrtab, SHT_STRTAB, 0, uint64(shstrtabOfs), uint64(shstrtabSize), 0, 0, 1, 0)
	writeSection64(buf, shNameNoteStack, SHT_PROGBITS, 0, uint64(shstrtabOfs+shstrtabSize), 0, 0, 0, 1, 0)

	buf.bytes(payload)
	buf.pad(int(rodataPad))

	symInfo64 := STB_GLOBAL<<4 | STT_OBJECT
	writeSym64(buf, 0, 0, 0, 0) // NULL symbol
	writeSym64(buf, 1, symInfo64, 1, 0)
	writeSym64(buf, uint32(1+len(symStart)+1), symInfo64, 1, uint64(len(payload)))
	buf.pad(int(symtabPad))

	buf.u8(0)
	buf.str(symStart)
	buf.u8(0)
	buf.str(symEnd)
	buf.u8(0)
	buf.pad(int(strtabPad))

	buf.str(shstrtabContent)

	_, err := w.Write(buf.b)
	return err
}

func writeSection32(buf *wbuf, name, typ, flags, offset, size, link, info, align, entsize uint32) {
	buf.u32(name)
	buf.u32(typ)
	buf.u32(flags)
	buf.u32(0) // sh_addr
	buf.u32(offset)
	buf.u32(size)
	buf.u32(link)
	buf.u32(info)
	buf.u32(align)
	buf.u32(entsize)
}

func writeSection64(buf *wbuf, name uint32, typ uint32, flags, offset, size uint64, link, info uint32, align, entsize uint64) {
	buf.u32(name)
	buf.u32(typ)
	buf.u64(flags)
	buf.u64(0) // sh_addr
	buf.u64(offset)
	buf.u64(size)
	buf.u32(link)
	buf.u32(info)
	buf.u64(align)
	buf.u64(entsize)
}

func writeSym32(buf *wbuf, name, info, shndx, value uint32) {
	buf.u32(name)
	buf.u32(value)
	buf.u32(0) // st_size
	buf.u8(uint8(info))
	buf.u8(0) // st_other
	buf.u16(uint16(shndx))
}

func writeSym64(buf *wbuf, name uint32, info uint8, shndx uint16, value uint64) {
	buf.u32(name)
	buf.u8(info)
	buf.u8(0) // st_other
	buf.u16(shndx)
	buf.u64(value)
	buf.u64(0) // st_size
}

// wbuf is an append-only byte buffer with fixed-width writers, the mirror
// image of the reader cursor in reader.go.
type wbuf struct {
	b []byte
	o binary.ByteOrder
}

func newWBuf(o binary.ByteOrder) *wbuf { return &wbuf{o: o} }

func (w *wbuf) u8(v uint8)   { w.b = append(w.b, v) }
func (w *wbuf) u16(v uint16) { var t [2]byte; w.o.PutUint16(t[:], v); w.b = append(w.b, t[:]...) }
func (w *wbuf) u32(v uint32) { var t [4]byte; w.o.PutUint32(t[:], v); w.b = append(w.b, t[:]...) }
func (w *wbuf) u64(v uint64) { var t [8]byte; w.o.PutUint64(t[:], v); w.b = append(w.b, t[:]...) }
func (w *wbuf) bytes(v []byte) { w.b = append(w.b, v...) }
func (w *wbuf) str(s string)   { w.b = append(w.b, s...) }
func (w *wbuf) pad(n int) {
	for i := 0; i < n; i++ {
		w.b = append(w.b, 0)
	}
}
