package xcoff

import (
	"encoding/binary"
	"io"

	"github.com/appsworld/xbinutils/format/objfmt"
)

// machineFor maps an objfmt.Arch to bin2coff.c's machine table, defaulting
// to i386 for anything unrecognised (the original's own default).
func machineFor(arch objfmt.Arch) uint16 {
	switch arch {
	case objfmt.ArchX86_64:
		return MachineAMD64
	case objfmt.ArchARM64:
		return MachineARM64
	case objfmt.ArchARM:
		return MachineARM
	case objfmt.ArchX86:
		return MachineI386
	default:
		return MachineI386
	}
}

// sanitizeSymbol replaces every byte that is not a letter, digit, or
// underscore with an underscore.
func sanitizeSymbol(s string) string {
	b := []byte(s)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_' {
			b[i] = '_'
		}
	}
	return string(b)
}

// WriteParams bundles bin2coff's optional arguments.
type WriteParams struct {
	SymbolPrefix string
	Arch         objfmt.Arch
	Basename     string
	ZeroEnd      bool
}

// WriteBin2Coff emits a single-section COFF object file embedding data as
// two external symbols (`<symbol>_start`, `<symbol>_end`) over one
// `.rdata` section, per §4.5: the section symbol carries a mandatory
// auxiliary entry (the i386 linker rejects a bare section symbol), so the
// symbol table always has exactly four 18-byte entries regardless of
// whether either name is long.
//
// On i386, the C ABI prepends an underscore to every external symbol, so a
// caller-supplied prefix that already starts with a single underscore gets
// a second one here to compensate — matching bin2macho's analogous
// double-underscore rule.
func WriteBin2Coff(w io.Writer, data []byte, p WriteParams) error {
	basename := p.Basename
	if basename == "" {
		basename = "data"
	}
	machine := machineFor(p.Arch)
	isI386 := machine == MachineI386

	var symName string
	switch {
	case p.SymbolPrefix == "":
		if isI386 {
			symName = "__binary_" + basename
		} else {
			symName = "_binary_" + basename
		}
	case isI386 && p.SymbolPrefix[0] == '_' && (len(p.SymbolPrefix) < 2 || p.SymbolPrefix[1] != '_'):
		symName = "_" + p.SymbolPrefix + basename
	default:
		symName = p.SymbolPrefix + basename
	}
	symName = sanitizeSymbol(symName)
	symStart := symName + "_start"
	symEnd := symName + "_end"

	payload := data
	if p.ZeroEnd {
		payload = append(append([]byte(nil), data...), 0)
	}
	dataSize := uint32(len(payload))

	sectionDataOfs := uint32(HeaderSize + SectionSize)
	sectionPadding := (4 - (dataSize & 3)) & 3
	symtabOfs := sectionDataOfs + dataSize + sectionPadding

	strtabContent := uint32(0)
	if len(symStart) > 8 {
		strtabContent += uint32(len(symStart)) + 1
	}
	if len(symEnd) > 8 {
		strtabContent += uint32(len(symEnd)) + 1
	}
	strtabSize := 4 + strtabContent

	buf := newWBuf()
	// header
	buf.u16(machine)
	buf.u16(1) // nsects
	buf.u32(0) // time
	buf.u32(symtabOfs)
	buf.u32(4) // nsyms: section symbol + aux + start + end
	buf.u16(0) // opthdr
	buf.u16(0) // flags

	// section .rdata
	buf.name8(".rdata")
	buf.u32(dataSize) // vsize
	buf.u32(0)        // vaddr
	buf.u32(dataSize) // size
	buf.u32(sectionDataOfs)
	buf.u32(0) // relocofs
	buf.u32(0) // linenoofs
	buf.u16(0) // nreloc
	buf.u16(0) // nlineno
	buf.u32(SectionRData)

	// section data + padding
	buf.bytes(payload)
	buf.pad(int(sectionPadding))

	// symbol 0: .rdata section symbol, with its auxiliary entry
	buf.name8(".rdata")
	buf.u32(0) // value
	buf.i16(1) // sect
	buf.u16(0) // type
	buf.u8(ClassStatic)
	buf.u8(1) // naux

	buf.u32(dataSize) // aux: length
	buf.u16(0)        // aux: nreloc
	buf.u16(0)        // aux: nlineno
	buf.pad(10)       // aux: reserved

	strtabOffset := uint32(4)
	buf.symbolName(symStart, &strtabOffset)
	buf.u32(0) // value
	buf.i16(1) // sect
	buf.u16(0) // type
	buf.u8(ClassExternal)
	buf.u8(0) // naux

	buf.symbolName(symEnd, &strtabOffset)
	buf.u32(dataSize) // value
	buf.i16(1)        // sect
	buf.u16(0)        // type
	buf.u8(ClassExternal)
	buf.u8(0) // naux

	// string table
	buf.u32(strtabSize)
	if len(symStart) > 8 {
		buf.str(symStart)
		buf.u8(0)
	}
	if len(symEnd) > 8 {
		buf.str(symEnd)
		buf.u8(0)
	}

	_, err := w.Write(buf.b)
	return err
}

// wbuf is an append-only little-endian byte buffer.
type wbuf struct{ b []byte }

func newWBuf() *wbuf { return &wbuf{} }

func (w *wbuf) u8(v uint8)   { w.b = append(w.b, v) }
func (w *wbuf) i16(v int16)  { w.u16(uint16(v)) }
func (w *wbuf) u16(v uint16) { var t [2]byte; binary.LittleEndian.PutUint16(t[:], v); w.b = append(w.b, t[:]...) }
func (w *wbuf) u32(v uint32) { var t [4]byte; binary.LittleEndian.PutUint32(t[:], v); w.b = append(w.b, t[:]...) }
func (w *wbuf) bytes(v []byte) { w.b = append(w.b, v...) }
func (w *wbuf) str(s string)   { w.b = append(w.b, s...) }
func (w *wbuf) pad(n int) {
	for i := 0; i < n; i++ {
		w.b = append(w.b, 0)
	}
}

// name8 appends an 8-byte NUL-padded name field.
func (w *wbuf) name8(s string) {
	var buf [8]byte
	copy(buf[:], s)
	w.b = append(w.b, buf[:]...)
}

// symbolName writes a short (inline, NUL-padded to 8) or long
// (zeros:u32, offset:u32) symbol name field, advancing *strtabOffset past
// the name's eventual string-table slot for a long name.
func (w *wbuf) symbolName(name string, strtabOffset *uint32) {
	if len(name) <= 8 {
		w.name8(name)
		return
	}
	w.u32(0)
	w.u32(*strtabOffset)
	*strtabOffset += uint32(len(name)) + 1
}
