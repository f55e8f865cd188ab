package xmacho

import (
	"encoding/binary"
	"io"

	"github.com/appsworld/xbinutils/format/objfmt"
)

// cpuTypeFor and cpuSubtypeFor map an objfmt.Arch to bin2macho.c's cputype
// table; unrecognised arches fall back to x86_64, matching the original's
// default.
func cpuTypeFor(arch objfmt.Arch) uint32 {
	switch arch {
	case objfmt.ArchX86_64:
		return CpuTypeX8664
	case objfmt.ArchARM64:
		return CpuTypeArm64
	case objfmt.ArchARM:
		return CpuTypeArm
	case objfmt.ArchX86:
		return CpuTypeX86
	default:
		return CpuTypeX8664
	}
}

func cpuSubtypeFor(arch objfmt.Arch) uint32 {
	switch arch {
	case objfmt.ArchX86_64:
		return CpuSubtypeX8664
	case objfmt.ArchARM64:
		return CpuSubtypeArm64
	case objfmt.ArchARM:
		return CpuSubtypeArm
	case objfmt.ArchX86:
		return CpuSubtypeX86
	default:
		return CpuSubtypeX8664
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

// WriteParams bundles bin2macho's optional arguments.
type WriteParams struct {
	SymbolPrefix string
	Platform     string
	Arch         objfmt.Arch
	Basename     string
	MinOS        string
	SDK          string
	ZeroEnd      bool
}

// WriteBin2Macho emits a thin Mach-O object file embedding data as two
// symbols (`<symbol>_start`, `<symbol>_end`) over one `__TEXT,__const`
// section, plus a build-version command, per §4.4's layout:
// [header][segment cmd + section][symtab cmd][build_version cmd] | data |
// symtab | strtab, with alignment padding at each boundary (8 bytes for
// 64-bit, 4 for 32-bit).
//
// Unlike bin2elf, the platform C ABI already prepends an underscore to C
// symbol names, so the generated name carries two leading underscores when
// no explicit prefix is given: the declared "_binary_xxx" becomes
// "__binary_xxx" in the object file.
func WriteBin2Macho(w io.Writer, data []byte, p WriteParams) error {
	basename := p.Basename
	if basename == "" {
		basename = "data"
	}
	var symName string
	if p.SymbolPrefix != "" {
		symName = "_" + p.SymbolPrefix + basename
	} else {
		symName = "__binary_" + basename
	}
	symName = sanitizeSymbol(symName)
	symStart := symName + "_start"
	symEnd := symName + "_end"

	payload := data
	if p.ZeroEnd {
		payload = append(append([]byte(nil), data...), 0)
	}

	platform := uint32(objfmt.ParsePlatform(p.Platform))
	if platform == uint32(objfmt.PlatformUnknown) {
		platform = uint32(objfmt.PlatformMacOS)
	}
	minos := objfmt.ParseVersion(p.MinOS)
	sdk := objfmt.ParseVersion(p.SDK)
	cputype := cpuTypeFor(p.Arch)
	cpusubtype := cpuSubtypeFor(p.Arch)

	if p.Arch.Is64() {
		return writeBin2Macho64(w, payload, symStart, symEnd, cputype, cpusubtype, platform, minos, sdk)
	}
	return writeBin2Macho32(w, payload, symStart, symEnd, cputype, cpusubtype, platform, minos, sdk)
}

func writeBin2Macho64(w io.Writer, payload []byte, symStart, symEnd string, cputype, cpusubtype, platform, minos, sdk uint32) error {
	const (
		headerSize      = uint32(HeaderSize64)
		segTotalSize    = uint32(SegmentCommandSize64 + SectionSize64)
		symtabCmdSize   = uint32(SymtabCommandSize)
		buildCmdSize    = uint32(BuildVersionCommandSize)
		nlistSize       = uint32(NlistSize64)
		nlistCount      = uint32(2)
	)
	dataOffset := align(headerSize+segTotalSize+symtabCmdSize+buildCmdSize, 8)
	dataSize := uint32(len(payload))
	dataEnd := dataOffset + dataSize
	symtabOffset := align(dataEnd, 8)
	strtabOffset := symtabOffset + nlistSize*nlistCount
	strtabSize := align(4+uint32(len(symStart))+1+uint32(len(symEnd))+1, 8)

	buf := newWBuf(binary.LittleEndian)
	buf.u32(MagicLE64)
	buf.u32(cputype)
	buf.u32(cpusubtype)
	buf.u32(FileTypeObject)
	buf.u32(3) // segment + symtab + build_version
	buf.u32(segTotalSize + symtabCmdSize + buildCmdSize)
	buf.u32(0) // flags
	buf.u32(0) // reserved

	buf.u32(LcSegment64)
	buf.u32(segTotalSize)
	buf.segname("__TEXT")
	buf.u64(0) // vmaddr
	buf.u64(uint64(dataSize))
	buf.u64(uint64(dataOffset))
	buf.u64(uint64(dataSize))
	buf.u32(VMProtRead | VMProtExecute)
	buf.u32(VMProtRead | VMProtExecute)
	buf.u32(1) // nsects
	buf.u32(0) // flags

	buf.segname("__const")
	buf.segname("__TEXT")
	buf.u64(0) // addr
	buf.u64(uint64(dataSize))
	buf.u32(dataOffset)
	buf.u32(3) // align: 2^3 = 8
	buf.u32(0) // reloff
	buf.u32(0) // nreloc
	buf.u32(SectTypeRegular | SectAttrSomeInits)
	buf.u32(0) // reserved1
	buf.u32(0) // reserved2
	buf.u32(0) // reserved3

	buf.u32(LcSymtab)
	buf.u32(symtabCmdSize)
	buf.u32(symtabOffset)
	buf.u32(nlistCount)
	buf.u32(strtabOffset)
	buf.u32(strtabSize)

	buf.u32(LcBuildVersion)
	buf.u32(buildCmdSize)
	buf.u32(platform)
	buf.u32(minos)
	buf.u32(sdk)
	buf.u32(0) // ntools

	buf.pad(int(dataOffset - (headerSize + segTotalSize + symtabCmdSize + buildCmdSize)))
	buf.bytes(payload)
	buf.pad(int(symtabOffset - dataEnd))

	strx := uint32(4)
	buf.u32(strx) // nlist_start.strx
	buf.u8(NTypeSect | NExt)
	buf.u8(1) // sect
	buf.u16(0) // desc
	buf.u64(0) // value
	strx += uint32(len(symStart)) + 1

	buf.u32(strx) // nlist_end.strx
	buf.u8(NTypeSect | NExt)
	buf.u8(1)
	buf.u16(0)
	buf.u64(uint64(dataSize))

	buf.pad(int(strtabOffset - (symtabOffset + nlistSize*nlistCount)))

	buf.u32(strtabSize)
	buf.str(symStart)
	buf.u8(0)
	buf.str(symEnd)
	buf.u8(0)
	buf.pad(int(strtabSize - (4 + uint32(len(symStart)) + 1 + uint32(len(symEnd)) + 1)))

	_, err := w.Write(buf.b)
	return err
}

func writeBin2Macho32(w io.Writer, payload []byte, symStart, symEnd string, cputype, cpusubtype, platform, minos, sdk uint32) error {
	const (
		headerSize    = uint32(HeaderSize32)
		segTotalSize  = uint32(SegmentCommandSize32 + SectionSize32)
		symtabCmdSize = uint32(SymtabCommandSize)
		buildCmdSize  = uint32(BuildVersionCommandSize)
		nlistSize     = uint32(NlistSize32)
		nlistCount    = uint32(2)
	)
	dataOffset := align(headerSize+segTotalSize+symtabCmdSize+buildCmdSize, 4)
	dataSize := uint32(len(payload))
	dataEnd := dataOffset + dataSize
	symtabOffset := align(dataEnd, 4)
	strtabOffset := symtabOffset + nlistSize*nlistCount
	strtabSize := align(4+uint32(len(symStart))+1+uint32(len(symEnd))+1, 4)

	buf := newWBuf(binary.LittleEndian)
	buf.u32(MagicLE32)
	buf.u32(cputype)
	buf.u32(cpusubtype)
	buf.u32(FileTypeObject)
	buf.u32(3)
	buf.u32(segTotalSize + symtabCmdSize + buildCmdSize)
	buf.u32(0)

	buf.u32(LcSegment)
	buf.u32(segTotalSize)
	buf.segname("__TEXT")
	buf.u32(0) // vmaddr
	buf.u32(dataSize)
	buf.u32(dataOffset)
	buf.u32(dataSize)
	buf.u32(VMProtRead | VMProtExecute)
	buf.u32(VMProtRead | VMProtExecute)
	buf.u32(1)
	buf.u32(0)

	buf.segname("__const")
	buf.segname("__TEXT")
	buf.u32(0) // addr
	buf.u32(dataSize)
	buf.u32(dataOffset)
	buf.u32(2) // align: 2^2 = 4
	buf.u32(0) // reloff
	buf.u32(0) // nreloc
	buf.u32(SectTypeRegular | SectAttrSomeInits)
	buf.u32(0) // reserved1
	buf.u32(0) // reserved2

	buf.u32(LcSymtab)
	buf.u32(symtabCmdSize)
	buf.u32(symtabOffset)
	buf.u32(nlistCount)
	buf.u32(strtabOffset)
	buf.u32(strtabSize)

	buf.u32(LcBuildVersion)
	buf.u32(buildCmdSize)
	buf.u32(platform)
	buf.u32(minos)
	buf.u32(sdk)
	buf.u32(0)

	buf.pad(int(dataOffset - (headerSize + segTotalSize + symtabCmdSize + buildCmdSize)))
	buf.bytes(payload)
	buf.pad(int(symtabOffset - dataEnd))

	strx := uint32(4)
	buf.u32(strx)
	buf.u8(NTypeSect | NExt)
	buf.u8(1)
	buf.u16(0)
	buf.u32(0)
	strx += uint32(len(symStart)) + 1

	buf.u32(strx)
	buf.u8(NTypeSect | NExt)
	buf.u8(1)
	buf.u16(0)
	buf.u32(dataSize)

	buf.pad(int(strtabOffset - (symtabOffset + nlistSize*nlistCount)))

	buf.u32(strtabSize)
	buf.str(symStart)
	buf.u8(0)
	buf.str(symEnd)
	buf.u8(0)
	buf.pad(int(strtabSize - (4 + uint32(len(symStart)) + 1 + uint32(len(symEnd)) + 1)))

	_, err := w.Write(buf.b)
	return err
}

func align(v, n uint32) uint32 { return (v + n - 1) &^ (n - 1) }

// wbuf is an append-only byte buffer with fixed-width little-endian
// writers; Mach-O object files are always written in host (little-endian)
// byte order regardless of the target architecture's natural order.
type wbuf struct {
	b []byte
	o binary.ByteOrder
}

func newWBuf(o binary.ByteOrder) *wbuf { return &wbuf{o: o} }

func (w *wbuf) u8(v uint8)      { w.b = append(w.b, v) }
func (w *wbuf) u16(v uint16)    { var t [2]byte; w.o.PutUint16(t[:], v); w.b = append(w.b, t[:]...) }
func (w *wbuf) u32(v uint32)    { var t [4]byte; w.o.PutUint32(t[:], v); w.b = append(w.b, t[:]...) }
func (w *wbuf) u64(v uint64)    { var t [8]byte; w.o.PutUint64(t[:], v); w.b = append(w.b, t[:]...) }
func (w *wbuf) bytes(v []byte)  { w.b = append(w.b, v...) }
func (w *wbuf) str(s string)    { w.b = append(w.b, s...) }
func (w *wbuf) pad(n int) {
	for i := 0; i < n; i++ {
		w.b = append(w.b, 0)
	}
}

// segname appends a 16-byte NUL-padded segment/section name field.
func (w *wbuf) segname(s string) {
	var buf [16]byte
	copy(buf[:], s)
	w.b = append(w.b, buf[:]...)
}
