// Package xmacho implements the Mach-O (32/64, thin) reader and writer
// components of the binary-format toolkit: magic-based context init with
// byte-swap-on-read, a load-command walker shared by the symbol, dependent-
// library and RPATH readers, an in-place RPATH rewriter, and the bin2macho
// object-file writer. Layouts are ported from
// core/src/xmake/binutils/macho/prefix.h; FAT archives are out of scope
// (see the Non-goals in the package's SPEC_FULL.md entry), so Init always
// treats base_offset as the start of one thin Mach-O image.
package xmacho

// Magic numbers identifying word size and byte order.
const (
	MagicLE32 uint32 = 0xfeedface // MH_MAGIC
	MagicLE64 uint32 = 0xfeedfacf // MH_MAGIC_64
	MagicBE32 uint32 = 0xcefaedfe // MH_CIGAM
	MagicBE64 uint32 = 0xcffaedfe // MH_CIGAM_64
)

// CPU types, as emitted by bin2macho for the architectures it recognises.
const (
	CpuTypeX86   uint32 = 7
	CpuTypeX8664 uint32 = 0x01000007
	CpuTypeArm   uint32 = 12
	CpuTypeArm64 uint32 = 0x0100000c
)

// CPU subtypes paired with the CPU types above.
const (
	CpuSubtypeX86   uint32 = 3
	CpuSubtypeX8664 uint32 = 3
	CpuSubtypeArm   uint32 = 9
	CpuSubtypeArm64 uint32 = 0
)

const FileTypeObject uint32 = 1

// Load command opcodes. The weak/reexport dylib commands carry the
// LC_REQ_DYLD bit (0x80000000) baked into the constant, matching how they
// appear on disk.
const (
	LcSegment        uint32 = 0x1
	LcSymtab         uint32 = 0x2
	LcSegment64      uint32 = 0x19
	LcLoadDylib      uint32 = 0xc
	LcIdDylib        uint32 = 0xd
	LcLoadWeakDylib  uint32 = 0x18 | 0x80000000
	LcReexportDylib  uint32 = 0x1f | 0x80000000
	LcRpath          uint32 = 0x1c | 0x80000000
	LcBuildVersion   uint32 = 0x32
)

// Section flags used by bin2macho's synthesized __const section.
const (
	SectTypeRegular        uint32 = 0x0
	SectAttrSomeInits       uint32 = 0x400
	SectAttrPureInstructions uint32 = 0x80000000
)

// nlist type-byte masks.
const (
	NTypeMask uint8 = 0x0e
	NTypeSect uint8 = 0x0e
	NExt      uint8 = 0x01
)

// VM protection bits used for the synthesized __TEXT segment.
const (
	VMProtRead    uint32 = 1
	VMProtWrite   uint32 = 2
	VMProtExecute uint32 = 4
)

// On-disk struct sizes (packed, no host alignment padding).
const (
	HeaderSize32 = 7 * 4 // magic..flags
	HeaderSize64 = 8 * 4 // + reserved

	LoadCommandSize = 8

	SegmentCommandSize32 = 4 + 4 + 16 + 4*8
	SegmentCommandSize64 = 4 + 4 + 16 + 4*8 + 4*4

	SectionSize32 = 16 + 16 + 4*9
	SectionSize64 = 16 + 16 + 8*2 + 4*8

	SymtabCommandSize       = 6 * 4
	BuildVersionCommandSize = 6 * 4

	NlistSize32 = 4 + 1 + 1 + 2 + 4
	NlistSize64 = 4 + 1 + 1 + 2 + 8

	RpathCommandSize = 4 + 4 + 4
	DylibCommandSize = 4 + 4 + 4*4
)

// Header is the word-size-independent view of a thin Mach-O file header.
type Header struct {
	Is64       bool
	Swap       bool // true if the file's byte order differs from the host
	Magic      uint32
	CPUType    uint32
	CPUSubtype uint32
	FileType   uint32
	NCmds      uint32
	SizeOfCmds uint32
	Flags      uint32
}

// loadCommand is the generic {cmd, cmdsize} header every load command
// starts with; cmdsize (not the size of any richer struct) is what advances
// the walk to the next command.
type loadCommand struct {
	Cmd     uint32
	CmdSize uint32
}

// segmentInfo is the word-size-independent subset of segment_command(_64)
// needed by the RPATH-insert slack check and the generic walker.
type segmentInfo struct {
	NSects uint32
}

// sectionInfo is the word-size-independent subset of section(_64) needed
// by findLowFileoff.
type sectionInfo struct {
	Offset uint32
}

// symtabCommand is the word-size-independent view of symtab_command.
type symtabCommand struct {
	Symoff  uint32
	Nsyms   uint32
	Stroff  uint32
	Strsize uint32
}

// Nlist is the word-size-independent view of a symbol table entry.
type Nlist struct {
	Strx  uint32
	Type  uint8
	Sect  uint8
	Desc  uint16
	Value uint64
}
