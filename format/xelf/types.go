// Package xelf implements the ELF (32/64) reader and writer components of
// the binary-format toolkit: header/program/section walkers, the dynamic
// table, strtab resolution, a symbol reader, dependent-library and RPATH
// readers, and the in-place RPATH rewriter. Layouts are ported from
// core/src/xmake/binutils/elf/prefix.h, with 32/64-bit variants
// parameterised over Header.Is64 rather than duplicated per word size.
package xelf

// Section types (sh_type).
const (
	SHT_NULL     uint32 = 0
	SHT_PROGBITS uint32 = 1
	SHT_SYMTAB   uint32 = 2
	SHT_STRTAB   uint32 = 3
	SHT_DYNAMIC  uint32 = 6
)

// Section flags (sh_flags).
const (
	SHF_WRITE uint32 = 0x1
	SHF_ALLOC uint32 = 0x2
)

// Program header types (p_type).
const (
	PT_LOAD    uint32 = 1
	PT_DYNAMIC uint32 = 2
	PT_INTERP  uint32 = 3
)

// Dynamic table tags.
const (
	DT_NULL     int64 = 0
	DT_NEEDED   int64 = 1
	DT_STRTAB   int64 = 5
	DT_SYMTAB   int64 = 6
	DT_STRSZ    int64 = 10
	DT_SONAME   int64 = 14
	DT_RPATH    int64 = 15
	DT_RUNPATH  int64 = 29
	DT_AUXILIARY int64 = 0x7ffffffd
	DT_FILTER    int64 = 0x7fffffff
)

// Symbol binding (st_info >> 4).
const (
	STB_LOCAL  uint8 = 0
	STB_GLOBAL uint8 = 1
	STB_WEAK   uint8 = 2
)

// Symbol type (st_info & 0xf).
const (
	STT_NOTYPE  uint8 = 0
	STT_OBJECT  uint8 = 1
	STT_FUNC    uint8 = 2
	STT_SECTION uint8 = 3
	STT_FILE    uint8 = 4
)

// Machine (e_machine).
const (
	EM_NONE      uint16 = 0
	EM_SPARC     uint16 = 0x02
	EM_386       uint16 = 0x03
	EM_MIPS      uint16 = 0x08
	EM_PPC       uint16 = 0x14
	EM_PPC64     uint16 = 0x15
	EM_S390      uint16 = 0x16
	EM_ARM       uint16 = 0x28
	EM_SH        uint16 = 0x2a
	EM_SPARCV9   uint16 = 0x2b
	EM_IA64      uint16 = 0x32
	EM_X86_64    uint16 = 0x3e
	EM_RISCV     uint16 = 0xf3
	EM_AARCH64   uint16 = 0xb7
	EM_WASM      uint16 = 0xe7
	EM_LOONGARCH uint16 = 0x102
)

const (
	elfIdentSize = 16
	Elf32HeaderSize = elfIdentSize + 2 + 2 + 4 + 4 + 4 + 4 + 4 + 2 + 2 + 2 + 2 + 2 + 2
	Elf64HeaderSize = elfIdentSize + 2 + 2 + 4 + 8 + 8 + 8 + 4 + 2 + 2 + 2 + 2 + 2 + 2

	Elf32SectionSize = 40
	Elf64SectionSize = 64

	Elf32SymbolSize = 16
	Elf64SymbolSize = 24

	Elf32PhdrSize = 32
	Elf64PhdrSize = 56

	Elf32DynSize = 8
	Elf64DynSize = 16
)

// Header is the word-size-independent view of an ELF file header.
type Header struct {
	Is64    bool
	Big     bool // byte order: true = big-endian
	Type    uint16
	Machine uint16
	Entry   uint64
	Phoff   uint64
	Shoff   uint64
	Phentsize, Phnum uint16
	Shentsize, Shnum uint16
	Shstrndx         uint16
}

// Section is the word-size-independent view of a section header.
type Section struct {
	Name   uint32
	Type   uint32
	Flags  uint64
	Addr   uint64
	Offset uint64
	Size   uint64
	Link   uint32
	Info   uint32
	Align  uint64
	EntSize uint64
}

// ProgHeader is the word-size-independent view of a program header.
type ProgHeader struct {
	Type   uint32
	Offset uint64
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
}

// Symbol is the word-size-independent view of a symbol table entry.
type Symbol struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

func (s Symbol) Bind() uint8 { return s.Info >> 4 }
func (s Symbol) Type() uint8 { return s.Info & 0xf }

// DynEntry is one (tag, value) pair from the .dynamic table.
type DynEntry struct {
	Tag   int64
	Value uint64
}
