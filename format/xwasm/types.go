// Package xwasm implements the WASM reader component of the binary-format
// toolkit: header verification, section iteration, the `linking` custom
// section's symbol table, the `name` section fallback, and import/export
// symbol extraction, per §4.6. Layouts are ported from
// core/src/xmake/binutils/wasm/{prefix.h,readsyms.c}. Unlike the other
// format readers, WASM has no writer counterpart in this spec (object
// synthesis targets ELF/Mach-O/COFF only).
package xwasm

// Magic is the 4-byte "\0asm" prefix, followed by a 4-byte version field;
// HeaderSize covers both.
var Magic = [4]byte{0x00, 0x61, 0x73, 0x6d}

const HeaderSize = 8

// Section ids this reader inspects; every other id is skipped whole.
const (
	SectionCustom uint8 = 0
	SectionImport uint8 = 2
	SectionExport uint8 = 7
)

// Import/export/symbol-table kind bytes.
const (
	KindFunc   uint8 = 0
	KindTable  uint8 = 1
	KindMemory uint8 = 2
	KindGlobal uint8 = 3
	KindTag    uint8 = 4
)

// limits flags bits.
const (
	LimitsHasMax uint32 = 0x01
	LimitsMem64  uint32 = 0x04
)

// `linking` custom-section subsection id for the symbol table.
const LinkingSubsecSymtab uint8 = 8

// Symbol-table entry kinds (linking section) — a superset of the
// import/export kind byte, with SECTION/TAG added.
const (
	SymtabKindFunction uint8 = 0
	SymtabKindData     uint8 = 1
	SymtabKindGlobal   uint8 = 2
	SymtabKindSection  uint8 = 3
	SymtabKindEvent    uint8 = 4
	SymtabKindTable    uint8 = 5
	SymtabKindTag      uint8 = 6
)

// SymtabFlagUndefined marks a symbol-table entry as undefined.
const SymtabFlagUndefined uint32 = 0x10

// Custom section names this reader recognises.
const (
	CustomLinking = "linking"
	CustomName    = "name"
)

// `name` custom-section subsection id for the function-name map, used only
// as a fallback when no symbols were found elsewhere.
const NameSubsecFunctions uint8 = 1
