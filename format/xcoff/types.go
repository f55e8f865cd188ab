// Package xcoff implements the COFF/PE reader and writer components of the
// binary-format toolkit: symbol-table reading with short/long name
// resolution, PE-to-COFF redirection via e_lfanew, the .idata import-table
// walker, and the bin2coff object-file writer. Layouts are ported from
// core/src/xmake/binutils/coff/prefix.h and bin2coff.c; all multi-byte
// fields are little-endian, matching the Windows/COFF on-disk convention,
// so unlike xelf/xmacho there is no byte-swap-on-read step.
package xcoff

// Machine types, as recognised by bin2coff's --arch mapping.
const (
	MachineI386  uint16 = 0x014c
	MachineAMD64 uint16 = 0x8664
	MachineARM   uint16 = 0x01c0
	MachineARM64 uint16 = 0xaa64
)

// Section flags used to classify symbols and to tag bin2coff's .rdata
// section.
const (
	SCNCntCode              uint32 = 0x20
	SCNCntInitializedData   uint32 = 0x40
	SCNCntUninitializedData uint32 = 0x80
	SectionRData            uint32 = 0x40000040 // INITIALIZED_DATA | MEM_READ
)

// Symbol storage classes referenced by the reader/writer.
const (
	ClassExternal uint8 = 2
	ClassStatic   uint8 = 3
)

// On-disk struct sizes (packed).
const (
	HeaderSize       = 2 + 2 + 4 + 4 + 4 + 2 + 2 // 20
	SectionSize      = 8 + 4*6 + 2*2 + 4         // 40
	SymbolSize       = 8 + 4 + 2 + 2 + 1 + 1     // 18
	AuxSectionSize   = 4 + 2 + 2 + 10            // 18
	ImportDescSize   = 4 * 5                     // 20
	PESignatureSize  = 4                         // "PE\0\0"
	DOSHeaderLfanew  = 0x3c
	DOSHeaderMinSize = 0x40
)

// Header is coff_header_t: the fixed file header at the start of a COFF
// object, or at e_lfanew+4 inside a PE image.
type Header struct {
	Machine    uint16
	NSects     uint16
	Time       uint32
	SymtabOfs  uint32
	NSyms      uint32
	OptHdrSize uint16
	Flags      uint16
}

// Section is coff_section_t.
type Section struct {
	Name      [8]byte
	VSize     uint32 // virtual size
	VAddr     uint32 // RVA when mapped
	Size      uint32 // raw data size
	Offset    uint32 // file offset of raw data
	RelocOfs  uint32
	LinenoOfs uint32
	NReloc    uint16
	NLineno   uint16
	Flags     uint32
}

// NameString returns the section name, trimmed at the first NUL.
func (s Section) NameString() string {
	n := 0
	for n < len(s.Name) && s.Name[n] != 0 {
		n++
	}
	return string(s.Name[:n])
}

// rawSymbol is the word-for-word layout of xm_coff_symbol_t (18 bytes),
// decoded field-by-field since its first 8 bytes are a union (short name vs
// zeros+offset).
type rawSymbol struct {
	NameBytes [8]byte
	Value     uint32
	Section   int16
	Type      uint16
	StorClass uint8
	NAux      uint8
}
