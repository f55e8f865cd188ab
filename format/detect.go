// Package format identifies the on-disk container format of an object
// file, archive, or executable from an 8-byte probe at offset 0, per the
// priority-ordered rules in §4.2.
package format

import (
	"encoding/binary"
	"io"

	"github.com/appsworld/xbinutils/internal/bstream"
)

// Tag is the detected format kind.
type Tag int

const (
	Unknown Tag = iota
	Coff
	Pe
	Elf
	MachO
	Ar
	Wasm
)

func (t Tag) String() string {
	switch t {
	case Coff:
		return "coff"
	case Pe:
		return "pe"
	case Elf:
		return "elf"
	case MachO:
		return "macho"
	case Ar:
		return "ar"
	case Wasm:
		return "wasm"
	default:
		return "unknown"
	}
}

var machoMagics = map[uint32]bool{
	0xfeedface: true, // 32-bit BE
	0xfeedfacf: true, // 64-bit BE
	0xcefaedfe: true, // 32-bit LE (byte-reversed)
	0xcffaedfe: true, // 64-bit LE (byte-reversed)
}

var knownCoffMachines = map[uint16]bool{
	0x014c: true, // IMAGE_FILE_MACHINE_I386
	0x8664: true, // IMAGE_FILE_MACHINE_AMD64
	0x01c0: true, // IMAGE_FILE_MACHINE_ARM
	0xaa64: true, // IMAGE_FILE_MACHINE_ARM64
}

// Detect probes r at offset 0 and returns the best-matching format tag.
// The stream's offset may be advanced by the probe (it peeks, never seeks
// past what it reads); Detect does not require the offset to be restored.
func Detect(r io.ReaderAt, size int64) (Tag, error) {
	s := bstream.New(r, size)
	if size < 4 {
		return Unknown, nil
	}
	probe, err := s.Peek(int(min64(size, 8)))
	if err != nil || len(probe) < 4 {
		return Unknown, nil
	}

	// 1. AR: "!<arch>\n" or the BSD variants ending "\r\n"/">\n".
	if len(probe) >= 8 && string(probe[:7]) == "!<arch>" {
		if probe[7] == '\n' || probe[7] == '\r' || probe[7] == '>' {
			return Ar, nil
		}
	}

	// 2. PE: "MZ"/"ZM" + e_lfanew within the window, then "PE\0\0".
	if (probe[0] == 'M' && probe[1] == 'Z') || (probe[0] == 'Z' && probe[1] == 'M') {
		if size >= 64 {
			var hdr [0x40]byte
			if err := s.Seek(0); err == nil {
				if err := s.Read(hdr[:]); err == nil {
					lfanew := int64(binary.LittleEndian.Uint32(hdr[0x3c:0x40]))
					if lfanew >= 0x40 && lfanew+4 <= size {
						var sig [4]byte
						if err := s.Seek(lfanew); err == nil {
							if err := s.Read(sig[:]); err == nil && string(sig[:]) == "PE\x00\x00" {
								return Pe, nil
							}
						}
					}
				}
			}
		}
	}

	// 3. ELF: 0x7F 'E' 'L' 'F'.
	if probe[0] == 0x7F && probe[1] == 'E' && probe[2] == 'L' && probe[3] == 'F' {
		return Elf, nil
	}

	// 4. Mach-O: any of the four thin (32/64-bit) magics, either byte order.
	magic := binary.BigEndian.Uint32(probe[:4])
	if machoMagics[magic] {
		return MachO, nil
	}

	// 5. WASM: "\0asm" magic (the version field is not checked here).
	if probe[0] == 0x00 && probe[1] == 'a' && probe[2] == 's' && probe[3] == 'm' {
		return Wasm, nil
	}

	// 6. COFF: known machine code, or the import-header sentinel.
	machine := binary.LittleEndian.Uint16(probe[:2])
	if knownCoffMachines[machine] {
		return Coff, nil
	}
	if machine == 0x0000 && len(probe) >= 4 && binary.LittleEndian.Uint16(probe[2:4]) == 0xffff {
		return Coff, nil
	}

	return Unknown, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
