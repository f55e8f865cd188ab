// Package objfmt defines the architecture and platform enumerations shared
// by every object-file writer in objbuild, so the ELF/COFF/Mach-O writers
// branch once on Arch.Is64() instead of each re-deriving word size from a
// single arch string — the "trait/family" parameterisation called for by
// the binary-format toolkit's design notes on 32/64-bit duplication.
package objfmt

import "strings"

// Arch identifies a target instruction set architecture, independent of
// the container format being written.
type Arch string

const (
	ArchX86     Arch = "x86"
	ArchX86_64  Arch = "x86_64"
	ArchARM     Arch = "arm"
	ArchARM64   Arch = "arm64"
	ArchMIPS    Arch = "mips"
	ArchMIPS64  Arch = "mips64"
	ArchPPC     Arch = "ppc"
	ArchPPC64   Arch = "ppc64"
	ArchRISCV   Arch = "riscv"
	ArchRISCV64 Arch = "riscv64"
	ArchSPARC   Arch = "sparc"
	ArchSPARC64 Arch = "sparc64"
	ArchS390    Arch = "s390"
	ArchS390X   Arch = "s390x"
	ArchLoong   Arch = "loongarch"
	ArchLoong64 Arch = "loongarch64"
	ArchWasm    Arch = "wasm"
	ArchWasm64  Arch = "wasm64"
	ArchIA64    Arch = "ia64"
	ArchSuperH  Arch = "sh"
)

// aliases maps every recognised spelling from spec §6 to its canonical Arch.
var aliases = map[string]Arch{
	"x86": ArchX86, "i386": ArchX86,
	"x86_64": ArchX86_64, "x64": ArchX86_64,
	"arm": ArchARM, "armv5": ArchARM, "armv6": ArchARM, "armv7": ArchARM, "armeabi-v7a": ArchARM,
	"arm64": ArchARM64, "aarch64": ArchARM64, "arm64-v8a": ArchARM64,
	"mips": ArchMIPS, "mips64": ArchMIPS64,
	"ppc": ArchPPC, "powerpc": ArchPPC, "ppc64": ArchPPC64, "powerpc64": ArchPPC64,
	"riscv": ArchRISCV, "riscv64": ArchRISCV64,
	"sparc": ArchSPARC, "sparc64": ArchSPARC64,
	"s390": ArchS390, "s390x": ArchS390X,
	"loongarch": ArchLoong, "loong64": ArchLoong64, "loongarch64": ArchLoong64,
	"wasm": ArchWasm, "wasm64": ArchWasm64,
	"sh": ArchSuperH, "superh": ArchSuperH,
	"ia64": ArchIA64, "itanium": ArchIA64,
}

// ParseArch resolves one of the recognised architecture strings from §6.
// Matching is case-insensitive; an unrecognised string falls back to the
// literal lowercased input so callers can still act on Is64().
func ParseArch(s string) Arch {
	if a, ok := aliases[strings.ToLower(s)]; ok {
		return a
	}
	return Arch(strings.ToLower(s))
}

// Is64 classifies arch per the glossary's 64-bit list.
func (a Arch) Is64() bool {
	switch a {
	case ArchX86_64, ArchARM64, ArchMIPS64, ArchPPC64, ArchRISCV64,
		ArchSPARC64, ArchS390X, ArchLoong64, ArchWasm64, ArchIA64:
		return true
	}
	return strings.Contains(string(a), "64")
}
