// Package objbuild is the shared façade over the three object-file
// writers (`bin2coff`, `bin2elf`, `bin2macho`), per spec.md §4.3 step 2,
// §4.4, and §4.5. WriteCOFF, WriteELF and WriteMachO forward Params to the
// writers in format/{xcoff,xelf,xmacho}, and each of those writers derives
// and sanitizes its own `<symbol>_start`/`<symbol>_end` names. Symbols
// computes names with the same `[A-Za-z0-9_]` sanitizing rule for callers
// that need the names without a write; no writer calls it.
package objbuild

import (
	"io"

	"github.com/appsworld/xbinutils/format/objfmt"
	"github.com/appsworld/xbinutils/format/xcoff"
	"github.com/appsworld/xbinutils/format/xelf"
	"github.com/appsworld/xbinutils/format/xmacho"
)

// sanitize replaces every byte that is not a letter, digit, or underscore
// with an underscore, per spec.md §4.3 step 2.
func sanitize(s string) string {
	b := []byte(s)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') && c != '_' {
			b[i] = '_'
		}
	}
	return string(b)
}

// Symbols derives `<symbol>`, `<symbol>_start` and `<symbol>_end`, where
// `<symbol>` is prefix+basename, sanitized. defaultSym is what `<symbol>`
// becomes when prefix is empty (each format has its own ABI-driven
// default: ELF's bare "_binary_", COFF's i386-doubled underscore, Mach-O's
// Unix-ABI-doubled underscore). The writers embed only the _start and _end
// names. With a non-empty prefix, the Mach-O writer and the i386 COFF
// writer put an extra leading underscore before the prefix, which Symbols
// does not add.
func Symbols(prefix, basename, defaultSym string) (sym, start, end string) {
	name := defaultSym
	if prefix != "" {
		name = prefix + basename
	}
	sym = sanitize(name)
	return sym, sym + "_start", sym + "_end"
}

// Params bundles the optional arguments shared by all three object
// writers, per spec.md §6's `bin2{coff,elf,macho}` signatures.
type Params struct {
	SymbolPrefix string
	Arch         objfmt.Arch
	Platform     string // Mach-O only
	Basename     string
	MinOS        string // Mach-O only
	SDK          string // Mach-O only
	ZeroEnd      bool
}

// WriteCOFF emits a COFF object embedding data, per spec.md §4.5.
func WriteCOFF(w io.Writer, data []byte, p Params) error {
	return xcoff.WriteBin2Coff(w, data, xcoff.WriteParams{
		SymbolPrefix: p.SymbolPrefix,
		Arch:         p.Arch,
		Basename:     p.Basename,
		ZeroEnd:      p.ZeroEnd,
	})
}

// WriteELF emits an ELF object embedding data, per spec.md §4.3's
// `bin2elf` algorithm.
func WriteELF(w io.Writer, data []byte, p Params) error {
	return xelf.WriteBin2Elf(w, data, xelf.WriteParams{
		SymbolPrefix: p.SymbolPrefix,
		Arch:         p.Arch,
		Basename:     p.Basename,
		ZeroEnd:      p.ZeroEnd,
	})
}

// WriteMachO emits a Mach-O object embedding data, per spec.md §4.4's
// `bin2macho` algorithm.
func WriteMachO(w io.Writer, data []byte, p Params) error {
	return xmacho.WriteBin2Macho(w, data, xmacho.WriteParams{
		SymbolPrefix: p.SymbolPrefix,
		Platform:     p.Platform,
		Arch:         p.Arch,
		Basename:     p.Basename,
		MinOS:        p.MinOS,
		SDK:          p.SDK,
		ZeroEnd:      p.ZeroEnd,
	})
}
