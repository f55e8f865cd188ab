package xcoff

import (
	"encoding/binary"
	"fmt"

	"github.com/appsworld/xbinutils/format/symrec"
	"github.com/appsworld/xbinutils/internal/bstream"
	"github.com/appsworld/xbinutils/xerrors"
)

// Context is the per-file parse context: the header plus the base offset
// every field in the file is relative to. base is 0 for a bare COFF object,
// or e_lfanew+4 for the embedded COFF header inside a PE image (see
// RedirectPE).
type Context struct {
	Header  Header
	Sections []Section
	base    int64
}

// Init reads the 20-byte COFF header and its section table at base.
func Init(s *bstream.Reader, base int64) (*Context, error) {
	if err := s.Seek(base); err != nil {
		return nil, err
	}
	var buf [HeaderSize]byte
	if err := s.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("coff: reading header: %w: %v", xerrors.ErrTruncated, err)
	}
	hdr := Header{
		Machine:    binary.LittleEndian.Uint16(buf[0:2]),
		NSects:     binary.LittleEndian.Uint16(buf[2:4]),
		Time:       binary.LittleEndian.Uint32(buf[4:8]),
		SymtabOfs:  binary.LittleEndian.Uint32(buf[8:12]),
		NSyms:      binary.LittleEndian.Uint32(buf[12:16]),
		OptHdrSize: binary.LittleEndian.Uint16(buf[16:18]),
		Flags:      binary.LittleEndian.Uint16(buf[18:20]),
	}

	ctx := &Context{Header: hdr, base: base}
	if err := s.Seek(base + HeaderSize + int64(hdr.OptHdrSize)); err != nil {
		return nil, err
	}
	ctx.Sections = make([]Section, hdr.NSects)
	for i := range ctx.Sections {
		var sb [SectionSize]byte
		if err := s.Read(sb[:]); err != nil {
			return nil, fmt.Errorf("coff: section %d: %w: %v", i, xerrors.ErrTruncated, err)
		}
		var sec Section
		copy(sec.Name[:], sb[0:8])
		sec.VSize = binary.LittleEndian.Uint32(sb[8:12])
		sec.VAddr = binary.LittleEndian.Uint32(sb[12:16])
		sec.Size = binary.LittleEndian.Uint32(sb[16:20])
		sec.Offset = binary.LittleEndian.Uint32(sb[20:24])
		sec.RelocOfs = binary.LittleEndian.Uint32(sb[24:28])
		sec.LinenoOfs = binary.LittleEndian.Uint32(sb[28:32])
		sec.NReloc = binary.LittleEndian.Uint16(sb[32:34])
		sec.NLineno = binary.LittleEndian.Uint16(sb[34:36])
		sec.Flags = binary.LittleEndian.Uint32(sb[36:40])
		ctx.Sections[i] = sec
	}
	return ctx, nil
}

// RedirectPE implements §4.5's PE-redirection rule: given the file's MZ/PE
// header, locate e_lfanew and return the offset of the embedded COFF header
// (e_lfanew+4, skipping the "PE\0\0" signature). Callers re-run Init at the
// returned offset.
func RedirectPE(s *bstream.Reader) (int64, error) {
	if err := s.Seek(0); err != nil {
		return 0, err
	}
	var dos [DOSHeaderMinSize]byte
	if err := s.Read(dos[:]); err != nil {
		return 0, fmt.Errorf("coff: reading DOS header: %w: %v", xerrors.ErrTruncated, err)
	}
	if dos[0] != 'M' || dos[1] != 'Z' {
		return 0, fmt.Errorf("coff: not a PE image: %w", xerrors.ErrBadMagic)
	}
	lfanew := int64(binary.LittleEndian.Uint32(dos[DOSHeaderLfanew : DOSHeaderLfanew+4]))
	if err := s.Seek(lfanew); err != nil {
		return 0, err
	}
	var sig [PESignatureSize]byte
	if err := s.Read(sig[:]); err != nil {
		return 0, fmt.Errorf("coff: reading PE signature: %w: %v", xerrors.ErrTruncated, err)
	}
	if string(sig[:]) != "PE\x00\x00" {
		return 0, fmt.Errorf("coff: missing PE signature at 0x%x: %w", lfanew, xerrors.ErrBadMagic)
	}
	return lfanew + PESignatureSize, nil
}

// ReadSyms implements §4.5's symbol-table walk: entries are 18 bytes,
// starting at symtabofs; the string table immediately follows at
// symtabofs + nsyms*18. Auxiliary entries (naux) are skipped, not decoded.
func (ctx *Context) ReadSyms(s *bstream.Reader) ([]symrec.Symbol, error) {
	if ctx.Header.NSyms == 0 || ctx.Header.SymtabOfs == 0 {
		return nil, nil
	}
	strtabOffset := ctx.Header.SymtabOfs + ctx.Header.NSyms*SymbolSize

	var out []symrec.Symbol
	off := ctx.base + int64(ctx.Header.SymtabOfs)
	for i := uint32(0); i < ctx.Header.NSyms; {
		if err := s.Seek(off); err != nil {
			return nil, err
		}
		var buf [SymbolSize]byte
		if err := s.Read(buf[:]); err != nil {
			return nil, fmt.Errorf("coff: symbol %d: %w: %v", i, xerrors.ErrTruncated, err)
		}
		sym := rawSymbol{
			Value:     binary.LittleEndian.Uint32(buf[8:12]),
			Section:   int16(binary.LittleEndian.Uint16(buf[12:14])),
			Type:      binary.LittleEndian.Uint16(buf[14:16]),
			StorClass: buf[16],
			NAux:      buf[17],
		}
		copy(sym.NameBytes[:], buf[0:8])
		off += SymbolSize
		i++

		name, ok := ctx.symbolName(s, sym, strtabOffset)
		if ok && name != "" {
			kind := symbolType(sym.Section, sym.StorClass, ctx.Sections)
			out = append(out, symrec.Symbol{
				Name:         name,
				Type:         kind,
				Value:        uint64(sym.Value),
				HasValue:     true,
				Section:      int(sym.Section),
				StorageClass: int(sym.StorClass),
			})
		}

		if sym.NAux > 0 {
			off += int64(sym.NAux) * SymbolSize
			i += uint32(sym.NAux)
		}
	}
	return out, nil
}

// symbolName resolves a short (inline, NUL-padded) or long (string-table
// offset) symbol name, per §4.5: a name is long when its first 4 bytes are
// all zero, in which case the trailing 4 bytes are the string-table offset.
func (ctx *Context) symbolName(s *bstream.Reader, sym rawSymbol, strtabOffset uint32) (string, bool) {
	if sym.NameBytes[0] == 0 && sym.NameBytes[1] == 0 && sym.NameBytes[2] == 0 && sym.NameBytes[3] == 0 {
		offset := binary.LittleEndian.Uint32(sym.NameBytes[4:8])
		name, err := s.ReadCStr(ctx.base+int64(strtabOffset)+int64(offset), 4096)
		if err != nil {
			return "", false
		}
		return name, true
	}
	n := 0
	for n < len(sym.NameBytes) && sym.NameBytes[n] != 0 {
		n++
	}
	return string(sym.NameBytes[:n]), true
}

// symbolType implements §4.5's nm-style classification: sect==0 is
// undefined; otherwise the target section's flags select text/data/bss,
// falling back to a 1-based section-index heuristic when the flags carry
// none of those bits; external storage class selects uppercase.
func symbolType(sect int16, scl uint8, sections []Section) byte {
	if sect == 0 {
		return classify('U', scl)
	}
	if sect > 0 && int(sect) <= len(sections) {
		flags := sections[sect-1].Flags
		switch {
		case flags&SCNCntCode != 0:
			return classify('T', scl)
		case flags&SCNCntUninitializedData != 0:
			return classify('B', scl)
		case flags&SCNCntInitializedData != 0:
			return classify('D', scl)
		}
	}
	switch sect {
	case 1:
		return classify('T', scl)
	case 2:
		return classify('D', scl)
	case 3:
		return classify('B', scl)
	}
	return classify('S', scl)
}

func classify(kind byte, scl uint8) byte {
	if scl == ClassExternal {
		return kind
	}
	return kind + ('a' - 'A')
}
