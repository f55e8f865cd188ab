package xwasm

import (
	"fmt"

	"github.com/appsworld/xbinutils/format/symrec"
	"github.com/appsworld/xbinutils/internal/bstream"
	"github.com/appsworld/xbinutils/xerrors"
)

// CheckHeader verifies the 8-byte "\0asm" + version prefix at base,
// leaving the stream positioned right after it.
func CheckHeader(s *bstream.Reader, base int64) error {
	if err := s.Seek(base); err != nil {
		return err
	}
	var buf [HeaderSize]byte
	if err := s.Read(buf[:]); err != nil {
		return fmt.Errorf("wasm: reading header: %w: %v", xerrors.ErrTruncated, err)
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return fmt.Errorf("wasm: bad magic: %w", xerrors.ErrBadMagic)
	}
	if buf[4] != 1 || buf[5] != 0 || buf[6] != 0 || buf[7] != 0 {
		return fmt.Errorf("wasm: unsupported version % x: %w", buf[4:], xerrors.ErrUnsupported)
	}
	return nil
}

// ReadSyms implements §4.6: iterate every section until EOF, collecting
// import/export symbols plus whatever the `linking`/`name` custom sections
// carry. A malformed trailing section stops the scan and returns whatever
// was collected so far, matching the original's "best effort" reader.
func ReadSyms(s *bstream.Reader, base int64) ([]symrec.Symbol, error) {
	if err := CheckHeader(s, base); err != nil {
		return nil, err
	}

	var out []symrec.Symbol
scan:
	for s.Offset() < s.Size() {
		var idBuf [1]byte
		if err := s.Read(idBuf[:]); err != nil {
			break
		}
		sectionID := idBuf[0]

		payloadLen, err := s.ReadLEBU32()
		if err != nil {
			break
		}
		payloadStart := s.Offset()
		payloadEnd := payloadStart + int64(payloadLen)
		if payloadEnd > s.Size() {
			break
		}
		if payloadLen == 0 {
			continue
		}

		switch sectionID {
		case SectionCustom:
			name, err := s.ReadNameLP()
			if err != nil {
				break scan
			}
			switch name {
			case CustomLinking:
				syms, err := parseCustomLinking(s, payloadEnd)
				out = append(out, syms...)
				if err != nil {
					break scan
				}
			case CustomName:
				syms, err := parseCustomName(s, payloadEnd, len(out) != 0)
				out = append(out, syms...)
				if err != nil {
					break scan
				}
			}
		case SectionImport:
			syms, _ := parseImports(s)
			out = append(out, syms...)
		case SectionExport:
			syms, _ := parseExports(s)
			out = append(out, syms...)
		}

		if s.Offset() < payloadEnd {
			if err := s.Seek(payloadEnd); err != nil {
				break
			}
		} else if s.Offset() > payloadEnd {
			break
		}
	}
	return out, nil
}

func skipLimits(s *bstream.Reader) error {
	flags, err := s.ReadLEBU32()
	if err != nil {
		return err
	}
	if flags&LimitsMem64 != 0 {
		if _, err := s.ReadLEBU64(); err != nil {
			return err
		}
		if flags&LimitsHasMax != 0 {
			if _, err := s.ReadLEBU64(); err != nil {
				return err
			}
		}
		return nil
	}
	if _, err := s.ReadLEBU32(); err != nil {
		return err
	}
	if flags&LimitsHasMax != 0 {
		if _, err := s.ReadLEBU32(); err != nil {
			return err
		}
	}
	return nil
}

// parseImports implements §4.6's import-section rule: each import
// produces an undefined symbol named after its field (falling back to the
// module name when the field is empty).
func parseImports(s *bstream.Reader) ([]symrec.Symbol, error) {
	count, err := s.ReadLEBU32()
	if err != nil {
		return nil, err
	}
	var out []symrec.Symbol
	for i := uint32(0); i < count; i++ {
		module, err := s.ReadNameLP()
		if err != nil {
			return out, err
		}
		field, err := s.ReadNameLP()
		if err != nil {
			return out, err
		}
		var kindBuf [1]byte
		if err := s.Read(kindBuf[:]); err != nil {
			return out, err
		}
		switch kindBuf[0] {
		case KindFunc:
			if _, err := s.ReadLEBU32(); err != nil { // type index
				return out, err
			}
		case KindTable:
			var elemtype [1]byte
			if err := s.Read(elemtype[:]); err != nil {
				return out, err
			}
			if err := skipLimits(s); err != nil {
				return out, err
			}
		case KindMemory:
			if err := skipLimits(s); err != nil {
				return out, err
			}
		case KindGlobal:
			var valtypeMut [2]byte
			if err := s.Read(valtypeMut[:]); err != nil {
				return out, err
			}
		case KindTag:
			if _, err := s.ReadLEBU32(); err != nil {
				return out, err
			}
		default:
			return out, fmt.Errorf("wasm: unknown import kind %d: %w", kindBuf[0], xerrors.ErrUnsupported)
		}

		switch {
		case field != "":
			out = append(out, symrec.Symbol{Name: field, Type: 'U'})
		case module != "":
			out = append(out, symrec.Symbol{Name: module, Type: 'U'})
		}
	}
	return out, nil
}

// parseExports implements §4.6's export-section rule: FUNC kind is text,
// everything else is data.
func parseExports(s *bstream.Reader) ([]symrec.Symbol, error) {
	count, err := s.ReadLEBU32()
	if err != nil {
		return nil, err
	}
	var out []symrec.Symbol
	for i := uint32(0); i < count; i++ {
		name, err := s.ReadNameLP()
		if err != nil {
			return out, err
		}
		var kindBuf [1]byte
		if err := s.Read(kindBuf[:]); err != nil {
			return out, err
		}
		if _, err := s.ReadLEBU32(); err != nil { // index
			return out, err
		}
		if name == "" {
			continue
		}
		kind := byte('D')
		if kindBuf[0] == KindFunc {
			kind = 'T'
		}
		out = append(out, symrec.Symbol{Name: name, Type: kind})
	}
	return out, nil
}

// parseCustomLinking implements the `linking` custom section: a version
// LEB followed by (subsection_id:u8, size:u32_leb, payload) entries; only
// the symbol-table subsection (id 8) is decoded, everything else is
// skipped by its declared size.
func parseCustomLinking(s *bstream.Reader, payloadEnd int64) ([]symrec.Symbol, error) {
	version, err := s.ReadLEBU32()
	if err != nil {
		return nil, err
	}

	var out []symrec.Symbol
	for s.Offset() < payloadEnd {
		var subTypeBuf [1]byte
		if err := s.Read(subTypeBuf[:]); err != nil {
			return out, err
		}
		subSize, err := s.ReadLEBU32()
		if err != nil {
			return out, err
		}
		subEnd := s.Offset() + int64(subSize)
		if subEnd > payloadEnd {
			return out, fmt.Errorf("wasm: linking subsection exceeds section: %w", xerrors.ErrTruncated)
		}

		if subTypeBuf[0] == LinkingSubsecSymtab {
			syms, err := parseLinkingSymtab(s, subEnd)
			out = append(out, syms...)
			if err != nil {
				return out, err
			}
		}
		if s.Offset() < subEnd {
			if err := s.Seek(subEnd); err != nil {
				return out, err
			}
		}
	}
	if version == 0 {
		return out, fmt.Errorf("wasm: linking section has version 0: %w", xerrors.ErrParse)
	}
	return out, nil
}

// parseLinkingSymtab decodes the linking section's symbol-table
// subsection, classifying each entry per §4.6: undefined entries are U,
// function entries are T, everything else is D.
func parseLinkingSymtab(s *bstream.Reader, payloadEnd int64) ([]symrec.Symbol, error) {
	symCount, err := s.ReadLEBU32()
	if err != nil {
		return nil, err
	}

	var out []symrec.Symbol
	for i := uint32(0); i < symCount; i++ {
		var kindBuf [1]byte
		if err := s.Read(kindBuf[:]); err != nil {
			return out, err
		}
		kind := kindBuf[0]
		flags, err := s.ReadLEBU32()
		if err != nil {
			return out, err
		}
		isUndef := flags&SymtabFlagUndefined != 0

		var name string
		switch kind {
		case SymtabKindFunction, SymtabKindGlobal, SymtabKindEvent, SymtabKindTable, SymtabKindTag:
			if !isUndef {
				if _, err := s.ReadLEBU32(); err != nil { // index
					return out, err
				}
			}
			if name, err = s.ReadNameLP(); err != nil {
				return out, err
			}
		case SymtabKindData:
			if name, err = s.ReadNameLP(); err != nil {
				return out, err
			}
			if !isUndef {
				for j := 0; j < 3; j++ { // segment, offset, size
					if _, err := s.ReadLEBU32(); err != nil {
						return out, err
					}
				}
			}
		case SymtabKindSection:
			if _, err := s.ReadLEBU32(); err != nil { // section index
				return out, err
			}
			if name, err = s.ReadNameLP(); err != nil {
				return out, err
			}
		default:
			return out, fmt.Errorf("wasm: unknown symtab kind %d: %w", kind, xerrors.ErrUnsupported)
		}

		if name != "" {
			kindChar := byte('D')
			switch {
			case isUndef:
				kindChar = 'U'
			case kind == SymtabKindFunction:
				kindChar = 'T'
			}
			out = append(out, symrec.Symbol{Name: name, Type: kindChar})
		}

		if s.Offset() > payloadEnd {
			return out, fmt.Errorf("wasm: symtab entry exceeds subsection: %w", xerrors.ErrTruncated)
		}
	}
	return out, nil
}

// parseCustomName decodes the `name` section's function-name subsection
// (id 1) as a fallback, used only when no symbols were found elsewhere.
func parseCustomName(s *bstream.Reader, payloadEnd int64, haveSymbols bool) ([]symrec.Symbol, error) {
	if haveSymbols {
		return nil, nil
	}

	var out []symrec.Symbol
	for s.Offset() < payloadEnd {
		var subTypeBuf [1]byte
		if err := s.Read(subTypeBuf[:]); err != nil {
			return out, err
		}
		subSize, err := s.ReadLEBU32()
		if err != nil {
			return out, err
		}
		subEnd := s.Offset() + int64(subSize)
		if subEnd > payloadEnd {
			return out, fmt.Errorf("wasm: name subsection exceeds section: %w", xerrors.ErrTruncated)
		}

		if subTypeBuf[0] == NameSubsecFunctions {
			count, err := s.ReadLEBU32()
			if err != nil {
				return out, err
			}
			for i := uint32(0); i < count; i++ {
				if _, err := s.ReadLEBU32(); err != nil { // function index
					return out, err
				}
				name, err := s.ReadNameLP()
				if err != nil {
					return out, err
				}
				if name != "" {
					out = append(out, symrec.Symbol{Name: name, Type: 'T'})
				}
				if s.Offset() > subEnd {
					return out, fmt.Errorf("wasm: name entry exceeds subsection: %w", xerrors.ErrTruncated)
				}
			}
		}
		if s.Offset() < subEnd {
			if err := s.Seek(subEnd); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}
