package xcoff

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/appsworld/xbinutils/internal/bstream"
	"github.com/appsworld/xbinutils/xerrors"
)

// DepLibs implements §4.5's import-table walk: find the .idata section,
// then read IMAGE_IMPORT_DESCRIPTOR entries (20 bytes) until the all-zero
// terminator, resolving each DLL-name RVA to a file offset by first trying
// the .idata section itself, then scanning every section for the one whose
// [vaddr, vaddr+vsize) range contains the RVA.
func (ctx *Context) DepLibs(s *bstream.Reader) ([]string, error) {
	var idata *Section
	for i := range ctx.Sections {
		if strings.HasPrefix(ctx.Sections[i].NameString(), ".idata") {
			idata = &ctx.Sections[i]
			break
		}
	}
	if idata == nil {
		return nil, nil
	}

	var out []string
	off := ctx.base + int64(idata.Offset)
	for {
		if err := s.Seek(off); err != nil {
			return out, err
		}
		var buf [ImportDescSize]byte
		if err := s.Read(buf[:]); err != nil {
			return out, fmt.Errorf("coff: import descriptor: %w: %v", xerrors.ErrTruncated, err)
		}
		off += ImportDescSize

		originalFirstThunk := binary.LittleEndian.Uint32(buf[0:4])
		nameRVA := binary.LittleEndian.Uint32(buf[12:16])
		if originalFirstThunk == 0 && nameRVA == 0 {
			break
		}
		if nameRVA == 0 {
			continue
		}

		fileOffset, ok := ctx.rvaToFileOffset(nameRVA, idata)
		if !ok {
			continue
		}
		name, err := s.ReadCStr(ctx.base+int64(fileOffset), 256)
		if err == nil && name != "" {
			out = append(out, name)
		}
	}
	return out, nil
}

// rvaToFileOffset maps an RVA to a file offset, checking the hint section
// first (usually .idata itself) before scanning the whole section table.
func (ctx *Context) rvaToFileOffset(rva uint32, hint *Section) (uint32, bool) {
	if rva >= hint.VAddr && rva < hint.VAddr+hint.VSize {
		return hint.Offset + (rva - hint.VAddr), true
	}
	for _, sec := range ctx.Sections {
		if rva >= sec.VAddr && rva < sec.VAddr+sec.VSize {
			return sec.Offset + (rva - sec.VAddr), true
		}
	}
	return 0, false
}
