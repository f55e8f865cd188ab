package xmacho

import (
	"encoding/binary"
	"fmt"

	"github.com/appsworld/xbinutils/format/symrec"
	"github.com/appsworld/xbinutils/internal/bstream"
	"github.com/appsworld/xbinutils/xerrors"
)

// Context is the per-file parse context described in §4.4: the header plus
// the base offset every load-command and section offset in this file is
// relative to. base is always 0 for a thin file read standalone; the field
// exists so a future FAT-aware caller could reuse the same walker per
// slice, even though FAT parsing itself is out of scope.
type Context struct {
	Header Header
	base   int64
	order  binary.ByteOrder
}

// Init reads the first 4 bytes at base to identify the magic, then
// re-reads the full 32- or 64-bit header with the matching byte order, per
// §4.4's "re-read once the magic is known" algorithm.
func Init(s *bstream.Reader, base int64) (*Context, error) {
	if err := s.Seek(base); err != nil {
		return nil, err
	}
	var magicBuf [4]byte
	if err := s.Read(magicBuf[:]); err != nil {
		return nil, fmt.Errorf("macho: reading magic: %w: %v", xerrors.ErrTruncated, err)
	}
	magic := binary.LittleEndian.Uint32(magicBuf[:])

	var is64, swap bool
	var order binary.ByteOrder = binary.LittleEndian
	switch magic {
	case MagicLE32:
	case MagicLE64:
		is64 = true
	case MagicBE32:
		swap = true
		order = binary.BigEndian
	case MagicBE64:
		is64 = true
		swap = true
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("macho: bad magic 0x%x: %w", magic, xerrors.ErrBadMagic)
	}

	size := HeaderSize32
	if is64 {
		size = HeaderSize64
	}
	if err := s.Seek(base); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if err := s.Read(buf); err != nil {
		return nil, fmt.Errorf("macho: reading header: %w: %v", xerrors.ErrTruncated, err)
	}
	r := cursor{b: buf, o: order}
	hdr := Header{Is64: is64, Swap: swap}
	hdr.Magic = r.u32()
	hdr.CPUType = r.u32()
	hdr.CPUSubtype = r.u32()
	hdr.FileType = r.u32()
	hdr.NCmds = r.u32()
	hdr.SizeOfCmds = r.u32()
	hdr.Flags = r.u32()

	return &Context{Header: hdr, base: base, order: order}, nil
}

func (ctx *Context) headerSize() int64 {
	if ctx.Header.Is64 {
		return HeaderSize64
	}
	return HeaderSize32
}

// cursor is a tiny decode-without-reseeking helper over an already-read
// byte slice, mirroring the one xelf uses for fixed-layout structs.
type cursor struct {
	b []byte
	o binary.ByteOrder
	i int
}

func (r *cursor) u16() uint16 {
	v := r.o.Uint16(r.b[r.i:])
	r.i += 2
	return v
}
func (r *cursor) u32() uint32 {
	v := r.o.Uint32(r.b[r.i:])
	r.i += 4
	return v
}
func (r *cursor) u64() uint64 {
	v := r.o.Uint64(r.b[r.i:])
	r.i += 8
	return v
}
func (r *cursor) u8() uint8 {
	v := r.b[r.i]
	r.i++
	return v
}

// walkCommands iterates every load command once, invoking fn with the
// command's file offset and its generic {cmd, cmdsize} header. fn may read
// further fields of the richer command starting at offset; walkCommands
// always advances by cmdsize (never sizeof(struct)), per §4.4.
func (ctx *Context) walkCommands(s *bstream.Reader, fn func(offset int64, lc loadCommand) error) error {
	off := ctx.base + ctx.headerSize()
	for i := uint32(0); i < ctx.Header.NCmds; i++ {
		if err := s.Seek(off); err != nil {
			return err
		}
		var buf [LoadCommandSize]byte
		if err := s.Read(buf[:]); err != nil {
			return fmt.Errorf("macho: load command %d: %w: %v", i, xerrors.ErrTruncated, err)
		}
		r := cursor{b: buf[:], o: ctx.order}
		lc := loadCommand{Cmd: r.u32(), CmdSize: r.u32()}
		if lc.CmdSize < LoadCommandSize {
			return fmt.Errorf("macho: load command %d cmdsize %d too small: %w", i, lc.CmdSize, xerrors.ErrTruncated)
		}
		if err := fn(off, lc); err != nil {
			return err
		}
		off += int64(lc.CmdSize)
	}
	return nil
}

func (ctx *Context) readSegment(s *bstream.Reader, off int64, is64 bool) (segmentInfo, error) {
	size := SegmentCommandSize32
	if is64 {
		size = SegmentCommandSize64
	}
	if err := s.Seek(off); err != nil {
		return segmentInfo{}, err
	}
	buf := make([]byte, size)
	if err := s.Read(buf); err != nil {
		return segmentInfo{}, fmt.Errorf("macho: segment command: %w: %v", xerrors.ErrTruncated, err)
	}
	r := cursor{b: buf, o: ctx.order}
	r.u32() // cmd
	r.u32() // cmdsize
	r.i += 16 // segname
	if is64 {
		r.u64() // vmaddr
		r.u64() // vmsize
		r.u64() // fileoff
		r.u64() // filesize
	} else {
		r.u32()
		r.u32()
		r.u32()
		r.u32()
	}
	r.u32() // maxprot
	r.u32() // initprot
	nsects := r.u32()
	return segmentInfo{NSects: nsects}, nil
}

func (ctx *Context) readSection(s *bstream.Reader, is64 bool) (sectionInfo, error) {
	size := SectionSize32
	if is64 {
		size = SectionSize64
	}
	buf := make([]byte, size)
	if err := s.Read(buf); err != nil {
		return sectionInfo{}, fmt.Errorf("macho: section: %w: %v", xerrors.ErrTruncated, err)
	}
	r := cursor{b: buf, o: ctx.order}
	r.i += 16 + 16 // sectname, segname
	if is64 {
		r.u64() // addr
		r.u64() // size
	} else {
		r.u32()
		r.u32()
	}
	offset := r.u32()
	return sectionInfo{Offset: offset}, nil
}

// ReadSyms walks load commands for LC_SYMTAB, then iterates its nlist
// entries applying the nm-style classification from §4.4: the 1-based sect
// alone decides T/D/B/S (1, 2, 3, anything else), sect==0 means U, and
// N_EXT selects upper/lowercase. The type&N_TYPE_MASK bits are not
// consulted, so an N_ABS or N_INDR entry is classified by its sect like
// any other.
func (ctx *Context) ReadSyms(s *bstream.Reader) ([]symrec.Symbol, error) {
	var symtab *symtabCommand
	err := ctx.walkCommands(s, func(off int64, lc loadCommand) error {
		if lc.Cmd != LcSymtab {
			return nil
		}
		if err := s.Seek(off); err != nil {
			return err
		}
		buf := make([]byte, SymtabCommandSize)
		if err := s.Read(buf); err != nil {
			return fmt.Errorf("macho: symtab command: %w: %v", xerrors.ErrTruncated, err)
		}
		r := cursor{b: buf, o: ctx.order}
		r.u32() // cmd
		r.u32() // cmdsize
		symtab = &symtabCommand{Symoff: r.u32(), Nsyms: r.u32(), Stroff: r.u32(), Strsize: r.u32()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if symtab == nil {
		return nil, nil
	}

	entSize := NlistSize32
	if ctx.Header.Is64 {
		entSize = NlistSize64
	}
	var out []symrec.Symbol
	for i := uint32(0); i < symtab.Nsyms; i++ {
		off := ctx.base + int64(symtab.Symoff) + int64(i)*int64(entSize)
		if err := s.Seek(off); err != nil {
			return nil, err
		}
		buf := make([]byte, entSize)
		if err := s.Read(buf); err != nil {
			return nil, fmt.Errorf("macho: nlist %d: %w: %v", i, xerrors.ErrTruncated, err)
		}
		r := cursor{b: buf, o: ctx.order}
		var n Nlist
		n.Strx = r.u32()
		n.Type = r.u8()
		n.Sect = r.u8()
		if ctx.Header.Is64 {
			n.Desc = r.u16()
			n.Value = r.u64()
		} else {
			n.Desc = r.u16()
			n.Value = uint64(r.u32())
		}

		name, err := s.ReadCStr(ctx.base+int64(symtab.Stroff)+int64(n.Strx), 4096)
		if err != nil || name == "" {
			continue
		}

		external := n.Type&NExt != 0
		var kind byte
		if n.Sect == 0 {
			kind = 'U'
		} else {
			switch n.Sect {
			case 1:
				kind = 'T'
			case 2:
				kind = 'D'
			case 3:
				kind = 'B'
			default:
				kind = 'S'
			}
		}
		if external {
			kind = upper(kind)
		} else {
			kind = lower(kind)
		}
		out = append(out, symrec.Symbol{Name: name, Type: kind, Value: n.Value, HasValue: true, Section: int(n.Sect)})
	}
	return out, nil
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 32
	}
	return b
}
func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}

// DepLibs implements §4.4's dependency reading: for each
// LC_LOAD_DYLIB/LC_ID_DYLIB/LC_LOAD_WEAK_DYLIB/LC_REEXPORT_DYLIB command,
// read the trailing dylib.offset-based string, bounded by cmdsize.
func (ctx *Context) DepLibs(s *bstream.Reader) ([]string, error) {
	var out []string
	err := ctx.walkCommands(s, func(off int64, lc loadCommand) error {
		switch lc.Cmd {
		case LcLoadDylib, LcIdDylib, LcLoadWeakDylib, LcReexportDylib:
		default:
			return nil
		}
		if err := s.Seek(off + LoadCommandSize); err != nil {
			return err
		}
		var nameOffBuf [4]byte
		if err := s.Read(nameOffBuf[:]); err != nil {
			return fmt.Errorf("macho: dylib_command: %w: %v", xerrors.ErrTruncated, err)
		}
		nameOffset := ctx.order.Uint32(nameOffBuf[:])
		if nameOffset >= lc.CmdSize {
			return nil
		}
		maxLen := int(lc.CmdSize - nameOffset)
		name, err := s.ReadCStr(off+int64(nameOffset), maxLen)
		if err == nil && name != "" {
			out = append(out, name)
		}
		return nil
	})
	return out, err
}

// RPathList implements §4.4's RPATH listing: walk LC_RPATH commands,
// reading the path string trailing each one.
func (ctx *Context) RPathList(s *bstream.Reader) ([]string, error) {
	var out []string
	err := ctx.walkCommands(s, func(off int64, lc loadCommand) error {
		if lc.Cmd != LcRpath {
			return nil
		}
		if err := s.Seek(off + LoadCommandSize); err != nil {
			return err
		}
		var pathOffBuf [4]byte
		if err := s.Read(pathOffBuf[:]); err != nil {
			return fmt.Errorf("macho: rpath_command: %w: %v", xerrors.ErrTruncated, err)
		}
		pathOffset := ctx.order.Uint32(pathOffBuf[:])
		if pathOffset >= lc.CmdSize {
			return nil
		}
		path, err := s.ReadCStr(off+int64(pathOffset), int(lc.CmdSize-pathOffset))
		if err == nil && path != "" {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// findLowFileoff scans every LC_SEGMENT/LC_SEGMENT_64's sections for the
// lowest non-zero file offset, bounding how far RPathInsert may grow the
// load-command area without overlapping section data.
func (ctx *Context) findLowFileoff(s *bstream.Reader) (int64, bool, error) {
	low := int64(-1)
	err := ctx.walkCommands(s, func(off int64, lc loadCommand) error {
		var is64 bool
		switch lc.Cmd {
		case LcSegment:
			is64 = false
		case LcSegment64:
			is64 = true
		default:
			return nil
		}
		seg, err := ctx.readSegment(s, off, is64)
		if err != nil {
			return err
		}
		if seg.NSects == 0 {
			return nil
		}
		segSize := int64(SegmentCommandSize32)
		if is64 {
			segSize = SegmentCommandSize64
		}
		if err := s.Seek(off + segSize); err != nil {
			return err
		}
		for j := uint32(0); j < seg.NSects; j++ {
			sect, err := ctx.readSection(s, is64)
			if err != nil {
				return err
			}
			if sect.Offset > 0 && (low == -1 || int64(sect.Offset) < low) {
				low = int64(sect.Offset)
			}
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return low, low != -1, nil
}
