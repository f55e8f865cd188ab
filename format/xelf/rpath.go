package xelf

import (
	"fmt"
	"io"
	"strings"

	"github.com/appsworld/xbinutils/internal/bstream"
)

// RPathList reads every DT_RPATH/DT_RUNPATH string from .dynstr and splits
// each on ':'. When both tags are present, DT_RUNPATH shadows DT_RPATH per
// the ELF standard: only the DT_RUNPATH entries are returned.
func (ctx *Context) RPathList(s *bstream.Reader) ([]string, error) {
	entries, err := ctx.readDynamic(s)
	if err != nil {
		return nil, err
	}
	var rpath, runpath []string
	for _, e := range entries {
		switch e.Tag {
		case DT_RPATH:
			str, err := s.ReadCStr(ctx.DynstrOffset+int64(e.Value), 4096)
			if err == nil && str != "" {
				rpath = append(rpath, strings.Split(str, ":")...)
			}
		case DT_RUNPATH:
			str, err := s.ReadCStr(ctx.DynstrOffset+int64(e.Value), 4096)
			if err == nil && str != "" {
				runpath = append(runpath, strings.Split(str, ":")...)
			}
		}
	}
	if len(runpath) > 0 {
		return runpath, nil
	}
	return rpath, nil
}

// RPathClean removes every DT_RPATH/DT_RUNPATH entry from the dynamic
// table in place: the surviving entries (and the terminating DT_NULL) are
// compacted to the front, the freed tail is zeroed, and the compacted
// table is written back at its original file offset. Section/segment
// sizes referencing the dynamic table are left untouched — NULL-padding
// preserves the entry count so loaders scan exactly as many slots as
// before. Applying this twice is a no-op: the second pass finds nothing
// left to remove.
func (ctx *Context) RPathClean(rw ReadWriteSeeker) error {
	s, err := newSizedReader(rw)
	if err != nil {
		return err
	}
	entries, err := ctx.readDynamic(s)
	if err != nil {
		return err
	}
	if ctx.DynamicOffset == 0 {
		return nil
	}

	entSize := ctx.dynEntrySize()
	out := make([]byte, len(entries)*entSize)
	w := wbuf{o: ctx.order}
	kept := 0
	for _, e := range entries {
		if e.Tag == DT_RPATH || e.Tag == DT_RUNPATH {
			continue
		}
		writeDynEntry(&w, e, ctx.Header.Is64)
		kept++
		if e.Tag == DT_NULL {
			break
		}
	}
	copy(out, w.b)

	if _, err := rw.Seek(ctx.DynamicOffset, 0); err != nil {
		return fmt.Errorf("elf: seek dynamic table: %w", err)
	}
	if _, err := rw.Write(out); err != nil {
		return fmt.Errorf("elf: write compacted dynamic table: %w", err)
	}
	return nil
}

func writeDynEntry(w *wbuf, e DynEntry, is64 bool) {
	if is64 {
		w.u64(uint64(e.Tag))
		w.u64(e.Value)
	} else {
		w.u32(uint32(int32(e.Tag)))
		w.u32(uint32(e.Value))
	}
}

// ReadWriteSeeker is the minimal file handle RPathClean needs: readable at
// arbitrary offsets (for the initial dynamic-table scan) and writable at
// the dynamic-table offset for the compacted rewrite.
type ReadWriteSeeker interface {
	ReadAt(p []byte, off int64) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Write(p []byte) (int, error)
}

func newSizedReader(rw ReadWriteSeeker) (*bstream.Reader, error) {
	size, err := rw.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	return bstream.New(rw, size), nil
}
