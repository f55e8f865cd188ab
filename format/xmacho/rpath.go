package xmacho

import (
	"fmt"
	"io"

	"github.com/appsworld/xbinutils/internal/bstream"
	"github.com/appsworld/xbinutils/xerrors"
)

// ReadWriteSeeker is the minimal file handle the RPATH rewriters need:
// readable at arbitrary offsets for the load-command scan, seekable and
// writable for the in-place rewrite.
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

func align4(n int) int { return (n + 3) &^ 3 }

// RPathInsert implements §4.4's insert algorithm: refuse a duplicate path,
// compute the new command's aligned size, refuse if appending it would
// collide with the lowest section file offset, otherwise append the
// command after the existing load commands and grow ncmds/sizeofcmds.
func (ctx *Context) RPathInsert(rw ReadWriteSeeker, path string) error {
	s, err := newSizedReader(rw)
	if err != nil {
		return err
	}
	existing, err := ctx.RPathList(s)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p == path {
			return nil
		}
	}

	cmdSize := align4(RpathCommandSize + len(path) + 1)
	low, ok, err := ctx.findLowFileoff(s)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("macho: rpath insert: no section to bound load-command growth: %w", xerrors.ErrNoSpace)
	}
	newCmdsEnd := ctx.base + ctx.headerSize() + int64(ctx.Header.SizeOfCmds) + int64(cmdSize)
	if newCmdsEnd > low {
		return fmt.Errorf("macho: rpath insert: new command would overlap section data at %d: %w", low, xerrors.ErrNoSpace)
	}

	cmdOff := ctx.base + ctx.headerSize() + int64(ctx.Header.SizeOfCmds)
	buf := make([]byte, cmdSize)
	ctx.order.PutUint32(buf[0:4], LcRpath)
	ctx.order.PutUint32(buf[4:8], uint32(cmdSize))
	ctx.order.PutUint32(buf[8:12], RpathCommandSize)
	copy(buf[RpathCommandSize:], path)
	// buf is zero-initialized, so the trailing NUL and the alignment
	// padding are already in place.

	if _, err := rw.Seek(cmdOff, io.SeekStart); err != nil {
		return fmt.Errorf("macho: seek new command: %w", err)
	}
	if _, err := rw.Write(buf); err != nil {
		return fmt.Errorf("macho: write new command: %w", err)
	}

	ctx.Header.NCmds++
	ctx.Header.SizeOfCmds += uint32(cmdSize)
	return ctx.writeHeaderCounts(rw)
}

// RPathRemove implements §4.4's remove algorithm: compact every load
// command other than an LC_RPATH matching path down to the front in place.
func (ctx *Context) RPathRemove(rw ReadWriteSeeker, path string) error {
	return ctx.compactCommands(rw, func(s *bstream.Reader, off int64, lc loadCommand) (bool, error) {
		if lc.Cmd != LcRpath {
			return false, nil
		}
		if err := s.Seek(off + LoadCommandSize); err != nil {
			return false, err
		}
		var pathOffBuf [4]byte
		if err := s.Read(pathOffBuf[:]); err != nil {
			return false, fmt.Errorf("macho: rpath_command: %w: %v", xerrors.ErrTruncated, err)
		}
		pathOffset := ctx.order.Uint32(pathOffBuf[:])
		if pathOffset >= lc.CmdSize {
			return false, nil
		}
		current, err := s.ReadCStr(off+int64(pathOffset), int(lc.CmdSize-pathOffset))
		if err != nil {
			return false, nil
		}
		return current == path, nil
	})
}

// RPathClean implements §4.4's clean algorithm: compact away every
// LC_RPATH command, regardless of its string.
func (ctx *Context) RPathClean(rw ReadWriteSeeker) error {
	return ctx.compactCommands(rw, func(s *bstream.Reader, off int64, lc loadCommand) (bool, error) {
		return lc.Cmd == LcRpath, nil
	})
}

// compactCommands slides every load command for which shouldRemove
// returns false down to a contiguous run starting at the first command,
// zero-padding the freed tail, then updates ncmds/sizeofcmds only if
// anything was actually removed — applying this twice is a no-op the
// second time, since nothing left matches shouldRemove.
func (ctx *Context) compactCommands(rw ReadWriteSeeker, shouldRemove func(s *bstream.Reader, off int64, lc loadCommand) (bool, error)) error {
	s, err := newSizedReader(rw)
	if err != nil {
		return err
	}

	readOff := ctx.base + ctx.headerSize()
	writeOff := readOff
	var newNCmds, newSizeOfCmds uint32
	found := false

	scratch := make([]byte, 64*1024)
	for i := uint32(0); i < ctx.Header.NCmds; i++ {
		if err := s.Seek(readOff); err != nil {
			return err
		}
		var lcBuf [LoadCommandSize]byte
		if err := s.Read(lcBuf[:]); err != nil {
			return fmt.Errorf("macho: load command %d: %w: %v", i, xerrors.ErrTruncated, err)
		}
		lc := loadCommand{Cmd: ctx.order.Uint32(lcBuf[0:4]), CmdSize: ctx.order.Uint32(lcBuf[4:8])}
		if lc.CmdSize > uint32(len(scratch)) {
			return fmt.Errorf("macho: load command %d cmdsize %d exceeds scratch buffer: %w", i, lc.CmdSize, xerrors.ErrTruncated)
		}

		remove, err := shouldRemove(s, readOff, lc)
		if err != nil {
			return err
		}
		if remove {
			found = true
		} else {
			if readOff != writeOff {
				if err := s.Seek(readOff); err != nil {
					return err
				}
				chunk := scratch[:lc.CmdSize]
				if err := s.Read(chunk); err != nil {
					return fmt.Errorf("macho: re-reading command %d: %w: %v", i, xerrors.ErrTruncated, err)
				}
				if _, err := rw.Seek(writeOff, io.SeekStart); err != nil {
					return err
				}
				if _, err := rw.Write(chunk); err != nil {
					return fmt.Errorf("macho: compacting command %d: %w", i, err)
				}
			}
			writeOff += int64(lc.CmdSize)
			newNCmds++
			newSizeOfCmds += lc.CmdSize
		}
		readOff += int64(lc.CmdSize)
	}

	if !found {
		return nil
	}

	if readOff > writeOff {
		diff := readOff - writeOff
		if _, err := rw.Seek(writeOff, io.SeekStart); err != nil {
			return err
		}
		if _, err := rw.Write(make([]byte, diff)); err != nil {
			return fmt.Errorf("macho: zeroing freed tail: %w", err)
		}
	}

	ctx.Header.NCmds = newNCmds
	ctx.Header.SizeOfCmds = newSizeOfCmds
	return ctx.writeHeaderCounts(rw)
}

// writeHeaderCounts rewrites only ncmds/sizeofcmds in place, at their fixed
// offsets (16, 20) common to both header layouts, leaving magic/cputype/
// filetype/flags (and, for 64-bit, the trailing reserved word) untouched.
func (ctx *Context) writeHeaderCounts(rw ReadWriteSeeker) error {
	var buf [8]byte
	ctx.order.PutUint32(buf[0:4], ctx.Header.NCmds)
	ctx.order.PutUint32(buf[4:8], ctx.Header.SizeOfCmds)
	if _, err := rw.Seek(ctx.base+16, io.SeekStart); err != nil {
		return fmt.Errorf("macho: seek header counts: %w", err)
	}
	if _, err := rw.Write(buf[:]); err != nil {
		return fmt.Errorf("macho: write header counts: %w", err)
	}
	return nil
}
