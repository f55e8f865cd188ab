// Package bstream implements the seekable-peek byte stream primitives that
// every format reader in this module is built on: bounded string reads,
// LEB128 decoding, and stream-to-stream copy. It shares one offset-tracking
// wrapper around io.ReaderAt instead of duplicating that bookkeeping in
// every reader.
package bstream

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/appsworld/xbinutils/xerrors"
)

// Reader is a read/seek/peek byte source over an io.ReaderAt with a cached
// current offset. Peek returns a borrow valid until the next Read/Skip/Seek.
type Reader struct {
	r      io.ReaderAt
	off    int64
	size   int64
	peekBuf []byte
}

// New wraps r, which must support reads at arbitrary offsets, as a Reader
// positioned at offset 0. size is the total stream length, used to bound
// Peek and to detect truncation.
func New(r io.ReaderAt, size int64) *Reader {
	return &Reader{r: r, size: size}
}

// Offset returns the current read position.
func (s *Reader) Offset() int64 { return s.off }

// Size returns the total stream length.
func (s *Reader) Size() int64 { return s.size }

// Seek repositions the stream without performing I/O.
func (s *Reader) Seek(offset int64) error {
	if offset < 0 || offset > s.size {
		return fmt.Errorf("seek %d out of range [0,%d]: %w", offset, s.size, xerrors.ErrTruncated)
	}
	s.off = offset
	return nil
}

// Read fills buf from the current offset and advances it by len(buf).
func (s *Reader) Read(buf []byte) error {
	n, err := s.r.ReadAt(buf, s.off)
	if n < len(buf) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("read %d bytes at %d: %w: %v", len(buf), s.off, xerrors.ErrTruncated, err)
	}
	s.off += int64(len(buf))
	return nil
}

// Peek returns a borrow of up to n bytes visible at the current offset
// without advancing it. The returned slice is only valid until the next
// call into the Reader.
func (s *Reader) Peek(n int) ([]byte, error) {
	if s.off+int64(n) > s.size {
		n = int(s.size - s.off)
	}
	if n <= 0 {
		return nil, fmt.Errorf("peek at %d: %w", s.off, xerrors.ErrTruncated)
	}
	if cap(s.peekBuf) < n {
		s.peekBuf = make([]byte, n)
	}
	buf := s.peekBuf[:n]
	if _, err := s.r.ReadAt(buf, s.off); err != nil && err != io.EOF {
		return nil, fmt.Errorf("peek at %d: %w: %v", s.off, xerrors.ErrIO, err)
	}
	return buf, nil
}

// Skip advances the offset by n bytes without reading.
func (s *Reader) Skip(n int64) error {
	return s.Seek(s.off + n)
}

// ReadU16LE reads a little-endian uint16 and advances the offset.
func (s *Reader) ReadU16LE() (uint16, error) {
	var b [2]byte
	if err := s.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

// ReadU32LE reads a little-endian uint32 and advances the offset.
func (s *Reader) ReadU32LE() (uint32, error) {
	var b [4]byte
	if err := s.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadU64LE reads a little-endian uint64 and advances the offset.
func (s *Reader) ReadU64LE() (uint64, error) {
	var b [8]byte
	if err := s.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// ReadCStr reads a NUL-terminated string at an absolute offset, saving and
// restoring the stream's current offset around the read. max bounds the
// number of bytes scanned before giving up.
func (s *Reader) ReadCStr(offset int64, max int) (string, error) {
	saved := s.off
	defer func() { s.off = saved }()

	if err := s.Seek(offset); err != nil {
		return "", err
	}
	buf := make([]byte, 0, 32)
	var b [1]byte
	for i := 0; i < max; i++ {
		if err := s.Read(b[:]); err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
	return "", fmt.Errorf("cstring at %d exceeds %d bytes: %w", offset, max, xerrors.ErrTruncated)
}

// Copy moves up to n bytes from in to out through a fixed internal buffer,
// failing if either side reports a short operation.
func Copy(out io.Writer, in io.Reader, n int64) error {
	buf := make([]byte, 32*1024)
	remaining := n
	for remaining > 0 {
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		nr, err := io.ReadFull(in, buf[:chunk])
		if err != nil {
			return fmt.Errorf("stream copy read: %w: %v", xerrors.ErrTruncated, err)
		}
		nw, err := out.Write(buf[:nr])
		if err != nil || nw != nr {
			return fmt.Errorf("stream copy write: %w: %v", xerrors.ErrIO, err)
		}
		remaining -= int64(nr)
	}
	return nil
}
