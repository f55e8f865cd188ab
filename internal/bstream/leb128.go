package bstream

import (
	"fmt"

	"github.com/appsworld/xbinutils/xerrors"
)

// ReadLEBU32 decodes an unsigned LEB128 value, failing after 5 bytes
// without a terminator (the most a uint32 can need).
func (s *Reader) ReadLEBU32() (uint32, error) {
	v, err := s.readLEB(5)
	return uint32(v), err
}

// ReadLEBU64 decodes an unsigned LEB128 value, failing after 10 bytes
// without a terminator (the most a uint64 can need).
func (s *Reader) ReadLEBU64() (uint64, error) {
	return s.readLEB(10)
}

func (s *Reader) readLEB(maxBytes int) (uint64, error) {
	var result uint64
	var shift uint
	var b [1]byte
	for i := 0; i < maxBytes; i++ {
		if err := s.Read(b[:]); err != nil {
			return 0, err
		}
		result |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, fmt.Errorf("leb128 exceeds %d bytes: %w", maxBytes, xerrors.ErrTruncated)
}

// ReadNameLP reads a ULEB128 length followed by that many bytes of UTF-8,
// the encoding WASM uses for every name field.
func (s *Reader) ReadNameLP() (string, error) {
	n, err := s.ReadLEBU32()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := s.Read(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
