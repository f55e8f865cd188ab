// Package xerrors defines the typed error kinds shared across the
// binary-format toolkit, so callers can tell a truncated file apart from
// an unrecognised one without parsing error strings.
package xerrors

import "errors"

// Sentinel error kinds. Wrap one of these with fmt.Errorf("...: %w", Kind)
// at the point of detection so errors.Is still matches at any call depth.
var (
	// ErrIO wraps an underlying stream read/write/seek failure.
	ErrIO = errors.New("io error")
	// ErrTruncated means a required structure extends beyond the file.
	ErrTruncated = errors.New("truncated")
	// ErrBadMagic means the signature did not match any supported format.
	ErrBadMagic = errors.New("bad magic")
	// ErrUnsupported means the format was recognised but an expected
	// feature is absent (e.g. no .idata directory when asked for deplibs).
	ErrUnsupported = errors.New("unsupported")
	// ErrParse means semver/range parsing failed; carries the offending input.
	ErrParse = errors.New("parse error")
	// ErrConflict means extraction could not find a collision-free name.
	ErrConflict = errors.New("name conflict")
	// ErrNoSpace means a Mach-O LC_RPATH insertion would overlap section data.
	ErrNoSpace = errors.New("no space")
)
