// Package archive implements the AR and MSVC-lib archive-member
// iteration, long-name-table resolution, MSVC linker-member symbol
// aggregation, and extraction-with-collision-renaming component of the
// binary-format toolkit, per §4.7. Ported from
// core/src/xmake/binutils/{ar,mslib}/{prefix.h,readsyms.c,extractlib.c}.
package archive

// MagicSize is the fixed "!<arch>\n" (or BSD/Windows variant) prefix.
const MagicSize = 8

// HeaderSize is the fixed 60-byte per-member header: name[16] date[12]
// uid[6] gid[6] mode[8] size[10] fmag[2].
const HeaderSize = 16 + 12 + 6 + 6 + 8 + 10 + 2

// Dialect records which member-naming convention produced a Member's
// name. A single archive (notably one touched by Xcode's ranlib) can mix
// SysV, BSD, and MSVC conventions across members, so this is tracked
// per-member rather than assumed for the whole container.
type Dialect int

const (
	DialectUnknown Dialect = iota
	DialectSysV            // short name, space/NUL/slash terminated, inline in the header
	DialectBSD             // "#N/L": name is N bytes read from the member payload itself
	DialectMSVC            // "/N": offset into the "//" long-name table
)

// Member describes one non-bookkeeping archive member: a regular file,
// or the symbol-table member ("/", recognisable via IsSymtab). The "//"
// long-name table itself is consumed during iteration and never
// surfaced as a Member.
type Member struct {
	Name         string
	Dialect      Dialect
	HeaderOffset int64 // offset of this member's 60-byte header
	Offset       int64 // offset of this member's payload
	Size         int64 // payload size, excluding any inline BSD name bytes
	IsSymtab     bool
}
