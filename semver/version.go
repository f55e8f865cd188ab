// Package semver implements semantic-version parsing, comparison, range
// matching, and candidate selection, ported from the build engine's
// embedded sv library (github.com's xmake core/src/sv, public domain).
//
// It is a standalone leaf package: nothing else in this module depends on
// it reaching back into stream or format code, so it is safe to import on
// its own.
package semver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/appsworld/xbinutils/xerrors"
)

// Identifier is one dot-separated component of a prerelease or build tag.
// It is either Numeric (no leading zero, per semver.org's grammar) or Alphanum.
type Identifier struct {
	Numeric  bool
	Num      int
	Alphanum string
}

func (id Identifier) String() string {
	if id.Numeric {
		return strconv.Itoa(id.Num)
	}
	return id.Alphanum
}

// Version is a parsed semantic version.
type Version struct {
	Major, Minor, Patch int
	Prerelease          []Identifier
	Build               []Identifier
}

// String renders the canonical M.m.p[-pre][+build] form.
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if len(v.Prerelease) > 0 {
		b.WriteByte('-')
		writeIDs(&b, v.Prerelease)
	}
	if len(v.Build) > 0 {
		b.WriteByte('+')
		writeIDs(&b, v.Build)
	}
	return b.String()
}

func writeIDs(b *strings.Builder, ids []Identifier) {
	for i, id := range ids {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(id.String())
	}
}

// Parse strictly parses a semantic version: "v"? num "." num "." num
// ("-" prerel)? ("+" build)?. Numeric identifiers with two or more digits
// must not have a leading zero.
func Parse(s string) (Version, error) {
	return parseVersion(s, false)
}

// TryParse is the permissive counterpart used by range matching and
// selection: missing minor/patch default to 0, and non-digit runs
// immediately after a numeric run are tolerated where Parse would reject.
func TryParse(s string) (Version, error) {
	return parseVersion(s, true)
}

func parseVersion(s string, try bool) (Version, error) {
	orig := s
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "v")

	major, rest, err := scanNumComponent(s, try)
	if err != nil {
		return Version{}, parseErr(orig, "major", err)
	}
	minor, patch := 0, 0
	rest = rest
	if strings.HasPrefix(rest, ".") {
		minor, rest, err = scanNumComponent(rest[1:], try)
		if err != nil {
			return Version{}, parseErr(orig, "minor", err)
		}
		if strings.HasPrefix(rest, ".") {
			patch, rest, err = scanNumComponent(rest[1:], try)
			if err != nil {
				return Version{}, parseErr(orig, "patch", err)
			}
		} else if !try {
			return Version{}, parseErr(orig, "patch", fmt.Errorf("missing patch component"))
		}
	} else if !try {
		return Version{}, parseErr(orig, "minor", fmt.Errorf("missing minor component"))
	}

	var pre, build []Identifier
	if strings.HasPrefix(rest, "-") {
		var idStr string
		idStr, rest = splitIdents(rest[1:])
		pre, err = parseIdentifiers(idStr, true)
		if err != nil {
			return Version{}, parseErr(orig, "prerelease", err)
		}
	}
	if strings.HasPrefix(rest, "+") {
		var idStr string
		idStr, rest = splitIdents(rest[1:])
		build, err = parseIdentifiers(idStr, false)
		if err != nil {
			return Version{}, parseErr(orig, "build", err)
		}
	}
	if rest != "" && !try {
		return Version{}, parseErr(orig, "trailing", fmt.Errorf("unexpected trailing input %q", rest))
	}
	return Version{Major: major, Minor: minor, Patch: patch, Prerelease: pre, Build: build}, nil
}

// splitIdents consumes identifier characters (alnum, '.', '-') up to the
// next character that cannot belong to a prerelease/build tag.
func splitIdents(s string) (idents, rest string) {
	i := 0
	for i < len(s) && (isAlnum(s[i]) || s[i] == '.' || s[i] == '-') {
		i++
	}
	return s[:i], s[i:]
}

func parseIdentifiers(s string, numericRestricted bool) ([]Identifier, error) {
	if s == "" {
		return nil, fmt.Errorf("empty identifier list")
	}
	parts := strings.Split(s, ".")
	ids := make([]Identifier, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("empty identifier component")
		}
		if isAllDigits(p) {
			if numericRestricted && len(p) > 1 && p[0] == '0' {
				return nil, fmt.Errorf("numeric identifier %q has a leading zero", p)
			}
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, err
			}
			ids = append(ids, Identifier{Numeric: true, Num: n})
		} else {
			ids = append(ids, Identifier{Alphanum: p})
		}
	}
	return ids, nil
}

func scanNumComponent(s string, try bool) (int, string, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		if try {
			return 0, s, nil
		}
		return 0, s, fmt.Errorf("expected a numeric component")
	}
	digits := s[:i]
	if len(digits) > 1 && digits[0] == '0' && !try {
		return 0, s, fmt.Errorf("numeric component %q has a leading zero", digits)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, s, err
	}
	return n, s[i:], nil
}

func isAllDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func parseErr(input, where string, cause error) error {
	return fmt.Errorf("semver: parsing %q (%s): %w: %v", input, where, xerrors.ErrParse, cause)
}

// Compare returns -1, 0, or 1 following the total order in §4.8:
// major/minor/patch numerically, then a version with a prerelease sorts
// below one without, then prerelease identifiers pairwise. build is never
// compared.
func Compare(a, b Version) int {
	if d := cmpInt(a.Major, b.Major); d != 0 {
		return d
	}
	if d := cmpInt(a.Minor, b.Minor); d != 0 {
		return d
	}
	if d := cmpInt(a.Patch, b.Patch); d != 0 {
		return d
	}
	aPre, bPre := len(a.Prerelease) > 0, len(b.Prerelease) > 0
	if aPre && !bPre {
		return -1
	}
	if !aPre && bPre {
		return 1
	}
	if !aPre && !bPre {
		return 0
	}
	return cmpIdentLists(a.Prerelease, b.Prerelease)
}

func cmpIdentLists(a, b []Identifier) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if d := cmpIdent(a[i], b[i]); d != 0 {
			return d
		}
	}
	return cmpInt(len(a), len(b))
}

func cmpIdent(a, b Identifier) int {
	switch {
	case a.Numeric && b.Numeric:
		return cmpInt(a.Num, b.Num)
	case !a.Numeric && !b.Numeric:
		return strings.Compare(a.Alphanum, b.Alphanum)
	case a.Numeric && !b.Numeric:
		return -1
	default:
		return 1
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
