package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/appsworld/xbinutils/xerrors"
)

// Op is a comparator operator.
type Op int

const (
	OpEQ Op = iota
	OpLT
	OpLE
	OpGT
	OpGE
)

func (op Op) String() string {
	switch op {
	case OpEQ:
		return "="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	default:
		return "?"
	}
}

// Comparator is one (op, version) pair. A list of comparators is ANDed.
type Comparator struct {
	Op      Op
	Version Version
}

// Matches reports whether v satisfies this single comparator.
func (c Comparator) Matches(v Version) bool {
	cmp := Compare(v, c.Version)
	switch c.Op {
	case OpEQ:
		return cmp == 0
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	case OpGE:
		return cmp >= 0
	default:
		return false
	}
}

func (c Comparator) String() string {
	return c.Op.String() + c.Version.String()
}

// Range is an OR of AND-lists of comparators, the lowered form of a range
// expression per §4.8's shorthand table.
type Range struct {
	lists [][]Comparator
}

// String renders the lowered form, e.g. ">=1.2.0 <1.3.0 || >=5.0.0".
func (r Range) String() string {
	groups := make([]string, len(r.lists))
	for i, list := range r.lists {
		parts := make([]string, len(list))
		for j, c := range list {
			parts[j] = c.String()
		}
		groups[i] = strings.Join(parts, " ")
	}
	return strings.Join(groups, " || ")
}

// Matches reports whether v satisfies at least one AND-list.
func (r Range) Matches(v Version) bool {
	for _, list := range r.lists {
		ok := true
		for _, c := range list {
			if !c.Matches(v) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

var orSplit = regexp.MustCompile(`\s*\|\|\s*`)
var wsSplit = regexp.MustCompile(`\s+`)
var hyphenSplit = regexp.MustCompile(`^(\S+)\s+-\s+(\S+)$`)
var opPrefix = regexp.MustCompile(`^(>=|<=|>|<|=|~|\^)?(.*)$`)

// ParseRange parses a full range expression: comp_list ('||' comp_list)*.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	groups := orSplit.Split(s, -1)
	var r Range
	for _, g := range groups {
		list, err := parseCompList(g)
		if err != nil {
			return Range{}, fmt.Errorf("semver: range %q: %w: %v", s, xerrors.ErrParse, err)
		}
		r.lists = append(r.lists, list)
	}
	return r, nil
}

func parseCompList(g string) ([]Comparator, error) {
	g = strings.TrimSpace(g)
	if g == "" || g == "*" {
		return []Comparator{{Op: OpGE, Version: Version{}}}, nil
	}
	if m := hyphenSplit.FindStringSubmatch(g); m != nil {
		return parseHyphen(m[1], m[2])
	}
	tokens := wsSplit.Split(g, -1)
	var list []Comparator
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		cs, err := parseComparatorToken(tok)
		if err != nil {
			return nil, err
		}
		list = append(list, cs...)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("empty comparator list")
	}
	return list, nil
}

// parseComparatorToken parses one "op? partial" token and lowers shorthand
// (bare N/N.M, ~, ^) into one or two concrete comparators.
func parseComparatorToken(tok string) ([]Comparator, error) {
	m := opPrefix.FindStringSubmatch(tok)
	op, rest := m[1], m[2]

	p, err := parsePartial(rest)
	if err != nil {
		return nil, fmt.Errorf("comparator %q: %v", tok, err)
	}

	switch op {
	case ">":
		return []Comparator{{OpGT, p.floor()}}, nil
	case ">=":
		return []Comparator{{OpGE, p.floor()}}, nil
	case "<":
		return []Comparator{{OpLT, p.floor()}}, nil
	case "<=":
		if !p.hasPatch {
			return []Comparator{{OpLT, p.ceilInclusive()}}, nil
		}
		return []Comparator{{OpLE, p.ceilInclusive()}}, nil
	case "=", "":
		if p.wildcardAll() {
			return []Comparator{{Op: OpGE, Version: Version{}}}, nil
		}
		if p.hasMinor && p.hasPatch {
			return []Comparator{{OpEQ, p.floor()}}, nil
		}
		return p.starRange(), nil
	case "~":
		return p.tildeRange(), nil
	case "^":
		return p.caretRange(), nil
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}

func parseHyphen(aStr, bStr string) ([]Comparator, error) {
	a, err := parsePartial(aStr)
	if err != nil {
		return nil, fmt.Errorf("hyphen range lower %q: %v", aStr, err)
	}
	b, err := parsePartial(bStr)
	if err != nil {
		return nil, fmt.Errorf("hyphen range upper %q: %v", bStr, err)
	}
	lo := a.floor()
	var hi Comparator
	if b.hasMinor && b.hasPatch {
		hi = Comparator{OpLE, b.floor()}
	} else {
		hi = Comparator{OpLT, b.ceilForUpperBound()}
	}
	return []Comparator{{OpGE, lo}, hi}, nil
}

// partial is a partially-specified version: components may be omitted or
// wildcarded ('x'/'X'/'*'), per the `partial` production in §4.8.
type partial struct {
	major              int
	minor, patch       int
	hasMinor, hasPatch bool
	pre, build         []Identifier
	wasStar            bool
}

func (p partial) wildcardAll() bool {
	return p.wasStar
}

func parsePartial(s string) (partial, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" || s == "x" || s == "X" {
		return partial{wasStar: true}, nil
	}
	parts := strings.SplitN(s, "-", 2)
	versionPart := parts[0]
	var preBuild string
	if len(parts) == 2 {
		preBuild = "-" + parts[1]
	}
	comps := strings.Split(versionPart, ".")
	p := partial{}
	major, err := parseComp(comps[0])
	if err != nil {
		return partial{}, err
	}
	if major < 0 {
		return partial{wasStar: true}, nil
	}
	p.major = major
	if len(comps) > 1 {
		minor, err := parseComp(comps[1])
		if err != nil {
			return partial{}, err
		}
		if minor >= 0 {
			p.minor = minor
			p.hasMinor = true
		}
	}
	if len(comps) > 2 {
		patch, err := parseComp(comps[2])
		if err != nil {
			return partial{}, err
		}
		if patch >= 0 {
			p.patch = patch
			p.hasPatch = true
		}
	}
	if preBuild != "" {
		full, err := TryParse(fmt.Sprintf("%d.%d.%d%s", p.major, p.minor, p.patch, preBuild))
		if err != nil {
			return partial{}, err
		}
		p.pre = full.Prerelease
		p.build = full.Build
	}
	return p, nil
}

// parseComp parses one dotted component: a non-negative integer, or -1 for
// a wildcard ('x', 'X', '*').
func parseComp(s string) (int, error) {
	if s == "x" || s == "X" || s == "*" {
		return -1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad version component %q", s)
	}
	return n, nil
}

func (p partial) floor() Version {
	return Version{Major: p.major, Minor: p.minor, Patch: p.patch, Prerelease: p.pre, Build: p.build}
}

// ceilInclusive is used for a bare "<=N" or "<=N.M" comparator: when patch
// is unset, <=N.M means up to and including the highest N.M.x, which this
// engine expresses as the exclusive bound of the next minor/major.
func (p partial) ceilInclusive() Version {
	if p.hasPatch {
		return p.floor()
	}
	if p.hasMinor {
		return Version{Major: p.major, Minor: p.minor + 1, Patch: 0}
	}
	return Version{Major: p.major + 1, Minor: 0, Patch: 0}
}

func (p partial) ceilForUpperBound() Version {
	return p.ceilInclusive()
}

// starRange lowers a bare "N" or "N.M" comparator per §4.8: N -> >=N.0.0
// <N+1.0.0; N.M -> >=N.M.0 <N.M+1.0.
func (p partial) starRange() []Comparator {
	lo := Version{Major: p.major, Minor: p.minor, Patch: p.patch}
	var hi Version
	if p.hasMinor {
		hi = Version{Major: p.major, Minor: p.minor + 1}
	} else {
		hi = Version{Major: p.major + 1}
	}
	return []Comparator{{OpGE, lo}, {OpLT, hi}}
}

// tildeRange lowers ~N.M.P / ~N.M / ~N per §4.8.
func (p partial) tildeRange() []Comparator {
	lo := Version{Major: p.major, Minor: p.minor, Patch: p.patch}
	var hi Version
	if p.hasMinor {
		hi = Version{Major: p.major, Minor: p.minor + 1}
	} else {
		hi = Version{Major: p.major + 1}
	}
	return []Comparator{{OpGE, lo}, {OpLT, hi}}
}

// caretRange lowers ^0.0.P / ^0.M.P / ^N.M.P per §4.8.
func (p partial) caretRange() []Comparator {
	lo := Version{Major: p.major, Minor: p.minor, Patch: p.patch}
	var hi Version
	switch {
	case p.major == 0 && !p.hasMinor:
		hi = Version{Major: 1}
	case p.major == 0 && p.minor == 0 && p.hasPatch:
		hi = Version{Major: 0, Minor: 0, Patch: p.patch + 1}
	case p.major == 0:
		hi = Version{Major: 0, Minor: p.minor + 1}
	default:
		hi = Version{Major: p.major + 1}
	}
	return []Comparator{{OpGE, lo}, {OpLT, hi}}
}
