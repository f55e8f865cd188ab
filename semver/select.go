package semver

import (
	"fmt"
	"sort"

	"github.com/appsworld/xbinutils/xerrors"
)

// Satisfies parses v and r and reports whether v satisfies r. It returns an
// error only when parsing fails; a clean parse that matches nothing
// returns (false, nil), not an error.
func Satisfies(v, rangeExpr string) (bool, error) {
	ver, err := Parse(v)
	if err != nil {
		return false, err
	}
	r, err := ParseRange(rangeExpr)
	if err != nil {
		return false, err
	}
	return r.Matches(ver), nil
}

// Selection is the result of Select: a chosen version-ish string and the
// candidate bucket it was drawn from ("versions", "tags", or "branches").
type Selection struct {
	Version string
	Source  string
}

// Select implements §4.8's selection algorithm: parse the range; try
// versions then tags, taking the greatest match in whichever bucket is
// non-empty; failing that, look for an exact textual match in branches; if
// the range itself failed to parse, only the branches pass is attempted.
func Select(rangeExpr string, versions, tags, branches []string) (Selection, error) {
	r, rangeErr := ParseRange(rangeExpr)

	if rangeErr == nil {
		if sel, ok := selectBucket(r, versions, "versions"); ok {
			return sel, nil
		}
		if sel, ok := selectBucket(r, tags, "tags"); ok {
			return sel, nil
		}
	}

	for _, b := range branches {
		if b == rangeExpr {
			return Selection{Version: b, Source: "branches"}, nil
		}
	}

	if rangeErr != nil {
		return Selection{}, fmt.Errorf("semver: select %q: %w: %v", rangeExpr, xerrors.ErrParse, rangeErr)
	}
	return Selection{}, fmt.Errorf("semver: select %q: %w: no candidate satisfies the range", rangeExpr, xerrors.ErrParse)
}

func selectBucket(r Range, candidates []string, source string) (Selection, bool) {
	type match struct {
		raw string
		ver Version
	}
	var matches []match
	for _, c := range candidates {
		v, err := TryParse(c)
		if err != nil {
			continue
		}
		if r.Matches(v) {
			matches = append(matches, match{raw: c, ver: v})
		}
	}
	if len(matches) == 0 {
		return Selection{}, false
	}
	sort.Slice(matches, func(i, j int) bool {
		return Compare(matches[i].ver, matches[j].ver) > 0
	})
	return Selection{Version: matches[0].raw, Source: source}, true
}
