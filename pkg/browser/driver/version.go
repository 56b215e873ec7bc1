package driver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a dotted numeric version such as 126.0.6478.126.
type Version []int

var versionPattern = regexp.MustCompile(`\d+(?:\.\d+)+`)

// ParseVersion parses the first dotted version found in s, so the raw output
// of "chrome --version" or "chromedriver --version" can be passed directly.
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindString(s)
	if m == "" {
		return nil, fmt.Errorf("no version found in %q", strings.TrimSpace(s))
	}
	parts := strings.Split(m, ".")
	v := make(Version, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid version %q: %w", m, err)
		}
		v[i] = n
	}
	return v, nil
}

// Major returns the first component, or 0 for an empty version.
func (v Version) Major() int {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

// Compare returns -1, 0 or 1. Missing components count as zero.
func (v Version) Compare(o Version) int {
	for i := 0; i < len(v) || i < len(o); i++ {
		var a, b int
		if i < len(v) {
			a = v[i]
		}
		if i < len(o) {
			b = o[i]
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Candidate is a driver binary with its reported version.
type Candidate struct {
	Path    string
	Version Version
	Origin  Origin
}

// Match outcomes for a driver candidate against a browser version.
type matchKind int

const (
	matchNone matchKind = iota
	matchLower
	matchExact
)

// selectCandidate applies the version policy: exact major match first, then
// the nearest lower major. Drivers newer than the browser are never chosen.
// Within a major the highest version wins.
func selectCandidate(browserVersion Version, candidates []Candidate) (Candidate, matchKind) {
	var best Candidate
	kind := matchNone
	for _, c := range candidates {
		if len(c.Version) == 0 {
			continue
		}
		switch {
		case c.Version.Major() == browserVersion.Major():
			if kind != matchExact || c.Version.Compare(best.Version) > 0 {
				best, kind = c, matchExact
			}
		case c.Version.Major() < browserVersion.Major() && kind != matchExact:
			if kind == matchNone || c.Version.Compare(best.Version) > 0 {
				best, kind = c, matchLower
			}
		}
	}
	return best, kind
}
