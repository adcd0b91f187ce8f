// Package version implements Spock's dotted version numbers: values produced
// by splitting a trimmed string on ".", compared part-by-part either
// numerically or lexicographically.
package version

import (
	"strconv"
	"strings"
)

// maxNumericPart is the largest value a version part may take to still be
// compared numerically. Anything larger is compared as a byte string, which
// keeps comparison total even for pathological inputs.
const maxNumericPart = 999999

// Version is a sequence of non-empty dotted parts. The zero value is the
// empty version (produced by parsing the empty string).
type Version struct {
	parts []string
}

// Parse splits s on "." after trimming surrounding whitespace. An empty
// string produces the empty Version.
func Parse(s string) Version {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}
	}
	return Version{parts: strings.Split(s, ".")}
}

// Parts returns the dotted parts of v. The returned slice must not be
// mutated by the caller.
func (v Version) Parts() []string {
	return v.parts
}

// Len returns the number of dotted parts.
func (v Version) Len() int {
	return len(v.parts)
}

// IsEmpty reports whether v was parsed from the empty string.
func (v Version) IsEmpty() bool {
	return len(v.parts) == 0
}

// String renders the canonical dotted form, or "none" for the empty version.
func (v Version) String() string {
	if v.IsEmpty() {
		return "none"
	}
	return strings.Join(v.parts, ".")
}

// asNumber returns the part's numeric value and true if it parses as a
// non-negative integer no greater than maxNumericPart.
func asNumber(part string) (int, bool) {
	if part == "" || len(part) > 6 {
		return 0, false
	}
	for _, r := range part {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(part)
	if err != nil || n > maxNumericPart {
		return 0, false
	}
	return n, true
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
// Parts are compared left to right: numerically when both parse as
// non-negative integers <= 999999, otherwise as byte strings. If all shared
// parts are equal, the shorter version is less.
func Compare(a, b Version) int {
	n := len(a.parts)
	if len(b.parts) < n {
		n = len(b.parts)
	}

	for i := 0; i < n; i++ {
		pa, pb := a.parts[i], b.parts[i]
		if na, oka := asNumber(pa); oka {
			if nb, okb := asNumber(pb); okb {
				if na != nb {
					if na < nb {
						return -1
					}
					return 1
				}
				continue
			}
		}
		if pa != pb {
			if pa < pb {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a.parts) < len(b.parts):
		return -1
	case len(a.parts) > len(b.parts):
		return 1
	default:
		return 0
	}
}

// Less reports whether a is strictly less than b.
func Less(a, b Version) bool {
	return Compare(a, b) < 0
}

// Equal reports whether a and b have the same length and equal parts.
func Equal(a, b Version) bool {
	if len(a.parts) != len(b.parts) {
		return false
	}
	for i := range a.parts {
		if a.parts[i] != b.parts[i] {
			return false
		}
	}
	return true
}

// IsPrefixOf reports whether a is a dotted prefix of b: len(a) <= len(b) and
// the first len(a) parts of b equal a's parts. This is the "-" operator
// from the package pattern grammar.
func (a Version) IsPrefixOf(b Version) bool {
	if len(a.parts) > len(b.parts) {
		return false
	}
	for i := range a.parts {
		if a.parts[i] != b.parts[i] {
			return false
		}
	}
	return true
}
