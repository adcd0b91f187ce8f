package version

import "sort"

// Set is an ordered set of Versions, kept sorted ascending by Compare.
// The zero value is an empty set ready to use.
type Set struct {
	versions []Version
}

// NewSet builds a Set from the given versions, deduplicating equal values.
func NewSet(vs ...Version) Set {
	var s Set
	for _, v := range vs {
		s.Insert(v)
	}
	return s
}

// Size returns the number of distinct versions in the set.
func (s *Set) Size() int {
	return len(s.versions)
}

// IsEmpty reports whether the set has no members.
func (s *Set) IsEmpty() bool {
	return len(s.versions) == 0
}

// search returns the insertion index for v and whether v is already present.
func (s *Set) search(v Version) (int, bool) {
	i := sort.Search(len(s.versions), func(i int) bool {
		return !Less(s.versions[i], v)
	})
	if i < len(s.versions) && Equal(s.versions[i], v) {
		return i, true
	}
	return i, false
}

// Insert adds v to the set if not already present.
func (s *Set) Insert(v Version) {
	i, found := s.search(v)
	if found {
		return
	}
	s.versions = append(s.versions, Version{})
	copy(s.versions[i+1:], s.versions[i:])
	s.versions[i] = v
}

// Contains reports whether v is a member of the set.
func (s *Set) Contains(v Version) bool {
	_, found := s.search(v)
	return found
}

// Greatest returns the largest version in the set. Calling it on an empty
// set returns the zero Version.
func (s *Set) Greatest() Version {
	if len(s.versions) == 0 {
		return Version{}
	}
	return s.versions[len(s.versions)-1]
}

// Values returns the members of the set in ascending order. The returned
// slice must not be mutated.
func (s *Set) Values() []Version {
	return s.versions
}

// Intersect returns the set of versions present in both a and b.
func Intersect(a, b Set) Set {
	var out Set
	for _, v := range a.versions {
		if b.Contains(v) {
			out.Insert(v)
		}
	}
	return out
}

// SetEqual reports whether a and b contain exactly the same versions.
func SetEqual(a, b Set) bool {
	if len(a.versions) != len(b.versions) {
		return false
	}
	for i := range a.versions {
		if !Equal(a.versions[i], b.versions[i]) {
			return false
		}
	}
	return true
}
