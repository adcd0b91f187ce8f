package spock

import (
	"sort"

	"spock/version"
)

// sortPackages orders pkgs by (installed desc, name asc, version desc,
// install-time desc, hash asc), the ordering used both by Directory.Find
// and within each PackageLists sublist.
func sortPackages(pkgs []Package) {
	sort.SliceStable(pkgs, func(i, j int) bool {
		a, b := pkgs[i], pkgs[j]
		if a.IsInstalled() != b.IsInstalled() {
			return a.IsInstalled() // installed before not-installed
		}
		if a.PrimaryName() != b.PrimaryName() {
			return a.PrimaryName() < b.PrimaryName()
		}
		if cmp := version.Compare(a.Version(), b.Version()); cmp != 0 {
			return cmp > 0 // descending version
		}
		if ai, ok := a.(*InstalledPackage); ok {
			bi := b.(*InstalledPackage)
			if ai.InstalledAt != bi.InstalledAt {
				return ai.InstalledAt > bi.InstalledAt // descending timestamp
			}
		}
		return a.PackageHash() < b.PackageHash()
	})
}

// PackageLists is a list of lists of candidate packages: each sublist
// corresponds to an open requirement, and a solution assigns one element
// from each list.
type PackageLists struct {
	lists [][]Package
}

// Size returns the number of sublists.
func (pl *PackageLists) Size() int { return len(pl.lists) }

// SizeOf returns the size of sublist i.
func (pl *PackageLists) SizeOf(i int) int { return len(pl.lists[i]) }

// At returns sublist i.
func (pl *PackageLists) At(i int) []Package { return pl.lists[i] }

// IsEmpty reports whether there are no sublists at all.
func (pl *PackageLists) IsEmpty() bool { return len(pl.lists) == 0 }

// IsAnyListEmpty reports whether any sublist (there is at least one) has
// zero candidates.
func (pl *PackageLists) IsAnyListEmpty() bool {
	for _, list := range pl.lists {
		if len(list) == 0 {
			return true
		}
	}
	return false
}

// Insert appends a sublist of candidates.
func (pl *PackageLists) Insert(list []Package) {
	pl.lists = append(pl.lists, list)
}

// InsertOne appends a singleton sublist.
func (pl *PackageLists) InsertOne(pkg Package) {
	pl.lists = append(pl.lists, []Package{pkg})
}

// ListExists reports whether a is already present: a sublist of the same
// length exists whose elements are pairwise Identical to a's, in order.
func (pl *PackageLists) ListExists(a []Package) bool {
	for _, b := range pl.lists {
		if len(a) != len(b) {
			continue
		}
		allSame := true
		for i := range a {
			if !Identical(a[i], b[i]) {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}

// Resize shrinks the list-of-lists to contain only the first n sublists. n
// must not exceed the current number of sublists.
func (pl *PackageLists) Resize(n int) {
	if n > len(pl.lists) {
		panic("PackageLists.Resize cannot grow the list-of-lists")
	}
	pl.lists = pl.lists[:n]
}

// SortPackages sorts each sublist in place by the Directory ordering.
func (pl *PackageLists) SortPackages() {
	for _, list := range pl.lists {
		sortPackages(list)
	}
}

// SortLists reorders the sublists ascending by size, so the search tree
// branches least at the top.
func (pl *PackageLists) SortLists() {
	sort.SliceStable(pl.lists, func(i, j int) bool {
		return len(pl.lists[i]) < len(pl.lists[j])
	})
}

// Sort performs SortPackages followed by SortLists.
func (pl *PackageLists) Sort() {
	pl.SortPackages()
	pl.SortLists()
}
