package spock

import (
	"testing"

	"spock/pattern"
	"spock/version"
)

func TestDirectoryFindByHash(t *testing.T) {
	d := NewDirectory()
	boost := &InstalledPackage{Name: "boost", Ver: version.Parse("1.62.0"), Hash: "deadbeef"}
	d.Insert(boost)

	found := d.Find(pattern.MustParse("@deadbeef"), Any)
	if len(found) != 1 || found[0] != Package(boost) {
		t.Fatalf("expected to find boost by hash, got %v", found)
	}

	if found := d.Find(pattern.MustParse("@cafebabe"), Any); len(found) != 0 {
		t.Fatalf("expected no match for unknown hash, got %v", found)
	}
}

func TestDirectoryFindByName(t *testing.T) {
	d := NewDirectory()
	boost := &InstalledPackage{Name: "boost", AliasSet: []string{"boost-lib"}, Ver: version.Parse("1.62.0"), Hash: "deadbeef"}
	d.Insert(boost)

	if found := d.Find(pattern.MustParse("boost"), Any); len(found) != 1 {
		t.Fatalf("expected to find boost by name, got %v", found)
	}
	if found := d.Find(pattern.MustParse("boost-lib"), Any); len(found) != 1 {
		t.Fatalf("expected to find boost by alias, got %v", found)
	}
}

func TestDirectoryFindPredicate(t *testing.T) {
	d := NewDirectory()
	d.Insert(&InstalledPackage{Name: "boost", Ver: version.Parse("1.62.0"), Hash: "deadbeef"})

	if found := d.Find(pattern.MustParse("boost"), NotInstalled); len(found) != 0 {
		t.Fatalf("expected NotInstalled to exclude installed packages, got %v", found)
	}
	if found := d.Find(pattern.MustParse("boost"), Installed); len(found) != 1 {
		t.Fatalf("expected Installed to accept installed packages, got %v", found)
	}
}

func TestDirectoryFindSortOrder(t *testing.T) {
	d := NewDirectory()
	old := &InstalledPackage{Name: "boost", Ver: version.Parse("1.62.0"), Hash: "aaaaaaaa", InstalledAt: "2020-01-01"}
	newer := &InstalledPackage{Name: "boost", Ver: version.Parse("1.63.0"), Hash: "bbbbbbbb", InstalledAt: "2020-02-01"}
	d.Insert(old)
	d.Insert(newer)

	found := d.Find(pattern.MustParse("boost"), Any)
	if len(found) != 2 || found[0] != Package(newer) {
		t.Fatalf("expected descending version order, got %v", found)
	}
}

func TestDirectoryEraseFull(t *testing.T) {
	d := NewDirectory()
	boost := &InstalledPackage{Name: "boost", Ver: version.Parse("1.62.0"), Hash: "deadbeef"}
	d.Insert(boost)
	d.Erase(boost)

	if found := d.Find(pattern.MustParse("boost"), Any); len(found) != 0 {
		t.Fatalf("expected package to be gone after Erase, got %v", found)
	}
	if found := d.Find(pattern.MustParse("@deadbeef"), Any); len(found) != 0 {
		t.Fatalf("expected hash index cleared after Erase, got %v", found)
	}
}
