package spock

import (
	"fmt"

	"spock/pattern"
)

// Predicate filters candidate packages returned by Directory.Find.
type Predicate func(Package) bool

// Installed accepts only installed packages.
func Installed(p Package) bool { return p.IsInstalled() }

// NotInstalled accepts only ghost (not yet installed) packages.
func NotInstalled(p Package) bool { return !p.IsInstalled() }

// Any accepts every package.
func Any(Package) bool { return true }

// Directory is a process-lifetime store mapping hash to InstalledPackage
// (bijective on hashes) and name-or-alias to the list of packages known
// under that name. Packages are inserted once after discovery.
type Directory struct {
	byHash map[string]Package
	byName map[string][]Package
}

// NewDirectory returns an empty Directory ready to use.
func NewDirectory() *Directory {
	return &Directory{
		byHash: make(map[string]Package),
		byName: make(map[string][]Package),
	}
}

// Insert adds pkg to both indexes: by hash (if non-empty, installed
// packages only) and by name and every alias.
func (d *Directory) Insert(pkg Package) {
	if pkg.PrimaryName() == "" {
		panic("cannot insert a package with an empty name")
	}
	if pkg.PackageHash() != "" {
		d.byHash[pkg.PackageHash()] = pkg
	}
	d.byName[pkg.PrimaryName()] = append(d.byName[pkg.PrimaryName()], pkg)
	for _, alias := range pkg.Aliases() {
		d.byName[alias] = append(d.byName[alias], pkg)
	}
}

// InsertAll inserts every package in pkgs.
func (d *Directory) InsertAll(pkgs []Package) {
	for _, pkg := range pkgs {
		d.Insert(pkg)
	}
}

// Erase removes pkg from both indexes, matched by String() identity within
// the bucket of its name and of each of its aliases.
func (d *Directory) Erase(pkg Package) {
	if pkg.PackageHash() != "" {
		delete(d.byHash, pkg.PackageHash())
	}
	names := append([]string{pkg.PrimaryName()}, pkg.Aliases()...)
	for _, name := range names {
		bucket := d.byName[name]
		filtered := bucket[:0]
		for _, p := range bucket {
			if p.String() != pkg.String() {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			delete(d.byName, name)
		} else {
			d.byName[name] = filtered
		}
	}
}

// Find picks the narrowest index it can (hash lookup, else name lookup,
// else a full scan), filters by pattern.Matches and constraint, dedups by
// pointer identity, and sorts per the Directory ordering (installed desc,
// name asc, version desc, install-time desc, hash asc).
func (d *Directory) Find(pp pattern.Pattern, constraint Predicate) []Package {
	var found []Package

	switch {
	case pp.Hash != "":
		if pkg, ok := d.byHash[pp.Hash]; ok {
			if !pkg.IsInstalled() {
				panic(fmt.Sprintf("hash index contains non-installed package %q", pkg))
			}
			if pp.Matches(pkg) && constraint(pkg) {
				found = append(found, pkg)
			}
		}
	case pp.Name != "":
		for _, pkg := range d.byName[pp.Name] {
			if pp.Matches(pkg) && constraint(pkg) {
				found = append(found, pkg)
			}
		}
	default:
		for _, bucket := range d.byName {
			for _, pkg := range bucket {
				if pp.Matches(pkg) && constraint(pkg) {
					found = append(found, pkg)
				}
			}
		}
	}

	found = dedupByIdentity(found)
	sortPackages(found)
	return found
}

// dedupByIdentity removes duplicate entries referring to the same Package
// value (the same underlying pointer appears more than once, e.g. when a
// pattern happens to select a package by more than one alias bucket).
func dedupByIdentity(pkgs []Package) []Package {
	seen := make(map[Package]struct{}, len(pkgs))
	out := pkgs[:0]
	for _, pkg := range pkgs {
		if _, ok := seen[pkg]; ok {
			continue
		}
		seen[pkg] = struct{}{}
		out = append(out, pkg)
	}
	return out
}
