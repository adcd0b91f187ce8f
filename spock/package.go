// Package spock implements the core of the per-user package manager: the
// package model, the installed-package directory, the stacked environment
// and process-launch context, the dependency lattice, and the backtracking
// constraint solver.
package spock

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"spock/pattern"
	"spock/version"
)

// ErrUnsupported is returned by operations spec.md names but leaves to an
// external component not modeled here (the download/build/install shell
// runner, and the parasite-install hook it alone can drive).
var ErrUnsupported = errors.New("spock: not implemented")

// Package is the common, read-only surface shared by InstalledPackage and
// GhostPackage. Either variant may be stored in a Directory or referenced
// from a PackagePattern.
type Package interface {
	// PrimaryName returns the package's defining name.
	PrimaryName() string
	// Aliases returns the package's alternate names.
	Aliases() []string
	// HasName reports whether name equals the primary name or an alias.
	HasName(name string) bool
	// PackageHash returns the 8-hex-digit install hash, or "" for a ghost.
	PackageHash() string
	// Version returns the primary version: the package's sole version if
	// installed, or the greatest of its VersionSet if a ghost.
	Version() version.Version
	// AllVersions returns every version the package may represent: one
	// for an installed package, possibly many for a ghost.
	AllVersions() []version.Version
	// SingleVersion is Version under another name, satisfying
	// pattern.matchable.
	SingleVersion() version.Version
	// DependencyPatterns returns the patterns this package's dependencies
	// must satisfy.
	DependencyPatterns() []pattern.Pattern
	// IsInstalled reports whether this is an InstalledPackage.
	IsInstalled() bool
	// String renders NAME[=VER][@HASH], using a longest-common-prefix "*"
	// form for a multi-version ghost.
	String() string
	// StringColored is String with ANSI color codes around the version
	// and hash segments when useColor is true.
	StringColored(useColor bool) string
}

// namesOf returns {p.PrimaryName()} ∪ p.Aliases() as a set.
func namesOf(p Package) map[string]struct{} {
	set := map[string]struct{}{p.PrimaryName(): {}}
	for _, a := range p.Aliases() {
		set[a] = struct{}{}
	}
	return set
}

// NamesInCommon returns the intersection of {name} ∪ aliases between a and b.
func NamesInCommon(a, b Package) []string {
	an := namesOf(a)
	bn := namesOf(b)
	var common []string
	for n := range an {
		if _, ok := bn[n]; ok {
			common = append(common, n)
		}
	}
	sort.Strings(common)
	return common
}

// Excludes reports whether a and b cannot coexist: different primary names
// with overlapping aliases; the same name with both installed but different
// hashes; or the same name with neither installed and disjoint version sets.
func Excludes(a, b Package) bool {
	if a.PrimaryName() != b.PrimaryName() {
		return len(NamesInCommon(a, b)) > 0
	}
	if a.IsInstalled() && b.IsInstalled() {
		return a.PackageHash() != b.PackageHash()
	}
	if !a.IsInstalled() && !b.IsInstalled() {
		as := versionSetOf(a)
		bs := versionSetOf(b)
		return version.Intersect(as, bs).IsEmpty()
	}
	return false
}

// Identical reports whether a and b denote the same package: the same
// object, non-empty equal hashes, or the same name with equal version sets.
func Identical(a, b Package) bool {
	if a == b {
		return true
	}
	if a.PackageHash() != "" && a.PackageHash() == b.PackageHash() {
		return true
	}
	if a.PrimaryName() == b.PrimaryName() {
		return version.SetEqual(versionSetOf(a), versionSetOf(b))
	}
	return false
}

func versionSetOf(p Package) version.Set {
	return version.NewSet(p.AllVersions()...)
}

func formatName(p Package) string {
	s := p.PrimaryName()
	if s == "" {
		s = "empty"
	}
	return s
}

// renderVersioned builds the common NAME[=VER][@HASH] / colored rendering
// logic shared by InstalledPackage.String and GhostPackage.String.
func renderVersioned(name, versionPart, hash string, useColor bool) string {
	s := name
	if versionPart != "" {
		if useColor {
			s += "\033[36m=" + versionPart + "\033[0m"
		} else {
			s += "=" + versionPart
		}
	}
	if hash != "" {
		if useColor {
			s += "\033[33m@" + hash + "\033[0m"
		} else {
			s += "@" + hash
		}
	}
	if s == "" {
		s = "empty"
	}
	return s
}

// --- InstalledPackage ---

// InstalledPackage is a package with a concrete install hash, a single
// version, an on-disk environment, and install bookkeeping timestamps.
type InstalledPackage struct {
	Name         string
	AliasSet     []string
	Hash         string
	Ver          version.Version
	Deps         []pattern.Pattern
	Env          *Environment
	InstalledAt  string
	LastUsedAt   string
}

var _ Package = (*InstalledPackage)(nil)

func (p *InstalledPackage) PrimaryName() string { return p.Name }
func (p *InstalledPackage) Aliases() []string   { return p.AliasSet }

func (p *InstalledPackage) HasName(name string) bool {
	if name == p.Name {
		return true
	}
	for _, a := range p.AliasSet {
		if a == name {
			return true
		}
	}
	return false
}

func (p *InstalledPackage) PackageHash() string             { return p.Hash }
func (p *InstalledPackage) Version() version.Version         { return p.Ver }
func (p *InstalledPackage) SingleVersion() version.Version   { return p.Ver }
func (p *InstalledPackage) AllVersions() []version.Version   { return []version.Version{p.Ver} }
func (p *InstalledPackage) DependencyPatterns() []pattern.Pattern { return p.Deps }
func (p *InstalledPackage) IsInstalled() bool                { return true }

func (p *InstalledPackage) String() string {
	return renderVersioned(formatName(p), versionPartOrEmpty(p.Ver), p.Hash, false)
}

func (p *InstalledPackage) StringColored(useColor bool) string {
	return renderVersioned(formatName(p), versionPartOrEmpty(p.Ver), p.Hash, useColor)
}

func versionPartOrEmpty(v version.Version) string {
	if v.IsEmpty() {
		return ""
	}
	return v.String()
}

// FullName returns the fully qualified NAME=VER@HASH string. It panics if
// any of name, version, or hash is absent, matching InstalledPackage's
// assertive C++ contract; use this only once a package is known-complete.
func (p *InstalledPackage) FullName() string {
	if p.Name == "" || p.Ver.IsEmpty() || p.Hash == "" {
		panic(fmt.Sprintf("FullName called on incomplete package %+v", p))
	}
	return p.Name + "=" + p.Ver.String() + "@" + p.Hash
}

// --- GhostPackage ---

// Definition is the minimal surface of a package definition a GhostPackage
// needs: its own name (possibly distinct, for parasites) and the dependency
// patterns it declares for a concrete version.
type Definition interface {
	Name() string
	DependencyPatternsFor(v version.Version) []pattern.Pattern
}

// GhostPackage is a candidate package generated from a Definition: it has
// no hash, a non-empty VersionSet, and (if it is a parasite) a name
// distinct from its definition's.
type GhostPackage struct {
	Defn     Definition
	Versions version.Set
	Name     string
	AliasSet []string
}

var _ Package = (*GhostPackage)(nil)

// NewGhostPackage builds a ghost over defn restricted to versions, naming it
// after the definition.
func NewGhostPackage(defn Definition, versions version.Set) *GhostPackage {
	if versions.IsEmpty() {
		panic("GhostPackage requires a non-empty version set")
	}
	return &GhostPackage{Defn: defn, Versions: versions, Name: defn.Name()}
}

// Restrict builds a new ghost over the same definition and name/aliases,
// narrowed to newVersions. Used by the solver when tightening a constraint.
func (g *GhostPackage) Restrict(newVersions version.Set) *GhostPackage {
	if newVersions.IsEmpty() {
		panic("GhostPackage.Restrict requires a non-empty version set")
	}
	return &GhostPackage{Defn: g.Defn, Versions: newVersions, Name: g.Name, AliasSet: g.AliasSet}
}

func (g *GhostPackage) PrimaryName() string { return g.Name }
func (g *GhostPackage) Aliases() []string   { return g.AliasSet }

func (g *GhostPackage) HasName(name string) bool {
	if name == g.Name {
		return true
	}
	for _, a := range g.AliasSet {
		if a == name {
			return true
		}
	}
	return false
}

func (g *GhostPackage) PackageHash() string           { return "" }
func (g *GhostPackage) Version() version.Version      { return g.Versions.Greatest() }
func (g *GhostPackage) SingleVersion() version.Version { return g.Version() }
func (g *GhostPackage) AllVersions() []version.Version { return g.Versions.Values() }
func (g *GhostPackage) IsInstalled() bool              { return false }

// IsParasite reports whether this ghost's name differs from its definition's.
func (g *GhostPackage) IsParasite() bool {
	return g.Name != g.Defn.Name()
}

// DependencyPatterns returns the host-at-version-prefix pattern for a
// parasite, or the definition's real dependency patterns otherwise.
func (g *GhostPackage) DependencyPatterns() []pattern.Pattern {
	if g.IsParasite() {
		return []pattern.Pattern{
			{Name: g.Defn.Name(), Op: pattern.OpHY, Version: g.VersionPrefix()},
		}
	}
	return g.Defn.DependencyPatternsFor(g.Version())
}

// VersionPrefix computes the part-wise longest common prefix across the
// ghost's VersionSet: a part survives only while every version agrees on
// it, in order, from the first part.
func (g *GhostPackage) VersionPrefix() version.Version {
	values := g.Versions.Values()
	if len(values) == 0 {
		return version.Version{}
	}

	minLen := values[0].Len()
	for _, v := range values {
		if v.Len() < minLen {
			minLen = v.Len()
		}
	}

	parts := make([]string, minLen)
	set := make([]bool, minLen)
	for _, v := range values {
		vp := v.Parts()
		for i := 0; i < minLen; i++ {
			if i >= len(vp) {
				continue
			}
			if !set[i] {
				parts[i] = vp[i]
				set[i] = true
			} else if parts[i] != "*" && parts[i] != vp[i] {
				parts[i] = "*"
			}
		}
	}

	n := len(parts)
	for i, p := range parts {
		if p == "*" {
			n = i
			break
		}
	}
	return version.Parse(strings.Join(parts[:n], "."))
}

func (g *GhostPackage) String() string {
	return g.render(false)
}

func (g *GhostPackage) StringColored(useColor bool) string {
	return g.render(useColor)
}

func (g *GhostPackage) render(useColor bool) string {
	versionPart := ""
	if len(g.Versions.Values()) > 1 {
		prefix := g.VersionPrefix()
		if prefix.IsEmpty() {
			versionPart = "*"
		} else {
			versionPart = prefix.String() + ".*"
		}
	} else {
		versionPart = g.Version().String()
	}
	return renderVersioned(formatName(g), versionPart, "", useColor)
}

// Parasites returns one new ghost per parasite pattern declared by the
// definition for this ghost's versions, each carrying its own primary name
// and aliases while still referencing the host definition.
func (g *GhostPackage) Parasites(patterns []pattern.Pattern, aliasesByPattern [][]string) []*GhostPackage {
	retval := make([]*GhostPackage, 0, len(patterns))
	for i, p := range patterns {
		var versions version.Set
		if p.Version.IsEmpty() {
			versions = g.Versions
		} else {
			versions = version.NewSet(p.Version)
		}
		parasite := &GhostPackage{Defn: g.Defn, Versions: versions, Name: p.Name}
		if i < len(aliasesByPattern) {
			parasite.AliasSet = aliasesByPattern[i]
		}
		retval = append(retval, parasite)
	}
	return retval
}
