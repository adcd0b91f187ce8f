package spock

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"spock/internal/manifest"
	"spock/pattern"
	"spock/version"
)

// Discover populates c.Directory by scanning OptDir for installed-package
// manifests and PkgDir for package definitions, per spec.md §3's lifecycle
// rule ("Installed packages are discovered at Context construction by
// scanning the install directory; ghosts are discovered by scanning the
// definitions directory"). Unreadable or malformed entries are skipped with
// a logged warning rather than aborting the scan, matching spec.md §7's
// policy for optional filesystem scans. It then re-resolves SPOCK_EMPLOYED
// against the now-populated Directory, since NewContext could not look up
// hashes before any package existed to find.
func (c *Context) Discover() error {
	installed, err := discoverInstalled(c.OptDir, c.logger)
	if err != nil {
		return err
	}
	for _, pkg := range installed {
		c.Directory.Insert(pkg)
	}

	ghosts, err := discoverGhosts(c.PkgDir, c.logger)
	if err != nil {
		return err
	}
	for _, pkg := range ghosts {
		c.Directory.Insert(pkg)
	}

	if employed := c.Environment().Get("SPOCK_EMPLOYED", ""); employed != "" {
		for _, hash := range splitAny(employed, ":-, \t") {
			if hash == "" {
				continue
			}
			pkg, ok := c.Directory.byHash[hash]
			if !ok {
				c.logger.Printf("SPOCK_EMPLOYED names unknown hash %s, skipping", hash)
				continue
			}
			if ip, ok := pkg.(*InstalledPackage); ok {
				if err := c.InsertEmployed(ip); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// discoverInstalled reads every OPTDIR/<hash>.yaml manifest into an
// InstalledPackage. A missing OptDir is not an error: a fresh Spock root has
// nothing installed yet.
func discoverInstalled(optDir string, logger *log.Logger) ([]Package, error) {
	entries, err := os.ReadDir(optDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Package
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		hash := strings.TrimSuffix(entry.Name(), ".yaml")
		path := filepath.Join(optDir, entry.Name())

		m, err := manifest.Read(path)
		if err != nil {
			logger.Printf("skipping malformed manifest %s: %v", path, err)
			continue
		}

		pkg := &InstalledPackage{
			Name:        m.Package,
			AliasSet:    m.AliasList(),
			Hash:        hash,
			Ver:         version.Parse(m.Version),
			InstalledAt: m.Timestamp,
			Env:         environmentFromMap(m.Environment),
		}
		for _, dep := range m.Dependencies {
			p, err := pattern.Parse(dep)
			if err != nil {
				logger.Printf("skipping malformed dependency %q in %s: %v", dep, path, err)
				continue
			}
			pkg.Deps = append(pkg.Deps, p)
		}
		out = append(out, pkg)
	}
	return out, nil
}

// discoverGhosts reads every PKGDIR/<name>.yaml definition into one or more
// GhostPackages: spec.md §3 calls for "one per dependency-equivalence class
// of supported versions" so that a solver choosing among the versions of a
// single dependency-compatible run of releases doesn't fork the search
// needlessly, plus one ghost per declared parasite. A missing PkgDir is not
// an error.
func discoverGhosts(pkgDir string, logger *log.Logger) ([]Package, error) {
	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Package
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(pkgDir, entry.Name())

		d, err := manifest.ReadDefinition(path)
		if err != nil {
			logger.Printf("skipping malformed definition %s: %v", path, err)
			continue
		}

		fd := newFileDefinition(d)
		for _, ghost := range fd.equivalenceClasses() {
			out = append(out, ghost)
		}
		for _, parasite := range fd.parasites(d.Parasites) {
			out = append(out, parasite)
		}
	}
	return out, nil
}

// fileDefinition adapts a manifest.Definition (the on-disk PKGDIR shape) to
// the spock.Definition interface GhostPackage.DependencyPatterns needs.
type fileDefinition struct {
	name    string
	aliases []string
	groups  []definitionGroup
}

type definitionGroup struct {
	version version.Version
	deps    []pattern.Pattern
}

func newFileDefinition(d *manifest.Definition) *fileDefinition {
	fd := &fileDefinition{name: d.Package, aliases: d.AliasList()}
	for _, vg := range d.Versions {
		deps := make([]pattern.Pattern, 0, len(vg.Dependencies))
		for _, depStr := range vg.Dependencies {
			p, err := pattern.Parse(depStr)
			if err != nil {
				continue
			}
			deps = append(deps, p)
		}
		fd.groups = append(fd.groups, definitionGroup{version: version.Parse(vg.Version), deps: deps})
	}
	return fd
}

func (fd *fileDefinition) Name() string { return fd.name }

func (fd *fileDefinition) DependencyPatternsFor(v version.Version) []pattern.Pattern {
	for _, g := range fd.groups {
		if version.Equal(g.version, v) {
			return g.deps
		}
	}
	return nil
}

// depsKey builds a stable string key for a dependency pattern list so
// versions with identical dependency requirements can be grouped into one
// ghost.
func depsKey(deps []pattern.Pattern) string {
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = d.String()
	}
	return strings.Join(parts, "\x00")
}

// equivalenceClasses groups fd's versions by identical dependency pattern
// lists and returns one GhostPackage per group, each carrying fd's aliases.
func (fd *fileDefinition) equivalenceClasses() []*GhostPackage {
	type class struct {
		versions version.Set
	}
	classes := make(map[string]*class)
	var order []string

	for _, g := range fd.groups {
		key := depsKey(g.deps)
		cl, ok := classes[key]
		if !ok {
			cl = &class{}
			classes[key] = cl
			order = append(order, key)
		}
		cl.versions.Insert(g.version)
	}

	out := make([]*GhostPackage, 0, len(order))
	for _, key := range order {
		ghost := NewGhostPackage(fd, classes[key].versions)
		ghost.AliasSet = fd.aliases
		out = append(out, ghost)
	}
	return out
}

// parasites builds one GhostPackage per parasite declaration, restricted to
// the pattern's version if it names one, or fd's full version set otherwise.
func (fd *fileDefinition) parasites(decls []manifest.ParasiteDecl) []*GhostPackage {
	out := make([]*GhostPackage, 0, len(decls))
	for _, decl := range decls {
		pp, err := pattern.Parse(decl.Pattern)
		if err != nil {
			continue
		}

		var versions version.Set
		if !pp.Version.IsEmpty() {
			for _, g := range fd.groups {
				if pp.MatchesVersion(g.version) {
					versions.Insert(g.version)
				}
			}
		} else {
			for _, g := range fd.groups {
				versions.Insert(g.version)
			}
		}
		if versions.IsEmpty() {
			continue
		}

		name := pp.Name
		if name == "" {
			name = fd.name
		}
		out = append(out, &GhostPackage{Defn: fd, Versions: versions, Name: name, AliasSet: decl.AliasList()})
	}
	return out
}

func environmentFromMap(vars map[string]string) *Environment {
	if len(vars) == 0 {
		return nil
	}
	// map iteration order is random, so sort keys for deterministic
	// Environment insertion order across runs.
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := NewEnvironment()
	for _, k := range keys {
		env.Set(k, vars[k])
	}
	return env
}
