package spock

import (
	"os"
	"path/filepath"
	"testing"

	"spock/pattern"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0666); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverInstalled(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SPOCK_ROOT", root)
	t.Setenv("SPOCK_VERSION", "")
	t.Setenv("SPOCK_EMPLOYED", "deadbeef")

	optDir := filepath.Join(root, "var", "installed", hostnameOrUnknown())
	writeFile(t, filepath.Join(optDir, "deadbeef.yaml"), `package: boost
version: "1.62.0"
timestamp: "2020-01-01T00:00:00Z"
environment:
  BOOST_ROOT: /opt/spock/installed/deadbeef
`)

	ctx, err := NewContext(nil)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if err := ctx.Discover(); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	found := ctx.Directory.Find(pattern.MustParse("boost"), Any)
	if len(found) != 1 || found[0].PackageHash() != "deadbeef" {
		t.Fatalf("expected to discover boost@deadbeef, got %v", found)
	}

	if len(ctx.Employed()) != 1 {
		t.Fatalf("expected SPOCK_EMPLOYED to resolve the discovered package, got %d", len(ctx.Employed()))
	}
	if got := ctx.Environment().Get("BOOST_ROOT", ""); got != "/opt/spock/installed/deadbeef" {
		t.Fatalf("expected employing the discovered package to merge its environment, got %q", got)
	}
}

func TestDiscoverGhostsGroupsByDependencyEquivalence(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SPOCK_ROOT", root)
	t.Setenv("SPOCK_VERSION", "")
	t.Setenv("SPOCK_EMPLOYED", "")

	pkgDir := filepath.Join(root, "lib", "packages")
	writeFile(t, filepath.Join(pkgDir, "boost.yaml"), `package: boost
aliases: [boost-lib]
versions:
  - version: "1.62.0"
    dependencies: ["gnu-c++11=6.3.0@deadbeef"]
  - version: "1.62.1"
    dependencies: ["gnu-c++11=6.3.0@deadbeef"]
  - version: "1.63.0"
    dependencies: ["gnu-c++11=7.1.0@cafebabe"]
parasites:
  - pattern: boost-python
    aliases: [boost-py]
`)

	ctx, err := NewContext(nil)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if err := ctx.Discover(); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	found := ctx.Directory.Find(pattern.MustParse("boost"), Any)
	if len(found) != 2 {
		t.Fatalf("expected 2 equivalence-class ghosts, got %d: %v", len(found), found)
	}

	parasite := ctx.Directory.Find(pattern.MustParse("boost-python"), Any)
	if len(parasite) != 1 {
		t.Fatalf("expected 1 parasite ghost, got %d", len(parasite))
	}
	if !parasite[0].(*GhostPackage).IsParasite() {
		t.Fatal("expected the discovered parasite to report IsParasite")
	}
}

