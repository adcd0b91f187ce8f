package spock

import (
	"os"
	"testing"

	"spock/pattern"
	"spock/version"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	root := t.TempDir()
	t.Setenv("SPOCK_ROOT", root)
	t.Setenv("SPOCK_VERSION", "")
	t.Setenv("SPOCK_EMPLOYED", "")
	ctx, err := NewContext(nil)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

func TestNewContextDefaults(t *testing.T) {
	ctx := newTestContext(t)
	if ctx.BinDir == "" || ctx.PkgDir == "" || ctx.OptDir == "" {
		t.Fatalf("expected directory defaults to be populated: %+v", ctx)
	}
	if got := ctx.Environment().Get("SPOCK_ROOT", ""); got != ctx.Root {
		t.Fatalf("SPOCK_ROOT not stamped into top environment: %q", got)
	}
}

func TestPushPopEnvironment(t *testing.T) {
	ctx := newTestContext(t)
	ctx.Environment().Set("FOO", "bar")

	ctx.PushEnvironment()
	if ctx.EnvironmentStackSize() != 2 {
		t.Fatalf("expected stack size 2, got %d", ctx.EnvironmentStackSize())
	}
	if got := ctx.Environment().Get("FOO", ""); got != "bar" {
		t.Fatalf("expected pushed frame to inherit FOO, got %q", got)
	}

	ctx.Environment().Set("FOO", "changed")
	ctx.PopEnvironment()
	if got := ctx.Environment().Get("FOO", ""); got != "bar" {
		t.Fatalf("expected pop to discard changes made in the child frame, got %q", got)
	}
}

func TestPopNeverEmptiesStack(t *testing.T) {
	ctx := newTestContext(t)
	for i := 0; i < 5; i++ {
		ctx.PopEnvironment()
	}
	if ctx.EnvironmentStackSize() != 1 {
		t.Fatalf("expected stack to never go below 1, got %d", ctx.EnvironmentStackSize())
	}
}

func TestSavedStackDispose(t *testing.T) {
	ctx := newTestContext(t)
	saved := ctx.Save()
	ctx.PushEnvironment()
	ctx.PushEnvironment()
	if ctx.EnvironmentStackSize() != 3 {
		t.Fatalf("expected depth 3, got %d", ctx.EnvironmentStackSize())
	}
	saved.Dispose()
	if ctx.EnvironmentStackSize() != 1 {
		t.Fatalf("expected Dispose to restore depth to 1, got %d", ctx.EnvironmentStackSize())
	}
}

func TestSavedStackForget(t *testing.T) {
	ctx := newTestContext(t)
	saved := ctx.Save()
	ctx.PushEnvironment()
	saved.Forget()
	saved.Dispose()
	if ctx.EnvironmentStackSize() != 2 {
		t.Fatalf("expected Forget to suppress the pop, got depth %d", ctx.EnvironmentStackSize())
	}
}

func TestInsertEmployed(t *testing.T) {
	ctx := newTestContext(t)
	env := NewEnvironment()
	env.Set("BOOST_ROOT", "/opt/spock/installed/deadbeef")
	pkg := &InstalledPackage{Name: "boost", Ver: version.Parse("1.62.0"), Hash: "deadbeef", Env: env}

	if err := ctx.InsertEmployed(pkg); err != nil {
		t.Fatalf("InsertEmployed: %v", err)
	}
	if len(ctx.Employed()) != 1 {
		t.Fatalf("expected one employed package, got %d", len(ctx.Employed()))
	}
	if got := ctx.Environment().Get("BOOST_ROOT", ""); got != "/opt/spock/installed/deadbeef" {
		t.Fatalf("expected package environment to be merged in, got %q", got)
	}
	if got := ctx.Environment().Get("SPOCK_EMPLOYED", ""); got != "deadbeef" {
		t.Fatalf("expected SPOCK_EMPLOYED to list the hash, got %q", got)
	}

	// idempotent: inserting the same package again is a no-op
	if err := ctx.InsertEmployed(pkg); err != nil {
		t.Fatalf("InsertEmployed (repeat): %v", err)
	}
	if len(ctx.Employed()) != 1 {
		t.Fatalf("expected InsertEmployed to be idempotent, got %d entries", len(ctx.Employed()))
	}
}

func TestRemoveInstalled(t *testing.T) {
	ctx := newTestContext(t)
	pkg := &InstalledPackage{Name: "boost", Ver: version.Parse("1.62.0"), Hash: "deadbeef"}

	if err := os.MkdirAll(ctx.InstalledPrefix(pkg.Hash), 0777); err != nil {
		t.Fatal(err)
	}
	manifestPath := ctx.InstalledConfig(pkg.Hash)
	if err := os.WriteFile(manifestPath, []byte("package: boost\nversion: \"1.62.0\"\n"), 0666); err != nil {
		t.Fatal(err)
	}
	ctx.Directory.Insert(pkg)

	if err := ctx.RemoveInstalled(pkg); err != nil {
		t.Fatalf("RemoveInstalled: %v", err)
	}
	if _, err := os.Stat(manifestPath); !os.IsNotExist(err) {
		t.Fatalf("expected manifest to be removed, stat error: %v", err)
	}
	if _, err := os.Stat(ctx.InstalledPrefix(pkg.Hash)); !os.IsNotExist(err) {
		t.Fatalf("expected installation prefix to be removed, stat error: %v", err)
	}
	if found := ctx.Directory.Find(pattern.MustParse("boost"), Any); len(found) != 0 {
		t.Fatalf("expected Directory to no longer contain the removed package, got %v", found)
	}
}

func TestRemoveInstalledMissingManifest(t *testing.T) {
	ctx := newTestContext(t)
	pkg := &InstalledPackage{Name: "boost", Ver: version.Parse("1.62.0"), Hash: "deadbeef"}
	ctx.Directory.Insert(pkg)

	if err := ctx.RemoveInstalled(pkg); err != nil {
		t.Fatalf("RemoveInstalled should tolerate an already-missing manifest: %v", err)
	}
}

func TestInstallParasiteUnsupported(t *testing.T) {
	ctx := newTestContext(t)
	defn := boostDefinition{}
	ghost := NewGhostPackage(defn, version.NewSet(version.Parse("1.62.0")))
	parasite := ghost.Parasites([]pattern.Pattern{pattern.MustParse("boost-python")}, nil)[0]

	if err := ctx.InstallParasite(parasite); err != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestInsertEmployedConflict(t *testing.T) {
	ctx := newTestContext(t)
	a := &InstalledPackage{Name: "boost", Ver: version.Parse("1.62.0"), Hash: "aaaaaaaa"}
	b := &InstalledPackage{Name: "boost", Ver: version.Parse("1.63.0"), Hash: "bbbbbbbb"}

	if err := ctx.InsertEmployed(a); err != nil {
		t.Fatalf("InsertEmployed(a): %v", err)
	}
	if err := ctx.InsertEmployed(b); err == nil {
		t.Fatal("expected a conflict when employing two packages with the same name but different hashes")
	}
}
