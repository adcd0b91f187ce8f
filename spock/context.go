package spock

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"spock/internal/toolversion"
)

// ExitStatus is the outcome of a Subshell call.
type ExitStatus int

const (
	// SUCCESS means the child process exited with status 0.
	SUCCESS ExitStatus = iota
	// FAILED means the child process ran and exited non-zero.
	FAILED
	// NOT_RUN means the child never executed (exec itself failed); the
	// implementation reserves execFailedExitCode for this pre-exec path.
	NOT_RUN
)

func (s ExitStatus) String() string {
	switch s {
	case SUCCESS:
		return "SUCCESS"
	case FAILED:
		return "FAILED"
	case NOT_RUN:
		return "NOT_RUN"
	default:
		return "UNKNOWN"
	}
}

// execFailedExitCode is the sentinel exit status a forked child uses to
// signal "exec itself failed", distinguishing it from the command's own
// non-zero exit. 121 matches the reference implementation.
const execFailedExitCode = 121

// EnvStackItem is one level of the Context's environment stack: the
// variables in effect at that level, plus the ordered list of packages
// employed at or below that level.
type EnvStackItem struct {
	Vars     *Environment
	Employed []*InstalledPackage
}

func (item *EnvStackItem) clone() *EnvStackItem {
	employed := make([]*InstalledPackage, len(item.Employed))
	copy(employed, item.Employed)
	return &EnvStackItem{Vars: item.Vars.Clone(), Employed: employed}
}

// SubshellSettings carries the options passed to Context.Subshell.
type SubshellSettings struct {
	// Output, if non-empty, is a path the child's stdout and stderr are
	// redirected to (append mode, created if missing). If empty, the
	// parent waits synchronously and inherits stdio.
	Output string
}

// Context owns the Directory, the non-empty environment stack, and
// launches child processes against the top of that stack.
type Context struct {
	Directory *Directory
	stack     []*EnvStackItem
	logger    *log.Logger

	Root      string
	BinDir    string
	VarDir    string
	PkgDir    string
	OptDir    string
	ScriptsDir string
	DownloadsDir string
	BuildDir  string
	Hostname  string
}

// NewContext builds a Context from the process environment, per spec.md
// §6: each SPOCK_* variable is read if present, defaulted from root
// otherwise, and the resolved value is stamped back into the top-level
// environment. logger may be nil, in which case diagnostics are discarded.
func NewContext(logger *log.Logger) (*Context, error) {
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}

	if err := toolversion.Check(os.Getenv("SPOCK_VERSION")); err != nil {
		return nil, err
	}

	ctx := &Context{
		Directory: NewDirectory(),
		logger:    logger,
	}

	home, _ := os.UserHomeDir()
	ctx.Root = envOrDefault("SPOCK_ROOT", filepath.Join(home, ".spock"))
	ctx.BinDir = envOrDefault("SPOCK_BINDIR", filepath.Join(ctx.Root, "bin"))
	ctx.ScriptsDir = envOrDefault("SPOCK_SCRIPTS", filepath.Join(ctx.Root, "scripts"))
	ctx.PkgDir = envOrDefault("SPOCK_PKGDIR", filepath.Join(ctx.Root, "lib", "packages"))
	ctx.VarDir = envOrDefault("SPOCK_VARDIR", filepath.Join(ctx.Root, "var"))
	ctx.Hostname = envOrDefault("SPOCK_HOSTNAME", hostnameOrUnknown())
	ctx.OptDir = envOrDefault("SPOCK_OPTDIR", filepath.Join(ctx.VarDir, "installed", ctx.Hostname))
	ctx.BuildDir = envOrDefault("SPOCK_BLDDIR", os.TempDir())

	top := &EnvStackItem{Vars: NewEnvironment()}
	top.Vars.Set("SPOCK_VERSION", toolversion.Running)
	top.Vars.Set("SPOCK_ROOT", ctx.Root)
	top.Vars.Set("SPOCK_BINDIR", ctx.BinDir)
	top.Vars.Set("SPOCK_SCRIPTS", ctx.ScriptsDir)
	top.Vars.Set("SPOCK_PKGDIR", ctx.PkgDir)
	top.Vars.Set("SPOCK_VARDIR", ctx.VarDir)
	top.Vars.Set("SPOCK_HOSTNAME", ctx.Hostname)
	top.Vars.Set("SPOCK_OPTDIR", ctx.OptDir)
	top.Vars.Set("SPOCK_BLDDIR", ctx.BuildDir)
	ctx.stack = []*EnvStackItem{top}

	if employed := os.Getenv("SPOCK_EMPLOYED"); employed != "" {
		top.Vars.Set("SPOCK_EMPLOYED", employed)
	}

	// SPOCK_EMPLOYED names packages by hash, which nothing in the Directory
	// can satisfy until Discover populates it from disk; resolving the
	// named hashes into ctx.Employed() happens at the end of Discover.
	return ctx, nil
}

func envOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func hostnameOrUnknown() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

// splitAny splits s on any of the separator runes, matching the reference
// implementation's wider accepted separator set for SPOCK_EMPLOYED reads.
func splitAny(s, seps string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(seps, r)
	})
}

// InstalledConfig returns the path to the manifest for hash, whether or not
// it exists yet.
func (c *Context) InstalledConfig(hash string) string {
	return filepath.Join(c.OptDir, hash+".yaml")
}

// InstallParasite installs parasite as a side effect of having just
// installed its host, per spec.md §3's "installed as a side-effect of
// installing the host" rule. The reference implementation never finished
// this (its GhostPackage::install asserts not-implemented); until the
// external build-script runner is wired, this always reports ErrUnsupported.
func (c *Context) InstallParasite(parasite *GhostPackage) error {
	return ErrUnsupported
}

// InstalledPrefix returns the installation payload directory for hash.
func (c *Context) InstalledPrefix(hash string) string {
	return filepath.Join(c.OptDir, hash)
}

// RemoveInstalled deletes pkg's manifest and then its installation prefix,
// in that order: per spec.md §4.3/§5, an interrupted remove must leave the
// package either fully present or fully gone from the next Directory that
// reloads, never half-registered with no payload. It then erases pkg from
// c.Directory so the in-memory view agrees immediately.
func (c *Context) RemoveInstalled(pkg *InstalledPackage) error {
	manifestPath := c.InstalledConfig(pkg.Hash)
	if err := os.Remove(manifestPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing manifest %s: %w", manifestPath, err)
	}
	prefix := c.InstalledPrefix(pkg.Hash)
	if err := os.RemoveAll(prefix); err != nil {
		return fmt.Errorf("removing installation prefix %s: %w", prefix, err)
	}
	c.Directory.Erase(pkg)
	return nil
}

// top returns the current stack frame.
func (c *Context) top() *EnvStackItem {
	return c.stack[len(c.stack)-1]
}

// EnvironmentStackSize returns the current stack depth.
func (c *Context) EnvironmentStackSize() int {
	return len(c.stack)
}

// Environment returns the vars of the top stack frame.
func (c *Context) Environment() *Environment {
	return c.top().Vars
}

// Employed returns the employed-package list of the top stack frame.
func (c *Context) Employed() []*InstalledPackage {
	return c.top().Employed
}

// PushEnvironment clones the top item (vars + employed) and pushes the
// clone, so subsequent changes are scoped to the new level.
func (c *Context) PushEnvironment() {
	c.stack = append(c.stack, c.top().clone())
}

// PopEnvironment drops the top stack item. The stack is never emptied: a
// pop at depth 1 is a no-op.
func (c *Context) PopEnvironment() {
	if len(c.stack) > 1 {
		c.stack = c.stack[:len(c.stack)-1]
	}
}

// SavedStack is a scope guard that records a baseline stack depth and, on
// Dispose, pops back to that depth unless Forget was called.
type SavedStack struct {
	ctx       *Context
	depth     int
	forgotten bool
}

// Save records the Context's current environment stack depth.
func (c *Context) Save() *SavedStack {
	return &SavedStack{ctx: c, depth: c.EnvironmentStackSize()}
}

// Forget disables Dispose's automatic pop for this guard.
func (s *SavedStack) Forget() {
	s.forgotten = true
}

// Dispose pops the context's stack back to the recorded depth, unless
// Forget was called.
func (s *SavedStack) Dispose() {
	if s.forgotten {
		return
	}
	for s.ctx.EnvironmentStackSize() > s.depth {
		s.ctx.PopEnvironment()
	}
}

// InsertEmployed requires pkg to be installed; it is a no-op if a package
// with the same String() is already employed at the top level, and it
// returns an error if a package with the same name but a different hash is
// already employed there. Otherwise it
// prepends pkg's Environment into vars (prepend-unique per variable),
// appends pkg to the employed list, and appends pkg's hash to
// SPOCK_EMPLOYED.
func (c *Context) InsertEmployed(pkg *InstalledPackage) error {
	top := c.top()
	for _, already := range top.Employed {
		if already.String() == pkg.String() {
			return nil
		}
		if already.Name == pkg.Name && already.Hash != pkg.Hash {
			return fmt.Errorf("cannot use %s since %s is already employed", pkg.FullName(), already.FullName())
		}
	}

	if pkg.Env != nil {
		top.Vars.PrependUniqueEnv(pkg.Env)
	}
	top.Employed = append(top.Employed, pkg)

	hashes := make([]string, len(top.Employed))
	for i, p := range top.Employed {
		hashes[i] = p.Hash
	}
	top.Vars.Set("SPOCK_EMPLOYED", strings.Join(hashes, ":"))
	return nil
}

// Subshell runs argv in a forked child whose environment is the top
// Environment (the process environment is cleared and replaced first). An
// empty argv runs an interactive shell from $SHELL (default /bin/bash). If
// settings.Output is set, stdout/stderr are redirected there (append,
// created if missing) and the parent ticks a one-second progress
// indicator; otherwise it waits synchronously.
func (c *Context) Subshell(argv []string, settings SubshellSettings) (ExitStatus, error) {
	shell := envOrDefault("SHELL", "/bin/bash")

	var cmd *exec.Cmd
	if len(argv) == 0 {
		cmd = exec.Command(shell)
	} else {
		cmd = exec.Command(argv[0], argv[1:]...)
	}

	cmd.Env = environAsSlice(c.Environment())

	if settings.Output != "" {
		f, err := os.OpenFile(settings.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return NOT_RUN, fmt.Errorf("opening subshell output %s: %w", settings.Output, err)
		}
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	} else {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return NOT_RUN, fmt.Errorf("exec failed for %s: %w", cmd.Args[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if settings.Output == "" {
		err := <-done
		return waitResult(cmd, err)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return waitResult(cmd, err)
		case <-ticker.C:
			c.logger.Printf("still running %s...", strings.Join(argv, " "))
		}
	}
}

func waitResult(cmd *exec.Cmd, waitErr error) (ExitStatus, error) {
	if waitErr == nil {
		return SUCCESS, nil
	}
	if cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == execFailedExitCode {
		return NOT_RUN, waitErr
	}
	return FAILED, nil
}

func environAsSlice(e *Environment) []string {
	out := make([]string, 0, len(e.Names()))
	for _, name := range e.Names() {
		if v := e.Get(name, ""); v != "" {
			out = append(out, name+"="+v)
		}
	}
	return out
}
