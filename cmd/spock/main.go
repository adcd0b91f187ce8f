// Command spock is the thin CLI over the spock core library: ls/rm inspect
// and remove installed packages; using/employ/shell compose environments and
// launch child processes; download is a stub for the external build-script
// runner and filter a stub for the process-supervision layer (both out of
// scope per spec.md §1).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"spock"
	"spock/pattern"
)

// Version identifies the Spock core built into this binary.
const Version = "2.1.0"

const defaultHelp = `Spock manages per-user, content-addressed software stacks.

Usage:

  spock <command> [options]

The commands are:

  ls        list installed and candidate packages
  rm        remove an installed package
  using     solve for the given patterns and launch a shell with them employed
  employ    employ already-installed packages without running the solver
  shell     launch a shell with the currently employed stack
  download  stage a package build (external build-script runner not implemented)
  filter    run a command filtered through Spock's environment (not implemented)
  version   show the running Spock version
`

func run(args []string) (int, error) {
	arg := ""
	if len(args) > 1 {
		arg = args[1]
	}

	switch arg {
	case "", "help", "--help", "-h":
		fmt.Print(defaultHelp)
		return 0, nil
	case "version", "--version":
		fmt.Printf("spock version: %s\n", Version)
		return 0, nil
	case "ls":
		return runLs(args[1:])
	case "rm":
		return runRm(args[1:])
	case "using":
		return runUsing(args[1:])
	case "employ":
		return runEmploy(args[1:])
	case "shell":
		return runShell(args[1:])
	case "download":
		return runDownload(args[1:])
	case "filter":
		return 1, fmt.Errorf("filter: not implemented (process-supervision layer is out of scope)")
	default:
		fmt.Printf("spock %s: unknown command\n", arg)
		return 2, nil
	}
}

// newContext builds and discovers a Context, the preamble every subcommand
// but help/version needs.
func newContext() (*spock.Context, error) {
	ctx, err := spock.NewContext(nil)
	if err != nil {
		return nil, err
	}
	if err := ctx.Discover(); err != nil {
		return nil, err
	}
	return ctx, nil
}

func parsePatterns(args []string) ([]pattern.Pattern, error) {
	patterns := make([]pattern.Pattern, 0, len(args))
	for _, a := range args {
		p, err := pattern.Parse(a)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func runLs(args []string) (int, error) {
	flagSet := pflag.NewFlagSet("ls", pflag.ContinueOnError)
	all := flagSet.Bool("all", false, "list every known package, not only employed ones")
	if err := flagSet.Parse(args); err == pflag.ErrHelp {
		return 0, nil
	} else if err != nil {
		return 2, err
	}

	ctx, err := newContext()
	if err != nil {
		return 1, err
	}

	patterns, err := parsePatterns(flagSet.Args())
	if err != nil {
		return 1, err
	}

	var pkgs []spock.Package
	switch {
	case *all:
		pkgs = ctx.Directory.Find(pattern.Pattern{}, spock.Any)
	case len(patterns) == 0:
		for _, p := range ctx.Employed() {
			pkgs = append(pkgs, p)
		}
	default:
		for _, p := range patterns {
			pkgs = append(pkgs, ctx.Directory.Find(p, spock.Any)...)
		}
	}

	useColor := isTerminal(os.Stdout)
	for _, p := range pkgs {
		fmt.Println(p.StringColored(useColor))
	}
	return 0, nil
}

func runRm(args []string) (int, error) {
	if len(args) != 1 {
		fmt.Println("spock rm: expected exactly one package pattern")
		return 2, nil
	}

	ctx, err := newContext()
	if err != nil {
		return 1, err
	}

	pp, err := pattern.Parse(args[0])
	if err != nil {
		return 1, err
	}

	matches := ctx.Directory.Find(pp, spock.Installed)
	switch len(matches) {
	case 0:
		return 1, fmt.Errorf("no installed package matches %q", args[0])
	case 1:
		// fine
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.String()
		}
		return 1, fmt.Errorf("%q is ambiguous: %s", args[0], strings.Join(names, ", "))
	}

	pkg := matches[0].(*spock.InstalledPackage)
	if err := ctx.RemoveInstalled(pkg); err != nil {
		return 1, err
	}
	fmt.Printf("removed %s\n", pkg.String())
	return 0, nil
}

func runUsing(args []string) (int, error) {
	flagSet := pflag.NewFlagSet("using", pflag.ContinueOnError)
	maxSolutions := flagSet.Int("max", 1, "maximum number of solutions to search for")
	fullSolutions := flagSet.Bool("full", true, "include transitive dependencies in the reported solution")
	if err := flagSet.Parse(args); err == pflag.ErrHelp {
		return 0, nil
	} else if err != nil {
		return 2, err
	}

	ctx, err := newContext()
	if err != nil {
		return 1, err
	}

	patterns, err := parsePatterns(flagSet.Args())
	if err != nil {
		return 1, err
	}
	if len(patterns) == 0 {
		fmt.Println("spock using: no packages requested")
		return 2, nil
	}

	solver := spock.NewSolver(ctx.Directory, nil)
	solver.MaxSolutions = *maxSolutions
	solver.FullSolutions = *fullSolutions

	result := solver.Solve(patterns, ctx.Employed())
	if len(result.Solutions) == 0 {
		for _, m := range result.Messages {
			fmt.Fprintln(os.Stderr, "spock using:", m)
		}
		return 1, fmt.Errorf("no solution satisfies the requested packages")
	}

	for _, pkg := range result.Solutions[0] {
		installed, ok := pkg.(*spock.InstalledPackage)
		if !ok {
			return 1, fmt.Errorf("%s is not installed; run 'spock download %s' first", pkg, pkg.PrimaryName())
		}
		if err := ctx.InsertEmployed(installed); err != nil {
			return 1, err
		}
	}

	status, err := ctx.Subshell(nil, spock.SubshellSettings{})
	return statusToExitCode(status), err
}

func runEmploy(args []string) (int, error) {
	ctx, err := newContext()
	if err != nil {
		return 1, err
	}

	patterns, err := parsePatterns(args)
	if err != nil {
		return 1, err
	}
	if len(patterns) == 0 {
		fmt.Println("spock employ: no packages requested")
		return 2, nil
	}

	for _, pp := range patterns {
		matches := ctx.Directory.Find(pp, spock.Installed)
		if len(matches) == 0 {
			return 1, fmt.Errorf("no installed package matches %q", pp)
		}
		if err := ctx.InsertEmployed(matches[0].(*spock.InstalledPackage)); err != nil {
			return 1, err
		}
	}
	return 0, nil
}

func runShell(args []string) (int, error) {
	ctx, err := newContext()
	if err != nil {
		return 1, err
	}
	status, err := ctx.Subshell(args, spock.SubshellSettings{})
	return statusToExitCode(status), err
}

func runDownload(args []string) (int, error) {
	flagSet := pflag.NewFlagSet("download", pflag.ContinueOnError)
	if err := flagSet.Parse(args); err == pflag.ErrHelp {
		return 0, nil
	} else if err != nil {
		return 2, err
	}
	if len(flagSet.Args()) == 0 {
		fmt.Println("spock download: no packages requested")
		return 2, nil
	}

	ctx, err := newContext()
	if err != nil {
		return 1, err
	}

	// Each invocation gets its own scratch subdirectory under BLDDIR so
	// concurrent downloads never collide; staging and the actual
	// download/build/install/post-install steps belong to the external
	// shell-script runner (spec.md §1), not implemented here.
	scratch := filepath.Join(ctx.BuildDir, "spock-build-"+uuid.NewString())
	fmt.Printf("download: would stage %s at %s (build-script runner not implemented)\n",
		strings.Join(flagSet.Args(), ", "), scratch)
	return 0, nil
}

func statusToExitCode(status spock.ExitStatus) int {
	switch status {
	case spock.SUCCESS:
		return 0
	case spock.NOT_RUN:
		return 1
	default:
		return 2
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func main() {
	exitCode, err := run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode)
}
