package spock

import (
	"fmt"
	"io/ioutil"
	"log"
	"sort"

	"spock/pattern"
	"spock/version"
)

// Solver runs the backtracking search described in spec.md §4.8: given a
// list of user patterns and the packages already employed in a Context, it
// finds up to MaxSolutions dependency-closed, mutually non-conflicting
// package sets.
type Solver struct {
	Directory *Directory

	// MaxSolutions caps the number of solutions returned; the default (set
	// by NewSolver) is 1.
	MaxSolutions int
	// FullSolutions, when true (the default), returns every transitive
	// constraint in a solution rather than only the top-level selections.
	FullSolutions bool
	// OnlyInstalled is advisory only, per spec.md §4.8: it is never read by
	// Solve itself (candidate gathering always considers both installed
	// packages and ghosts, since narrowing to installed-only candidates is
	// not how the search resolves a request). Callers doing
	// build-dependency resolution set and read it themselves to decide
	// whether a returned ghost still needs downloading.
	OnlyInstalled bool

	logger *log.Logger
}

// NewSolver returns a Solver over dir with MaxSolutions=1, FullSolutions=true
// and OnlyInstalled=true, matching spec.md §4.8's defaults. logger may be
// nil, in which case diagnostics are discarded.
func NewSolver(dir *Directory, logger *log.Logger) *Solver {
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}
	return &Solver{
		Directory:     dir,
		MaxSolutions:  1,
		FullSolutions: true,
		OnlyInstalled: true,
		logger:        logger,
	}
}

// Result is the outcome of a Solve call: up to MaxSolutions solutions, each
// a package list ordered by DependencyLattice (dependencies before
// dependents), plus a deduplicated set of human-readable failure reasons
// gathered along every abandoned search branch.
type Result struct {
	Solutions [][]Package
	Messages  []string
}

// messageSet is a deduplicated, insertion-order-independent collection of
// diagnostic strings; it is sorted on read so Result.Messages is
// deterministic.
type messageSet map[string]struct{}

func (m messageSet) add(s string) {
	if s != "" {
		m[s] = struct{}{}
	}
}

func (m messageSet) sorted() []string {
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Solve searches for up to s.MaxSolutions package sets that satisfy every
// pattern in patterns while keeping every already-employed package. It is
// pure over (s.Directory, patterns, employed): it mutates nothing in the
// Directory or Context.
func (s *Solver) Solve(patterns []pattern.Pattern, employed []*InstalledPackage) *Result {
	messages := make(messageSet)

	var constraints []Package
	for _, e := range employed {
		next, _, msg := appendConstraint(constraints, Package(e))
		if msg != "" {
			messages.add(msg)
			return &Result{Messages: messages.sorted()}
		}
		constraints = next
	}

	var plists PackageLists
	s.extendLists(constraints, &plists, patterns, messages)

	run := &solverRun{solver: s, messages: messages}
	if !plists.IsAnyListEmpty() {
		plists.Sort()
		run.solve(constraints, &plists, nil)
	}

	if len(run.solutions) == 0 {
		s.logger.Printf("no solution for %d pattern(s): %v", len(patterns), messages.sorted())
	}
	return &Result{Solutions: run.solutions, Messages: messages.sorted()}
}

// extendLists appends one candidate list per pattern to plists, per spec.md
// §4.8's extendLists: narrow ghost candidates to the pattern's version
// constraint, drop anything excluded by an existing constraint, and skip
// singleton lists that already match a constraint. It returns false (and
// records a diagnostic) as soon as a pattern yields zero candidates.
func (s *Solver) extendLists(constraints []Package, plists *PackageLists, patterns []pattern.Pattern, messages messageSet) bool {
	for _, pp := range patterns {
		found := s.Directory.Find(pp, Any)
		found = narrowGhosts(found, pp)

		var kept []Package
		for _, pkg := range found {
			excluded := false
			for _, c := range constraints {
				if Excludes(pkg, c) {
					excluded = true
					break
				}
			}
			if !excluded {
				kept = append(kept, pkg)
			}
		}

		if len(kept) == 0 {
			plists.Insert(kept)
			messages.add(fmt.Sprintf("no package satisfies %s", pp))
			return false
		}

		if len(kept) == 1 && constraintsContain(constraints, kept[0]) {
			continue
		}

		if !plists.ListExists(kept) {
			plists.Insert(kept)
		}
	}
	return !plists.IsAnyListEmpty()
}

// narrowGhosts restricts every ghost in found to the sub-VersionSet of its
// versions that satisfy pp's version constraint, dropping any ghost left
// with no matching version. Installed packages and patterns with no version
// constraint pass through unchanged.
func narrowGhosts(found []Package, pp pattern.Pattern) []Package {
	if pp.Version.IsEmpty() {
		return found
	}
	out := found[:0]
	for _, pkg := range found {
		g, ok := pkg.(*GhostPackage)
		if !ok {
			out = append(out, pkg)
			continue
		}
		var sub version.Set
		for _, v := range g.AllVersions() {
			if pp.MatchesVersion(v) {
				sub.Insert(v)
			}
		}
		if sub.IsEmpty() {
			continue
		}
		out = append(out, g.Restrict(sub))
	}
	return out
}

func constraintsContain(constraints []Package, pkg Package) bool {
	for _, c := range constraints {
		if Identical(c, pkg) {
			return true
		}
	}
	return false
}

// solverRun carries the mutable search state for one Solve call: the
// accumulated solutions and the shared diagnostic message set.
type solverRun struct {
	solver    *Solver
	solutions [][]Package
	messages  messageSet
}

// solve is the depth-first recursion over the open requirement at
// len(selected): for each candidate, tighten constraints, extend plists for
// its dependencies if the tightening requires it, recurse, then undo both
// before trying the next candidate.
func (r *solverRun) solve(constraints []Package, plists *PackageLists, selected []Package) {
	if r.atCap() {
		return
	}

	if len(selected) == plists.Size() {
		r.emit(constraints, selected)
		return
	}

	listIdx := len(selected)
	for _, c := range plists.At(listIdx) {
		newConstraints, needDeps, msg := appendConstraint(constraints, c)
		if msg != "" {
			r.messages.add(msg)
			continue
		}

		preLen := plists.Size()
		ok := true
		if needDeps {
			ok = r.solver.extendLists(newConstraints, plists, c.DependencyPatterns(), r.messages)
		}

		if ok {
			next := make([]Package, len(selected), len(selected)+1)
			copy(next, selected)
			next = append(next, c)
			r.solve(newConstraints, plists, next)
		}

		plists.Resize(preLen)

		if r.atCap() {
			return
		}
	}
}

func (r *solverRun) atCap() bool {
	return r.solver.MaxSolutions > 0 && len(r.solutions) >= r.solver.MaxSolutions
}

// emit builds one solution from the current search state: the full
// constraint set if FullSolutions, otherwise only the top-level selections;
// deduplicated by String and ordered by DependencyLattice.
func (r *solverRun) emit(constraints, selected []Package) {
	chosen := selected
	if r.solver.FullSolutions {
		chosen = constraints
	}
	deduped := dedupByString(chosen)
	r.solutions = append(r.solutions, SortByDependencyLattice(deduped))
}

func dedupByString(pkgs []Package) []Package {
	seen := make(map[string]struct{}, len(pkgs))
	out := make([]Package, 0, len(pkgs))
	for _, p := range pkgs {
		s := p.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, p)
	}
	return out
}

// appendConstraint adds pkg to constraints per spec.md §4.8: it walks the
// existing constraints in order looking for a name collision, an exact
// match (no-op), a narrowing merge (ghost vs ghost, or ghost vs installed),
// or an outright conflict. A non-empty message means conflict, in which
// case the returned slice and needDeps are meaningless. needDeps reports
// whether the merge newly fixed a package to a concrete installed
// identity (or pkg was freshly appended), meaning its dependency patterns
// must now be satisfied too.
func appendConstraint(constraints []Package, pkg Package) ([]Package, bool, string) {
	for i, c := range constraints {
		if pkg.PrimaryName() != c.PrimaryName() {
			if len(NamesInCommon(pkg, c)) > 0 {
				return nil, false, fmt.Sprintf("%s conflicts with %s: overlapping aliases", pkg, c)
			}
			continue
		}

		switch {
		case pkg.IsInstalled() && c.IsInstalled():
			if pkg.PackageHash() == c.PackageHash() {
				return constraints, false, ""
			}
			return nil, false, fmt.Sprintf("%s conflicts with already-employed %s", pkg, c)

		case !pkg.IsInstalled() && !c.IsInstalled():
			pg := pkg.(*GhostPackage)
			cg := c.(*GhostPackage)
			inter := version.Intersect(versionSetOf(pg), versionSetOf(cg))
			if inter.IsEmpty() {
				return nil, false, fmt.Sprintf("%s and %s have disjoint versions", pkg, c)
			}
			if version.SetEqual(inter, versionSetOf(cg)) {
				return constraints, false, ""
			}
			narrowed := cg.Restrict(inter)
			base := make([]Package, i, len(constraints))
			copy(base, constraints[:i])
			base = append(base, narrowed)
			return reapplySuffix(base, constraints[i+1:])

		default:
			// cWasGhost tracks which operand was the pre-existing
			// constraint: needDeps is only true when c (not pkg) was the
			// ghost newly fixed to an installed identity here. If c was
			// already installed and pkg is merely a matching ghost
			// candidate drawn from some other list, nothing was newly
			// fixed by this call.
			var installed *InstalledPackage
			var ghost *GhostPackage
			cWasGhost := !c.IsInstalled()
			if pkg.IsInstalled() {
				installed = pkg.(*InstalledPackage)
				ghost = c.(*GhostPackage)
			} else {
				installed = c.(*InstalledPackage)
				ghost = pkg.(*GhostPackage)
			}
			if !versionSetOf(ghost).Contains(installed.Version()) {
				return nil, false, fmt.Sprintf("%s conflicts with %s", pkg, c)
			}
			base := make([]Package, i, len(constraints))
			copy(base, constraints[:i])
			base = append(base, Package(installed))
			newConstraints, _, msg := reapplySuffix(base, constraints[i+1:])
			if msg != "" {
				return nil, false, msg
			}
			return newConstraints, cWasGhost, ""
		}
	}

	appended := make([]Package, len(constraints), len(constraints)+1)
	copy(appended, constraints)
	appended = append(appended, pkg)
	return appended, true, ""
}

// reapplySuffix re-applies each constraint in rest onto base in order, per
// spec.md §4.8's "re-apply all constraints after c" step: tightening a
// constraint earlier in the list can only ever narrow, never invalidate, a
// later one, but it may itself require a further merge.
func reapplySuffix(base []Package, rest []Package) ([]Package, bool, string) {
	cur := base
	needDeps := false
	for _, r := range rest {
		next, nd, msg := appendConstraint(cur, r)
		if msg != "" {
			return nil, false, msg
		}
		cur = next
		needDeps = needDeps || nd
	}
	return cur, needDeps, ""
}
