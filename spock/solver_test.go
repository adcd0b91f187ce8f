package spock

import (
	"testing"

	"spock/pattern"
	"spock/version"
)

// spockSelf is the self-package every installed package in these fixtures
// depends on, standing in for the real bootstrap self-package (out of
// scope per spec.md §1).
func spockSelf() *InstalledPackage {
	return &InstalledPackage{Name: "spock", Ver: version.Parse("2.1.0"), Hash: "00000000"}
}

func selfDep(self *InstalledPackage) pattern.Pattern {
	return pattern.MustParse("spock=" + self.Ver.String() + "@" + self.Hash)
}

func TestSolverBasicSolution(t *testing.T) {
	// S3: boost and gcc both depend on the self package; requesting both by
	// name yields exactly one solution, ordered self before its dependents.
	d := NewDirectory()
	self := spockSelf()
	boost := &InstalledPackage{Name: "boost", Ver: version.Parse("1.62.0"), Hash: "aaaaaaaa", Deps: []pattern.Pattern{selfDep(self)}}
	gcc := &InstalledPackage{Name: "gcc", Ver: version.Parse("6.3.0"), Hash: "bbbbbbbb", Deps: []pattern.Pattern{selfDep(self)}}
	d.InsertAll([]Package{self, boost, gcc})

	s := NewSolver(d, nil)
	result := s.Solve([]pattern.Pattern{pattern.MustParse("boost"), pattern.MustParse("gcc")}, nil)

	if len(result.Solutions) != 1 {
		t.Fatalf("expected exactly one solution, got %d (messages: %v)", len(result.Solutions), result.Messages)
	}
	sol := result.Solutions[0]
	if len(sol) != 3 {
		t.Fatalf("expected self+boost+gcc in the solution, got %v", sol)
	}
	if sol[0].String() != self.String() {
		t.Fatalf("expected self package first in dependency order, got %v", sol)
	}
}

func TestSolverAliasConflict(t *testing.T) {
	// S4: gnu-c++11 and gnu-c++03 both alias c++-compiler. Requesting the
	// alias twice succeeds with either one; forcing both concrete packages
	// conflicts.
	d := NewDirectory()
	cpp11 := &InstalledPackage{Name: "gnu-c++11", AliasSet: []string{"c++-compiler"}, Ver: version.Parse("6.3.0"), Hash: "cccccccc"}
	cpp03 := &InstalledPackage{Name: "gnu-c++03", AliasSet: []string{"c++-compiler"}, Ver: version.Parse("4.9.0"), Hash: "dddddddd"}
	d.InsertAll([]Package{cpp11, cpp03})

	s := NewSolver(d, nil)

	ok := s.Solve([]pattern.Pattern{pattern.MustParse("c++-compiler"), pattern.MustParse("c++-compiler")}, nil)
	if len(ok.Solutions) != 1 {
		t.Fatalf("expected one solution for a repeated alias request, got %d", len(ok.Solutions))
	}

	conflict := s.Solve([]pattern.Pattern{pattern.MustParse("gnu-c++11"), pattern.MustParse("gnu-c++03")}, nil)
	if len(conflict.Solutions) != 0 {
		t.Fatalf("expected no solution when both aliased packages are forced, got %d", len(conflict.Solutions))
	}
	if len(conflict.Messages) == 0 {
		t.Fatal("expected a diagnostic message for the alias conflict")
	}
}

type boostDefinition struct{}

func (boostDefinition) Name() string { return "boost" }
func (boostDefinition) DependencyPatternsFor(v version.Version) []pattern.Pattern {
	return nil
}

func TestAppendConstraintNeedDepsOnlyWhenGhostFixed(t *testing.T) {
	// A ghost/installed merge should only trigger needDeps when the
	// pre-existing constraint was the ghost being newly fixed to a concrete
	// identity, never when the pre-existing constraint was already
	// installed and the incoming package is merely a matching ghost
	// candidate drawn from some other list.
	ghost := NewGhostPackage(boostDefinition{}, version.NewSet(version.Parse("1.62.0"), version.Parse("1.63.0")))
	installed := &InstalledPackage{Name: "boost", Ver: version.Parse("1.62.0"), Hash: "aaaaaaaa"}

	constraints, needDeps, msg := appendConstraint([]Package{ghost}, installed)
	if msg != "" {
		t.Fatalf("unexpected conflict: %s", msg)
	}
	if !needDeps {
		t.Fatal("expected needDeps when the pre-existing ghost constraint is fixed to an installed identity")
	}
	if len(constraints) != 1 || constraints[0] != Package(installed) {
		t.Fatalf("expected the ghost to be replaced by the installed identity, got %v", constraints)
	}

	constraints2, needDeps2, msg2 := appendConstraint([]Package{installed}, ghost)
	if msg2 != "" {
		t.Fatalf("unexpected conflict: %s", msg2)
	}
	if needDeps2 {
		t.Fatal("expected needDeps to stay false when the pre-existing constraint was already installed")
	}
	if len(constraints2) != 1 || constraints2[0] != Package(installed) {
		t.Fatalf("expected the installed identity to be kept, got %v", constraints2)
	}
}

func TestSolverGhostNarrowing(t *testing.T) {
	// S5: a ghost with versions {1.60, 1.61, 1.62}; requesting >=1.61
	// narrows it to {1.61, 1.62}, whose common prefix is "1.6".
	d := NewDirectory()
	defn := boostDefinition{}
	ghost := NewGhostPackage(defn, version.NewSet(
		version.Parse("1.60.0"), version.Parse("1.61.0"), version.Parse("1.62.0"),
	))
	d.Insert(ghost)

	s := NewSolver(d, nil)
	s.FullSolutions = false
	result := s.Solve([]pattern.Pattern{pattern.MustParse("boost>=1.61.0")}, nil)

	if len(result.Solutions) != 1 {
		t.Fatalf("expected one solution, got %d (messages: %v)", len(result.Solutions), result.Messages)
	}
	sol := result.Solutions[0]
	if len(sol) != 1 {
		t.Fatalf("expected a single narrowed ghost, got %v", sol)
	}
	g := sol[0].(*GhostPackage)
	if g.Versions.Size() != 2 || g.Versions.Contains(version.Parse("1.60.0")) {
		t.Fatalf("expected narrowing to drop 1.60, got %v", g.Versions.Values())
	}
}

func TestSolverSoundness(t *testing.T) {
	// P6: every solution satisfies every user pattern, no pair excludes,
	// and every dependency pattern is matched within the solution.
	d := NewDirectory()
	self := spockSelf()
	boost := &InstalledPackage{Name: "boost", Ver: version.Parse("1.62.0"), Hash: "aaaaaaaa", Deps: []pattern.Pattern{selfDep(self)}}
	d.InsertAll([]Package{self, boost})

	s := NewSolver(d, nil)
	patterns := []pattern.Pattern{pattern.MustParse("boost")}
	result := s.Solve(patterns, nil)
	if len(result.Solutions) != 1 {
		t.Fatalf("expected a solution, got %d", len(result.Solutions))
	}

	sol := result.Solutions[0]
	for _, pp := range patterns {
		matched := false
		for _, p := range sol {
			if pp.Matches(p) {
				matched = true
			}
		}
		if !matched {
			t.Fatalf("pattern %v unsatisfied by solution %v", pp, sol)
		}
	}
	for i, a := range sol {
		for j, b := range sol {
			if i != j && Excludes(a, b) {
				t.Fatalf("solution contains excluding pair %v, %v", a, b)
			}
		}
	}
	for _, p := range sol {
		for _, dep := range p.DependencyPatterns() {
			matched := false
			for _, q := range sol {
				if dep.Matches(q) {
					matched = true
				}
			}
			if !matched {
				t.Fatalf("dependency %v of %v unsatisfied by solution %v", dep, p, sol)
			}
		}
	}
}

func TestSolverRespectsEmployed(t *testing.T) {
	d := NewDirectory()
	boost := &InstalledPackage{Name: "boost", Ver: version.Parse("1.62.0"), Hash: "aaaaaaaa"}
	otherBoost := &InstalledPackage{Name: "boost", Ver: version.Parse("1.63.0"), Hash: "bbbbbbbb"}
	d.InsertAll([]Package{boost, otherBoost})

	s := NewSolver(d, nil)
	result := s.Solve([]pattern.Pattern{pattern.MustParse("boost=1.63.0")}, []*InstalledPackage{boost})

	if len(result.Solutions) != 0 {
		t.Fatalf("expected the already-employed 1.62.0 to conflict with a request for 1.63.0, got %v", result.Solutions)
	}
}

func TestSolverMaxSolutionsCap(t *testing.T) {
	d := NewDirectory()
	a := &InstalledPackage{Name: "gnu-c++11", AliasSet: []string{"c++-compiler"}, Ver: version.Parse("6.3.0"), Hash: "cccccccc"}
	b := &InstalledPackage{Name: "gnu-c++03", AliasSet: []string{"c++-compiler"}, Ver: version.Parse("4.9.0"), Hash: "dddddddd"}
	d.InsertAll([]Package{a, b})

	s := NewSolver(d, nil)
	s.MaxSolutions = 1
	result := s.Solve([]pattern.Pattern{pattern.MustParse("c++-compiler")}, nil)
	if len(result.Solutions) != 1 {
		t.Fatalf("expected MaxSolutions=1 to cap at one solution, got %d", len(result.Solutions))
	}
}
