package spock

import (
	"fmt"
	"sort"
	"strings"
)

// DependencyLattice is a labeled directed graph whose vertices are package
// String()s: an edge p -> q exists when q satisfies one of p's dependency
// patterns. Parallel edges are collapsed.
type DependencyLattice struct {
	vertices map[string]struct{}
	order    []string          // insertion order, for deterministic GraphViz output
	edges    map[string]map[string]struct{}
}

// NewDependencyLattice builds the lattice for a package list P: a vertex
// per package, and an edge p -> q whenever one of p's dependency patterns
// matches q.
func NewDependencyLattice(pkgs []Package) *DependencyLattice {
	l := &DependencyLattice{
		vertices: make(map[string]struct{}),
		edges:    make(map[string]map[string]struct{}),
	}

	for _, p := range pkgs {
		l.addVertex(p.String())
	}

	for _, p := range pkgs {
		for _, pp := range p.DependencyPatterns() {
			for _, q := range pkgs {
				if pp.Matches(q) {
					l.addEdge(p.String(), q.String())
				}
			}
		}
	}

	return l
}

func (l *DependencyLattice) addVertex(name string) {
	if _, ok := l.vertices[name]; ok {
		return
	}
	l.vertices[name] = struct{}{}
	l.order = append(l.order, name)
	l.edges[name] = make(map[string]struct{})
}

func (l *DependencyLattice) addEdge(from, to string) {
	l.addVertex(from)
	l.addVertex(to)
	l.edges[from][to] = struct{}{}
}

// ToGraphViz emits a standard "digraph" representation for visualization.
func (l *DependencyLattice) ToGraphViz() string {
	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	for _, v := range l.order {
		fmt.Fprintf(&b, "\t%q;\n", v)
	}
	for _, from := range l.order {
		tos := make([]string, 0, len(l.edges[from]))
		for to := range l.edges[from] {
			tos = append(tos, to)
		}
		sort.Strings(tos)
		for _, to := range tos {
			fmt.Fprintf(&b, "\t%q -> %q;\n", from, to)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// CycleError reports that the lattice could not be topologically sorted
// because it contains a cycle; per spec.md, this is a program error (a bug
// in the solver's inputs), not a user-facing recoverable condition.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	sort.Strings(e.Remaining)
	return fmt.Sprintf("dependency lattice contains a cycle among: %s", strings.Join(e.Remaining, ", "))
}

// SortByDependencyLattice runs Kahn's algorithm over the lattice built for
// pkgs: vertices with zero in-degree seed the worklist; each popped vertex
// receives the next ordinal; when an out-edge's target reaches zero
// remaining in-edges, it is pushed to the *front* of the worklist
// (DFS-like). It returns pkgs sorted by descending ordinal, i.e.
// dependencies before dependents. Panics with a *CycleError if the lattice
// is cyclic, since that indicates malformed input rather than a condition
// callers are expected to recover from.
func SortByDependencyLattice(pkgs []Package) []Package {
	l := NewDependencyLattice(pkgs)

	inDegree := make(map[string]int, len(l.order))
	for _, v := range l.order {
		inDegree[v] = 0
	}
	for _, from := range l.order {
		for to := range l.edges[from] {
			inDegree[to]++
		}
	}

	position := make(map[string]int, len(l.order))
	for i, v := range l.order {
		position[v] = i
	}
	byPosition := func(vs []string) {
		sort.Slice(vs, func(i, j int) bool { return position[vs[i]] < position[vs[j]] })
	}

	var worklist []string
	for _, v := range l.order {
		if inDegree[v] == 0 {
			worklist = append(worklist, v)
		}
	}

	ordinal := make(map[string]int, len(l.order))
	next := 0
	remaining := len(l.order)

	for len(worklist) > 0 && remaining > 0 {
		v := worklist[0]
		worklist = worklist[1:]
		ordinal[v] = next
		next++
		remaining--

		tos := make([]string, 0, len(l.edges[v]))
		for to := range l.edges[v] {
			tos = append(tos, to)
		}
		byPosition(tos)
		for _, to := range tos {
			inDegree[to]--
			if inDegree[to] == 0 {
				worklist = append([]string{to}, worklist...)
			}
		}
	}

	if remaining > 0 {
		var left []string
		for _, v := range l.order {
			if _, done := ordinal[v]; !done {
				left = append(left, v)
			}
		}
		panic(&CycleError{Remaining: left})
	}

	sorted := make([]Package, len(pkgs))
	copy(sorted, pkgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ordinal[sorted[i].String()] > ordinal[sorted[j].String()]
	})
	return sorted
}
