package spock

import (
	"os"
	"strings"
)

// Environment is an insertion-ordered mapping from variable name to value.
// PATH-like composition (append/prepend with de-duplication) is done by
// textual operations on a separator, default ":".
type Environment struct {
	order []string
	vars  map[string]string
}

// NewEnvironment returns an empty Environment ready to use.
func NewEnvironment() *Environment {
	return &Environment{vars: make(map[string]string)}
}

// Set assigns name = value, appending name to the insertion order if new.
func (e *Environment) Set(name, value string) {
	if e.vars == nil {
		e.vars = make(map[string]string)
	}
	if _, ok := e.vars[name]; !ok {
		e.order = append(e.order, name)
	}
	e.vars[name] = value
}

// Get returns the value of name, or def if unset.
func (e *Environment) Get(name, def string) string {
	if v, ok := e.vars[name]; ok {
		return v
	}
	return def
}

// Names returns the variable names in insertion order. The returned slice
// must not be mutated.
func (e *Environment) Names() []string {
	return e.order
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsPart(parts []string, part string) bool {
	for _, p := range parts {
		if p == part {
			return true
		}
	}
	return false
}

// AppendUnique splits the current value of name and value on sep, and
// appends to the current value any incoming part not already present.
func (e *Environment) AppendUnique(name, value, sep string) {
	current := splitNonEmpty(e.Get(name, ""), sep)
	incoming := splitNonEmpty(value, sep)

	out := append([]string{}, current...)
	for _, part := range incoming {
		if !containsPart(out, part) {
			out = append(out, part)
		}
	}
	e.Set(name, strings.Join(out, sep))
}

// PrependUnique splits the current value of name and value on sep, and
// prepends to the current value any incoming part not already present,
// preserving the incoming order.
func (e *Environment) PrependUnique(name, value, sep string) {
	current := splitNonEmpty(e.Get(name, ""), sep)
	incoming := splitNonEmpty(value, sep)

	var fresh []string
	for _, part := range incoming {
		if !containsPart(current, part) && !containsPart(fresh, part) {
			fresh = append(fresh, part)
		}
	}
	out := append(fresh, current...)
	e.Set(name, strings.Join(out, sep))
}

// PrependUniqueEnv prepends every variable from other into e, using
// PrependUnique with the default ":" separator for each.
func (e *Environment) PrependUniqueEnv(other *Environment) {
	for _, name := range other.Names() {
		e.PrependUnique(name, other.Get(name, ""), ":")
	}
}

// Clone returns a deep copy of e.
func (e *Environment) Clone() *Environment {
	out := NewEnvironment()
	for _, name := range e.order {
		out.Set(name, e.vars[name])
	}
	return out
}

// ExportToProcess replaces the process environment entirely with e's
// variables; empty-valued variables are removed rather than exported. No
// threading guarantees are claimed for this operation, matching spec.md's
// stated contract for subshell's pre-exec export.
func (e *Environment) ExportToProcess() {
	os.Clearenv()
	for _, name := range e.order {
		if v := e.vars[name]; v != "" {
			os.Setenv(name, v)
		}
	}
}
