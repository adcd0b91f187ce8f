// Package toolversion checks the SPOCK_VERSION environment value against
// the version of the running Spock binary, per spec.md §6: any explicit
// value must be consistent with the runtime or a Conflict is raised.
package toolversion

import (
	"fmt"

	"github.com/blang/semver/v4"
)

// Conflict reports that an explicit SPOCK_VERSION disagrees with the
// running binary's version.
type Conflict struct {
	Wanted  string
	Running string
}

func (e *Conflict) Error() string {
	return fmt.Sprintf("SPOCK_VERSION=%s conflicts with running version %s", e.Wanted, e.Running)
}

// Running is the semantic version of the Spock core built into this binary.
const Running = "2.1.0"

// Check parses both versions and returns a *Conflict if wanted is non-empty
// and differs from running. An empty wanted (the variable was absent) never
// conflicts; NewContext stamps the runtime version into its environment
// after this check.
func Check(wanted string) error {
	if wanted == "" {
		return nil
	}

	running, err := semver.Parse(Running)
	if err != nil {
		return fmt.Errorf("running version %q does not parse as semver: %w", Running, err)
	}

	want, err := semver.Parse(wanted)
	if err != nil {
		return fmt.Errorf("SPOCK_VERSION %q does not parse as semver: %w", wanted, err)
	}

	if !want.Equals(running) {
		return &Conflict{Wanted: wanted, Running: running.String()}
	}
	return nil
}
