// Package manifest reads and writes the YAML manifest files that describe
// an installed package on disk (OPTDIR/<hash>.yaml).
package manifest

import (
	"fmt"
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v3"
)

// NotFound is returned by Read when the manifest file does not exist.
type NotFound struct {
	Path string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("manifest not found: %s", e.Path)
}

// Manifest is the minimum shape described for OPTDIR/<hash>.yaml: the
// package name, its version, the install timestamp, any aliases, fully
// qualified dependency specs, and the environment variables it exports.
type Manifest struct {
	Package      string            `yaml:"package,omitempty"`
	Version      string            `yaml:"version"`
	Timestamp    string            `yaml:"timestamp"`
	Aliases      aliasList         `yaml:"aliases,omitempty"`
	Dependencies []string          `yaml:"dependencies,omitempty"`
	Environment  map[string]string `yaml:"environment,omitempty"`
}

// aliasList unmarshals either a single scalar string or a YAML sequence of
// strings into a []string, matching the manifest schema's "scalar or list"
// aliases field.
type aliasList []string

func (a *aliasList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		if s != "" {
			*a = []string{s}
		}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("aliases: line %d: expected scalar or sequence", value.Line)
	}
}

func (a aliasList) MarshalYAML() (interface{}, error) {
	switch len(a) {
	case 0:
		return nil, nil
	case 1:
		return a[0], nil
	default:
		return []string(a), nil
	}
}

// Read parses the manifest at path. A YAML decoding error is returned
// wrapped with the file path; it carries yaml.v3's own line information, not
// a dotted node path.
func Read(path string) (*Manifest, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFound{Path: path}
		}
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// Write serializes m to path, creating the file if necessary.
func Write(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return ioutil.WriteFile(path, data, 0666)
}

// SetAliases replaces m's alias list.
func (m *Manifest) SetAliases(aliases []string) {
	m.Aliases = aliasList(aliases)
}

// AliasList returns m's aliases as a plain slice (possibly empty, never nil
// is not guaranteed: callers should range over it rather than check nilness).
func (m *Manifest) AliasList() []string {
	return []string(m.Aliases)
}

// VersionGroup is one entry of a Definition's declared-supported versions:
// a dotted version string plus the fully qualified dependency specs that
// version requires.
type VersionGroup struct {
	Version      string   `yaml:"version"`
	Dependencies []string `yaml:"dependencies,omitempty"`
}

// ParasiteDecl is one parasite sub-package a Definition declares: a package
// pattern naming the parasite's identity (name, and optionally a version
// restriction) plus its own aliases.
type ParasiteDecl struct {
	Pattern string    `yaml:"pattern"`
	Aliases aliasList `yaml:"aliases,omitempty"`
}

// Definition is the minimum shape of a PKGDIR/<name>.yaml package
// definition the core needs to build ghost candidates: its primary name,
// aliases, declared-supported versions (each with the dependency patterns
// that version requires), and any parasite declarations. The download,
// build, install, and post-install shell blocks the full schema carries are
// consumed by the external build-script runner (spec.md §1) and are not
// modeled here.
type Definition struct {
	Package   string         `yaml:"package"`
	Aliases   aliasList      `yaml:"aliases,omitempty"`
	Versions  []VersionGroup `yaml:"versions"`
	Parasites []ParasiteDecl `yaml:"parasites,omitempty"`
}

// AliasList returns d's aliases as a plain slice.
func (d *Definition) AliasList() []string {
	return []string(d.Aliases)
}

// ParasiteAliasList returns p's aliases as a plain slice.
func (p *ParasiteDecl) AliasList() []string {
	return []string(p.Aliases)
}

// ReadDefinition parses the package definition at path.
func ReadDefinition(path string) (*Definition, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFound{Path: path}
		}
		return nil, err
	}

	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &d, nil
}
