// Package pattern implements Spock's package pattern grammar:
// NAME{op VER}?{@HASH}?, used to select installed or candidate packages by
// name, version constraint, and/or install hash.
package pattern

import (
	"fmt"
	"regexp"

	"spock/version"
)

// Op is a version comparison operator.
type Op int

const (
	// OpEQ is the default operator when a pattern carries a version but no
	// explicit comparison.
	OpEQ Op = iota
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	// OpHY is the "-" prefix-match operator.
	OpHY
)

func (op Op) String() string {
	switch op {
	case OpEQ:
		return "="
	case OpNE:
		return "!="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpHY:
		return "-"
	default:
		return "?"
	}
}

// SyntaxError reports a pattern string that matched none of the grammar
// alternatives.
type SyntaxError struct {
	Input string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid package pattern %q", e.Input)
}

// Pattern is the parsed (name, op, version, hash) tuple.
type Pattern struct {
	Name    string
	Op      Op
	Version version.Version
	Hash    string
}

const (
	pkgNameRe        = `[[:alnum:]]+(?:[-+_]+[[:alnum:]]+)*(?:[_+]*)`
	versionPartRe    = `[[:alnum:]]+(?:[-_]+[[:alnum:]]+)*`
	dottedVersionRe  = versionPartRe + `(?:\.` + versionPartRe + `)+`
	relaxedVersionRe = versionPartRe + `(?:\.` + versionPartRe + `)*`
	singleNumberRe   = `[1-9][0-9]{0,5}`
	dottedOrNumberRe = `(?:` + dottedVersionRe + `|` + singleNumberRe + `)`
	versionOpRe      = `!?=|<=?|>=?`
	hashRe           = `@[0-9a-f]{8}`
)

// grammars lists the parse alternatives in the priority order required by
// the grammar: the first anchored match wins. Each has four capture groups:
// name, op, version, hash (with leading "@" still attached to the hash
// group, stripped after matching).
var grammars = []*regexp.Regexp{
	// 1. empty
	regexp.MustCompile(`^()()()()$`),
	// 2. @HASH
	regexp.MustCompile(`^()()()(` + hashRe + `)$`),
	// 3. OP VER HASH? — relaxed version, no ambiguity with a name since
	// names cannot start with "-". The operator is required here, so a bare
	// version with no operator is not accepted by this alternative.
	regexp.MustCompile(`^()(` + versionOpRe + `|-)(` + relaxedVersionRe + `)((?:` + hashRe + `)?)$`),
	// 4. NAME OP VER HASH?
	regexp.MustCompile(`^(` + pkgNameRe + `)(` + versionOpRe + `)(` + relaxedVersionRe + `)((?:` + hashRe + `)?)$`),
	// 5. NAME - V2+ (dotted or a bare integer <= 999999)
	regexp.MustCompile(`^(` + pkgNameRe + `)(-)(` + dottedOrNumberRe + `)((?:` + hashRe + `)?)$`),
	// 6. NAME HASH?
	regexp.MustCompile(`^(` + pkgNameRe + `)()()((?:` + hashRe + `)?)$`),
}

var opByToken = map[string]Op{
	"":   OpEQ,
	"=":  OpEQ,
	"!=": OpNE,
	"<":  OpLT,
	"<=": OpLE,
	">":  OpGT,
	">=": OpGE,
	"-":  OpHY,
}

// Parse parses s against the pattern grammar, trying each alternative in
// order and accepting the first anchored match.
func Parse(s string) (Pattern, error) {
	for _, re := range grammars {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		var p Pattern
		p.Name = m[1]
		p.Op = opByToken[m[2]]
		p.Version = version.Parse(m[3])
		if m[4] != "" {
			p.Hash = m[4][1:] // strip leading "@"
		}
		return p, nil
	}
	return Pattern{}, &SyntaxError{Input: s}
}

// MustParse is like Parse but panics on a syntax error; intended for tests
// and constant patterns known to be valid.
func MustParse(s string) Pattern {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the pattern in its canonical NAME{op VER}?{@HASH}? form.
func (p Pattern) String() string {
	s := p.Name
	if !p.Version.IsEmpty() {
		s += p.Op.String() + p.Version.String()
	}
	if p.Hash != "" {
		s += "@" + p.Hash
	}
	return s
}

// MatchesVersion reports whether v satisfies the pattern's version
// constraint. A pattern with no version constraint matches every version.
func (p Pattern) MatchesVersion(v version.Version) bool {
	if p.Version.IsEmpty() {
		return true
	}
	switch p.Op {
	case OpEQ:
		return version.Equal(v, p.Version)
	case OpNE:
		return !version.Equal(v, p.Version)
	case OpLT:
		return version.Less(v, p.Version)
	case OpGE:
		return !version.Less(v, p.Version)
	case OpLE:
		return version.Less(v, p.Version) || version.Equal(v, p.Version)
	case OpGT:
		return !version.Less(v, p.Version) && !version.Equal(v, p.Version)
	case OpHY:
		return p.Version.IsPrefixOf(v)
	default:
		return false
	}
}

// matchable is the minimal package surface PackagePattern matches against.
// Implemented by spock.Package; kept local to avoid an import cycle between
// pattern and spock.
type matchable interface {
	PrimaryName() string
	HasName(name string) bool
	PackageHash() string
	IsInstalled() bool
	SingleVersion() version.Version
	AllVersions() []version.Version
}

// Matches reports whether the pattern selects pkg: the name is empty or
// matches the primary name or an alias, the hash is empty or equal, and the
// version constraint accepts the package's single version (installed) or
// any of its versions (ghost).
func (p Pattern) Matches(pkg matchable) bool {
	if p.Name != "" && !pkg.HasName(p.Name) {
		return false
	}
	if p.Hash != "" && p.Hash != pkg.PackageHash() {
		return false
	}
	if pkg.IsInstalled() {
		return p.MatchesVersion(pkg.SingleVersion())
	}
	for _, v := range pkg.AllVersions() {
		if p.MatchesVersion(v) {
			return true
		}
	}
	return false
}
