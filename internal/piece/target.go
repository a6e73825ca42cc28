package piece

import (
	"fmt"

	"mason/internal/label"
)

// TargetKind classifies targets within a package piece.
type TargetKind uint8

const (
	// KindRule is a target declared by a rule invocation.
	KindRule TargetKind = iota
	// KindSourceFile is an input file target.
	KindSourceFile
	// KindOutputFile is a file produced by a rule in the same package.
	KindOutputFile
	// KindPackageGroup is a named set of packages.
	KindPackageGroup
)

func (k TargetKind) String() string {
	switch k {
	case KindRule:
		return "rule"
	case KindSourceFile:
		return "source file"
	case KindOutputFile:
		return "output file"
	case KindPackageGroup:
		return "package group"
	}
	return "unknown"
}

// ParseTargetKind maps the wire spelling of a kind back to its value.
func ParseTargetKind(s string) (TargetKind, error) {
	switch s {
	case "rule":
		return KindRule, nil
	case "source file", "source":
		return KindSourceFile, nil
	case "output file", "output":
		return KindOutputFile, nil
	case "package group":
		return KindPackageGroup, nil
	}
	return 0, fmt.Errorf("unknown target kind %q", s)
}

// Location is a build-description source position supplied by the
// interpreter for provenance. The zero Location means unknown.
type Location struct {
	File string
	Line uint32
	Col  uint32
}

// IsZero reports whether l is the unknown location.
func (l Location) IsZero() bool { return l == Location{} }

func (l Location) String() string {
	if l.IsZero() {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// TargetSpec is the input to AddTarget. RuleClass is required for rule
// targets and forbidden for the rest.
type TargetSpec struct {
	Name      string
	Kind      TargetKind
	RuleClass string
	Location  Location
}

// Target is one named entry of a package piece. Targets are created by
// builders and never mutated after their piece is finalized.
type Target struct {
	name          string
	pkg           label.PackageID
	kind          TargetKind
	ruleClass     string
	location      Location
	generatorName string
	owner         Piece
}

func (t *Target) Name() string     { return t.name }
func (t *Target) Kind() TargetKind { return t.kind }

// RuleClass returns the declaring rule class; empty for non-rule targets.
func (t *Target) RuleClass() string { return t.ruleClass }

// Location returns the declaration site, if the interpreter supplied one.
func (t *Target) Location() Location { return t.location }

// GeneratorName returns the provenance name attributed through the
// builder's generator map; empty when none applies.
func (t *Target) GeneratorName() string { return t.generatorName }

// Label returns the target's label within its package.
func (t *Target) Label() label.Label {
	return label.Label{Pkg: t.pkg, Name: t.name}
}

// Owner returns the piece containing this target. It is nil until the
// owning builder finishes; snapshots hand out targets before that.
func (t *Target) Owner() Piece { return t.owner }

func (t *Target) String() string {
	if t.kind == KindRule {
		return fmt.Sprintf("%s rule %s", t.ruleClass, t.Label())
	}
	return fmt.Sprintf("%s %s", t.kind, t.Label())
}
