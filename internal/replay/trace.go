// Package replay loads recorded evaluation traces and drives them
// through the piece builder API. A trace is a TOML fixture describing
// the result of one evaluation: the targets a build file declared, the
// macros it recorded, and the expansions those macros performed. The
// build description language itself is out of scope; replaying a trace
// re-establishes every builder invariant on the way to finalized pieces.
package replay

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"

	"mason/internal/diag"
	"mason/internal/label"
	"mason/internal/macro"
	"mason/internal/piece"
)

// Trace is one parsed trace file.
type Trace struct {
	Pieces []PieceTrace `toml:"piece"`

	// Path is the file the trace was loaded from.
	Path string `toml:"-"`
}

// PieceTrace records one build file evaluation: the package metadata,
// the top-level records, and the macro expansions performed inside it.
type PieceTrace struct {
	Package        string            `toml:"package"`
	Workspace      string            `toml:"workspace"`
	ModuleName     string            `toml:"module_name"`
	ModuleVersion  string            `toml:"module_version"`
	Visibility     string            `toml:"visibility"`
	SuccinctErrors bool              `toml:"succinct_errors"`
	RepoMapping    map[string]string `toml:"repo_mapping"`
	Loads          []string          `toml:"loads"`

	Targets    []TargetTrace    `toml:"target"`
	Macros     []MacroTrace     `toml:"macro"`
	Expansions []ExpansionTrace `toml:"expansion"`
}

// TargetTrace records one target declaration.
type TargetTrace struct {
	Name      string `toml:"name"`
	Kind      string `toml:"kind"`
	RuleClass string `toml:"rule_class"`
	File      string `toml:"file"`
	Line      uint32 `toml:"line"`
	Col       uint32 `toml:"col"`
	Generator string `toml:"generator"`
}

// MacroTrace records one macro instance declared at the top level.
type MacroTrace struct {
	Class     string `toml:"class"`
	DefinedIn string `toml:"defined_in"`
	Name      string `toml:"name"`
	Depth     int    `toml:"depth"`
}

// ExpansionTrace records the expansion of one macro instance: the
// instance coordinates plus the targets the expansion declared.
type ExpansionTrace struct {
	Class     string        `toml:"class"`
	DefinedIn string        `toml:"defined_in"`
	Name      string        `toml:"name"`
	Depth     int           `toml:"depth"`
	Targets   []TargetTrace `toml:"target"`
}

// TraceError is a trace that failed to load or validate. Code selects
// the diagnostic classification for reporting.
type TraceError struct {
	Path string
	Code diag.Code
	Err  error
}

func (e *TraceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *TraceError) Unwrap() error { return e.Err }

// Load reads and validates one trace file. Malformed TOML and structural
// problems come back as a *TraceError; whether a trace replays cleanly
// is decided later, by the builders.
func Load(path string) (*Trace, error) {
	var tr Trace
	if _, err := toml.DecodeFile(path, &tr); err != nil {
		code := diag.TraceUnreadable
		var perr toml.ParseError
		if errors.As(err, &perr) {
			code = diag.TraceInvalid
		}
		return nil, &TraceError{Path: path, Code: code, Err: err}
	}
	tr.Path = path
	if err := tr.validate(); err != nil {
		return nil, err
	}
	return &tr, nil
}

func (t *Trace) validate() error {
	fail := func(code diag.Code, format string, args ...any) error {
		return &TraceError{Path: t.Path, Code: code, Err: fmt.Errorf(format, args...)}
	}
	if len(t.Pieces) == 0 {
		return fail(diag.TraceInvalid, "trace declares no pieces")
	}
	for i := range t.Pieces {
		pt := &t.Pieces[i]
		if _, err := label.ParsePackageID(pt.Package); err != nil {
			return fail(diag.TraceBadPackage, "piece %d: %w", i, err)
		}
		scope := pt.Package
		if _, err := piece.ParseVisibilityPolicy(pt.Visibility); err != nil {
			return fail(diag.TraceInvalid, "piece %s: %w", scope, err)
		}
		for _, s := range pt.Loads {
			if _, err := label.ParseLabel(s); err != nil {
				return fail(diag.TraceBadLabel, "piece %s: load: %w", scope, err)
			}
		}
		for j := range pt.Targets {
			if err := validateTargetTrace(&pt.Targets[j]); err != nil {
				return fail(traceCodeFor(err), "piece %s: %w", scope, err)
			}
		}
		for j := range pt.Macros {
			mt := &pt.Macros[j]
			if err := validateInstanceTrace(mt.Class, mt.DefinedIn, mt.Name, mt.Depth); err != nil {
				return fail(traceCodeFor(err), "piece %s: macro: %w", scope, err)
			}
		}
		for j := range pt.Expansions {
			xt := &pt.Expansions[j]
			if err := validateInstanceTrace(xt.Class, xt.DefinedIn, xt.Name, xt.Depth); err != nil {
				return fail(traceCodeFor(err), "piece %s: expansion: %w", scope, err)
			}
			for k := range xt.Targets {
				if err := validateTargetTrace(&xt.Targets[k]); err != nil {
					return fail(traceCodeFor(err), "piece %s: expansion %q: %w", scope, xt.Name, err)
				}
			}
		}
	}
	return nil
}

// badKindError marks kind problems so traceCodeFor can classify them.
type badKindError struct{ err error }

func (e badKindError) Error() string { return e.err.Error() }
func (e badKindError) Unwrap() error { return e.err }

// badLabelError marks label problems so traceCodeFor can classify them.
type badLabelError struct{ err error }

func (e badLabelError) Error() string { return e.err.Error() }
func (e badLabelError) Unwrap() error { return e.err }

func traceCodeFor(err error) diag.Code {
	var kind badKindError
	if errors.As(err, &kind) {
		return diag.TraceBadKind
	}
	var lbl badLabelError
	if errors.As(err, &lbl) {
		return diag.TraceBadLabel
	}
	return diag.TraceInvalid
}

func validateTargetTrace(tt *TargetTrace) error {
	if tt.Name == "" {
		return errors.New("target with no name")
	}
	if _, err := piece.ParseTargetKind(tt.Kind); err != nil {
		return badKindError{fmt.Errorf("target %q: %w", tt.Name, err)}
	}
	return nil
}

func validateInstanceTrace(class, definedIn, name string, depth int) error {
	if class == "" {
		return errors.New("instance with no class")
	}
	if name == "" {
		return fmt.Errorf("instance of class %q with no name", class)
	}
	if definedIn == "" {
		return fmt.Errorf("instance %q: class %q has no defining label", name, class)
	}
	if _, err := label.ParseLabel(definedIn); err != nil {
		return badLabelError{fmt.Errorf("instance %q: %w", name, err)}
	}
	if depth < 0 {
		return fmt.Errorf("instance %q: negative same-name depth %d", name, depth)
	}
	return nil
}

// CanonicalName renders the piece's package in canonical form.
func (pt *PieceTrace) CanonicalName() string {
	if pkg, err := label.ParsePackageID(pt.Package); err == nil {
		return pkg.CanonicalForm()
	}
	return pt.Package
}

// PackageID parses the piece's package coordinate.
func (pt *PieceTrace) PackageID() (label.PackageID, error) {
	return label.ParsePackageID(pt.Package)
}

// Identity derives the identity of the block's top-level piece.
func (pt *PieceTrace) Identity() (piece.Identity, error) {
	pkg, err := pt.PackageID()
	if err != nil {
		return piece.Identity{}, err
	}
	return piece.NewIdentity(pkg, label.Label{Pkg: pkg, Name: piece.BuildFileName}), nil
}

// Instance constructs the macro instance an expansion describes.
func (xt *ExpansionTrace) Instance() (*macro.Instance, error) {
	defLabel, err := label.ParseLabel(xt.DefinedIn)
	if err != nil {
		return nil, err
	}
	cls, err := macro.NewClass(xt.Class, defLabel)
	if err != nil {
		return nil, err
	}
	return macro.NewInstance(cls, xt.Name, normalDepth(xt.Depth))
}

// InstanceID returns the expansion's instance id, "name" or
// "name:<depth>" for nested same-name instances.
func (xt *ExpansionTrace) InstanceID() string {
	if d := normalDepth(xt.Depth); d > 1 {
		return fmt.Sprintf("%s:%d", xt.Name, d)
	}
	return xt.Name
}

// OrphanMessage is the diagnostic text for an expansion whose instance
// was never recorded by the top-level batch.
func (xt *ExpansionTrace) OrphanMessage() string {
	return fmt.Sprintf("expansion of %q does not correspond to a recorded macro instance", xt.InstanceID())
}

// Identity derives the identity of the expansion's macro piece within
// the block pt.
func (xt *ExpansionTrace) Identity(pt *PieceTrace) (piece.Identity, error) {
	pkg, err := pt.PackageID()
	if err != nil {
		return piece.Identity{}, err
	}
	defLabel, err := label.ParseLabel(xt.DefinedIn)
	if err != nil {
		return piece.Identity{}, err
	}
	return piece.NewMacroIdentity(pkg, defLabel, xt.Class, xt.InstanceID()), nil
}

// Instance constructs the macro instance a top-level record describes.
func (mt *MacroTrace) Instance() (*macro.Instance, error) {
	defLabel, err := label.ParseLabel(mt.DefinedIn)
	if err != nil {
		return nil, err
	}
	cls, err := macro.NewClass(mt.Class, defLabel)
	if err != nil {
		return nil, err
	}
	return macro.NewInstance(cls, mt.Name, normalDepth(mt.Depth))
}

// normalDepth treats the zero value as the outermost depth.
func normalDepth(d int) int {
	if d == 0 {
		return 1
	}
	return d
}
