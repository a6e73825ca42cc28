package piece

import (
	"sort"

	"mason/internal/label"
	"mason/internal/macro"
)

// ForMacro is the piece produced by expanding one macro instance. It
// shares the package with a finalized *ForBuildFile sibling and reads
// metadata and declarations through it. The namespace violation set is
// materialized at finalize and is always present, possibly empty.
type ForMacro struct {
	pieceCore
	evaluated  *macro.Instance
	buildFile  *ForBuildFile
	violations map[string]struct{}
}

// EvaluatedMacro returns the macro instance this piece is the expansion
// of.
func (p *ForMacro) EvaluatedMacro() *macro.Instance { return p.evaluated }

// DeclaringPackage returns the package of the .mac file defining the
// evaluated macro's class.
func (p *ForMacro) DeclaringPackage() label.PackageID {
	return p.evaluated.Class.DefiningLabel.Pkg
}

func (p *ForMacro) Metadata() *Metadata         { return p.buildFile.meta }
func (p *ForMacro) Declarations() *Declarations { return p.buildFile.decls }

func (p *ForMacro) BuildFilePiece() *ForBuildFile { return p.buildFile }

func (p *ForMacro) Target(name string) (*Target, error) {
	return p.targetOrErr(name, p.buildFile.meta)
}

// TargetHereOrInBuildFile looks the name up in the piece's own table,
// then in the build file sibling's. Other macro pieces of the package
// are never consulted.
func (p *ForMacro) TargetHereOrInBuildFile(name string) (*Target, bool) {
	if t, ok := p.find(name); ok {
		return t, true
	}
	return p.buildFile.find(name)
}

// CheckMacroNamespaceCompliance reports whether t was flagged during
// evaluation as escaping the evaluated macro's namespace. Panics if t
// does not belong to this piece.
func (p *ForMacro) CheckMacroNamespaceCompliance(t *Target) error {
	assertOwnedBy(p, t)
	if _, bad := p.violations[t.name]; bad {
		return &MacroNamespaceError{Target: t.Label(), Macro: p.evaluated.Name}
	}
	return nil
}

// NamespaceViolations returns the sorted names of targets flagged by the
// recorder. Empty, never nil semantics: a clean piece reports a zero
// length slice.
func (p *ForMacro) NamespaceViolations() []string {
	out := make([]string, 0, len(p.violations))
	for name := range p.violations {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
