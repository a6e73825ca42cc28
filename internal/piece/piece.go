// Package piece models immutable package pieces: the result of
// evaluating one BUILD.mason file, or one macro expansion within it.
// Pieces are produced by builders, identified by pure Identity values,
// and safe for unsynchronized concurrent reads once built.
package piece

import (
	"fmt"
	"iter"

	"mason/internal/label"
	"mason/internal/macro"
)

// Piece is a finalized package piece. Exactly two implementations
// exist: *ForBuildFile and *ForMacro. The interface is sealed.
type Piece interface {
	// Identity returns the piece's pure identity value.
	Identity() Identity
	// Metadata returns the package metadata. Macro pieces delegate to
	// their build file sibling.
	Metadata() *Metadata
	// Declarations returns the build-file-level declarations. Macro
	// pieces delegate to their build file sibling.
	Declarations() *Declarations
	// BuildFilePiece returns the top-level piece of the package this
	// piece belongs to. A *ForBuildFile returns itself.
	BuildFilePiece() *ForBuildFile
	// Targets iterates the piece's own targets in name-sorted order.
	Targets() iter.Seq2[string, *Target]
	// TargetsOfKind iterates the piece's own targets of one kind, in
	// name-sorted order, without copying.
	TargetsOfKind(kind TargetKind) iter.Seq[*Target]
	// TargetNames returns a sorted copy of the piece's target names.
	TargetNames() []string
	// NumTargets returns the number of targets the piece owns.
	NumTargets() int
	// Target returns the named target of this piece, or a
	// *NoSuchTargetError. Only the piece's own table is consulted.
	Target(name string) (*Target, error)
	// TargetHereOrInBuildFile returns the named target from this piece,
	// falling back to the package's build file piece. It never consults
	// other macro pieces.
	TargetHereOrInBuildFile(name string) (*Target, bool)
	// CheckMacroNamespaceCompliance returns a *MacroNamespaceError when
	// t's name escapes the namespace of the macro that declared it.
	// Panics if t does not belong to this piece.
	CheckMacroNamespaceCompliance(t *Target) error
	// Macros returns the macro instances recorded during evaluation, in
	// declaration order.
	Macros() []*macro.Instance
	// MacroByName returns the outermost recorded macro instance with
	// the given name, or nil.
	MacroByName(name string) *macro.Instance
	// Loads returns the .mac labels loaded while producing this piece.
	Loads() []label.Label
	// ComputationSteps returns the interpreter's step count for the
	// evaluation that produced this piece.
	ComputationSteps() uint64

	fmt.Stringer
	sealedPiece()
}

// pieceCore is the finalized state shared by both piece shapes.
type pieceCore struct {
	id       Identity
	names    []string
	byName   map[string]*Target
	macros   []*macro.Instance
	macroIDs map[string]*macro.Instance
	loads    []label.Label
	steps    uint64
}

func (c *pieceCore) sealedPiece() {}

func (c *pieceCore) Identity() Identity { return c.id }

func (c *pieceCore) Targets() iter.Seq2[string, *Target] {
	return func(yield func(string, *Target) bool) {
		for _, name := range c.names {
			if !yield(name, c.byName[name]) {
				return
			}
		}
	}
}

func (c *pieceCore) TargetsOfKind(kind TargetKind) iter.Seq[*Target] {
	return func(yield func(*Target) bool) {
		for _, name := range c.names {
			t := c.byName[name]
			if t.kind != kind {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

func (c *pieceCore) TargetNames() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *pieceCore) NumTargets() int { return len(c.names) }

func (c *pieceCore) find(name string) (*Target, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// targetOrErr resolves name against the piece's own table and shapes
// the miss according to the package metadata.
func (c *pieceCore) targetOrErr(name string, meta *Metadata) (*Target, error) {
	if t, ok := c.find(name); ok {
		return t, nil
	}
	err := &NoSuchTargetError{
		Piece:    c.id,
		Name:     name,
		Succinct: meta.SuccinctTargetNotFoundErrors(),
	}
	if !err.Succinct {
		err.Suggestion = suggestTargetName(name, c.names)
	}
	if lbl, lerr := label.NewLabel(c.id.Pkg, name); lerr == nil {
		err.Label = lbl
	}
	return nil, err
}

func (c *pieceCore) Macros() []*macro.Instance {
	out := make([]*macro.Instance, len(c.macros))
	copy(out, c.macros)
	return out
}

func (c *pieceCore) MacroByName(name string) *macro.Instance {
	return c.macroIDs[name]
}

func (c *pieceCore) Loads() []label.Label {
	out := make([]label.Label, len(c.loads))
	copy(out, c.loads)
	return out
}

func (c *pieceCore) ComputationSteps() uint64 { return c.steps }

func (c *pieceCore) String() string {
	return "package piece " + c.id.String()
}

// assertOwnedBy panics unless t belongs to p. Compliance checking on a
// foreign target is a programmer error, not a reportable condition.
func assertOwnedBy(p Piece, t *Target) {
	if t == nil {
		panic("piece: nil target")
	}
	if t.owner != p {
		panic(fmt.Sprintf("piece: target %q belongs to %v, not to %v", t.name, t.owner, p))
	}
}
