package piece

// ForBuildFile is the piece produced by evaluating a BUILD.mason file:
// the package's top-level targets and macro declarations, plus the
// package metadata and declarations every sibling macro piece reads
// through it.
type ForBuildFile struct {
	pieceCore
	meta  *Metadata
	decls *Declarations
}

func (p *ForBuildFile) Metadata() *Metadata         { return p.meta }
func (p *ForBuildFile) Declarations() *Declarations { return p.decls }

// BuildFilePiece returns the piece itself: a top-level piece is its own
// build file piece.
func (p *ForBuildFile) BuildFilePiece() *ForBuildFile { return p }

func (p *ForBuildFile) Target(name string) (*Target, error) {
	return p.targetOrErr(name, p.meta)
}

// TargetHereOrInBuildFile is plain lookup for the top-level shape; there
// is no further piece to fall back to.
func (p *ForBuildFile) TargetHereOrInBuildFile(name string) (*Target, bool) {
	return p.find(name)
}

// CheckMacroNamespaceCompliance always passes for top-level targets:
// names declared directly in a build file are not namespace-constrained.
func (p *ForBuildFile) CheckMacroNamespaceCompliance(t *Target) error {
	assertOwnedBy(p, t)
	return nil
}
