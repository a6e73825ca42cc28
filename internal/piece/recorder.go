package piece

import "sort"

// targetRecorder owns the in-progress target table of one builder:
// insertion, conflict detection, and namespace violation tracking
// against the owning macro instance (nil for top-level builders).
type targetRecorder struct {
	checkConflicts bool
	owner          namespaceOwner
	byName         map[string]*Target
	violations     map[string]struct{}
}

// namespaceOwner is the slice of macro.Instance the recorder needs;
// keeping it narrow spares the recorder from macro construction rules.
type namespaceOwner interface {
	NamespaceContains(targetName string) bool
}

func newTargetRecorder(checkConflicts bool, owner namespaceOwner) *targetRecorder {
	return &targetRecorder{
		checkConflicts: checkConflicts,
		owner:          owner,
		byName:         make(map[string]*Target),
		violations:     make(map[string]struct{}),
	}
}

// add inserts t. With conflict checking on, a duplicate name fails the
// insertion; with it off (trusted replays of already-checked input) the
// newer target replaces the older. Namespace violations are recorded
// either way and never block the insertion.
func (r *targetRecorder) add(t *Target, pieceID Identity) error {
	if prev, exists := r.byName[t.name]; exists && r.checkConflicts {
		return &DuplicateTargetError{
			Piece:    pieceID,
			Name:     t.name,
			Existing: describeTarget(prev),
			Added:    describeTarget(t),
		}
	}
	r.byName[t.name] = t
	if r.owner != nil && !r.owner.NamespaceContains(t.name) {
		r.violations[t.name] = struct{}{}
	}
	return nil
}

func (r *targetRecorder) find(name string) (*Target, bool) {
	t, ok := r.byName[name]
	return t, ok
}

func (r *targetRecorder) len() int { return len(r.byName) }

func (r *targetRecorder) sortedNames() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// violationSet copies the recorded violations. The copy is what outlives
// the recorder inside a finalized macro piece.
func (r *targetRecorder) violationSet() map[string]struct{} {
	out := make(map[string]struct{}, len(r.violations))
	for name := range r.violations {
		out[name] = struct{}{}
	}
	return out
}

func describeTarget(t *Target) string {
	if t.kind == KindRule {
		return t.ruleClass + " rule"
	}
	return t.kind.String()
}
