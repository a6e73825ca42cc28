package piece

import (
	"fmt"

	"mason/internal/label"
	"mason/internal/macro"
)

// NoSuchTargetError reports a target lookup miss on one package piece.
// The succinct rendering skips the piece provenance and the suggestion;
// packages opt into it through their metadata.
type NoSuchTargetError struct {
	Piece      Identity
	Name       string
	Label      label.Label // zero when the name is not even a valid target name
	Suggestion string      // empty when nothing is close, or when succinct
	Succinct   bool
}

func (e *NoSuchTargetError) Error() string {
	if e.Succinct {
		return fmt.Sprintf("no such target %q in %s", e.Name, e.Piece.CanonicalName())
	}
	msg := fmt.Sprintf("no such target %q in package piece %s", e.Name, e.Piece)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}

// MacroNamespaceError reports a target whose name escapes the namespace
// of the macro instance that declared it.
type MacroNamespaceError struct {
	Target label.Label
	Macro  string
}

func (e *MacroNamespaceError) Error() string {
	return fmt.Sprintf("target %s violates the namespace of macro %q: %s",
		e.Target, e.Macro, macro.NamingRuleHint)
}

// DuplicateTargetError reports a name collision inside one piece:
// target against target, or target against recorded macro.
type DuplicateTargetError struct {
	Piece    Identity
	Name     string
	Existing string
	Added    string
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("duplicate name %q in %s: %s conflicts with existing %s",
		e.Name, e.Piece.CanonicalName(), e.Added, e.Existing)
}
