package diag

// Diagnostic is one finding scoped to a package piece and, optionally,
// a target within it. Piece holds the canonical piece name ("//pkg" or
// "//pkg:instance"); both scope fields may be empty for process-level
// findings such as unreadable input.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Piece    string
	Target   string
}

// New builds a diagnostic scoped to a piece.
func New(sev Severity, code Code, pieceName, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Message:  msg,
		Piece:    pieceName,
	}
}

// NewError is New with SevError.
func NewError(code Code, pieceName, msg string) Diagnostic {
	return New(SevError, code, pieceName, msg)
}

// WithTarget narrows the diagnostic to one target of the piece.
func (d Diagnostic) WithTarget(name string) Diagnostic {
	d.Target = name
	return d
}
