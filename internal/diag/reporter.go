package diag

// Reporter is the minimal contract for receiving diagnostics from the
// replay and evaluation layers. Implementations: BagReporter (collects
// into a Bag), DedupReporter (suppresses repeats).
type Reporter interface {
	Report(code Code, sev Severity, pieceName, targetName, msg string)
}

// BagReporter writes every reported diagnostic into Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(code Code, sev Severity, pieceName, targetName, msg string) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(Diagnostic{
		Severity: sev,
		Code:     code,
		Message:  msg,
		Piece:    pieceName,
		Target:   targetName,
	})
}

type dedupKey struct {
	code   Code
	sev    Severity
	piece  string
	target string
	msg    string
}

// DedupReporter wraps another Reporter and suppresses duplicate
// diagnostics with the same code, severity, scope and message.
type DedupReporter struct {
	next Reporter
	seen map[dedupKey]struct{}
}

// NewDedupReporter returns a Reporter that forwards unique diagnostics
// to next.
func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{
		next: next,
		seen: make(map[dedupKey]struct{}),
	}
}

func (r *DedupReporter) Report(code Code, sev Severity, pieceName, targetName, msg string) {
	if r == nil {
		return
	}
	key := dedupKey{
		code:   code,
		sev:    sev,
		piece:  pieceName,
		target: targetName,
		msg:    msg,
	}
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	if r.next != nil {
		r.next.Report(code, sev, pieceName, targetName, msg)
	}
}
