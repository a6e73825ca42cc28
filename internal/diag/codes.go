package diag

import (
	"fmt"
)

type Code uint16

const (
	// UnknownCode is the fallback for unclassified findings.
	UnknownCode Code = 0

	// Trace loading
	TraceInfo       Code = 1000
	TraceUnreadable Code = 1001
	TraceInvalid    Code = 1002
	TraceBadLabel   Code = 1003
	TraceBadKind    Code = 1004
	TraceBadPackage Code = 1005

	// Evaluation (builder-driving)
	EvalInfo            Code = 2000
	EvalDuplicateTarget Code = 2001
	EvalBadTarget       Code = 2002
	EvalDuplicateMacro  Code = 2003
	EvalNoSuchTarget    Code = 2004
	EvalBadMacro        Code = 2005
	EvalCanceled        Code = 2006

	// Macro namespace compliance
	NamespaceInfo      Code = 3000
	NamespaceViolation Code = 3001

	// Piece cache I/O
	CacheInfo       Code = 4000
	CacheReadError  Code = 4001
	CacheWriteError Code = 4002
)

var codeDescription = map[Code]string{
	UnknownCode: "unknown error",

	TraceInfo:       "trace info",
	TraceUnreadable: "trace file unreadable",
	TraceInvalid:    "trace structure invalid",
	TraceBadLabel:   "malformed label in trace",
	TraceBadKind:    "unknown target kind in trace",
	TraceBadPackage: "malformed package in trace",

	EvalInfo:            "evaluation info",
	EvalDuplicateTarget: "duplicate target name",
	EvalBadTarget:       "invalid target declaration",
	EvalDuplicateMacro:  "duplicate macro instance",
	EvalNoSuchTarget:    "no such target",
	EvalBadMacro:        "invalid macro declaration",
	EvalCanceled:        "evaluation canceled",

	NamespaceInfo:      "namespace info",
	NamespaceViolation: "macro namespace violation",

	CacheInfo:       "cache info",
	CacheReadError:  "cache read failed",
	CacheWriteError: "cache write failed",
}

// ID returns the stable short identifier, e.g. "EVL2001".
func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("TRC%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("EVL%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("NSP%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("CCH%04d", ic)
	}
	return "E0000"
}

// Title returns the human-readable description of the code.
func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
