package diag

import (
	"strings"
	"testing"
)

func TestBagCapAndAdd(t *testing.T) {
	b := NewBag(2)
	if !b.Add(NewError(EvalDuplicateTarget, "//a", "first")) {
		t.Fatalf("first Add rejected")
	}
	if !b.Add(New(SevWarning, EvalInfo, "//a", "second")) {
		t.Fatalf("second Add rejected")
	}
	if b.Add(New(SevInfo, EvalInfo, "//a", "third")) {
		t.Fatalf("Add over cap accepted")
	}
	if b.Len() != 2 || b.Cap() != 2 {
		t.Fatalf("Len = %d, Cap = %d", b.Len(), b.Cap())
	}
}

func TestBagSeverityQueries(t *testing.T) {
	b := NewBag(8)
	b.Add(New(SevInfo, TraceInfo, "//a", "loaded"))
	if b.HasWarnings() || b.HasErrors() {
		t.Fatalf("info-only bag reports warnings/errors")
	}
	b.Add(New(SevWarning, NamespaceViolation, "//a:m", "escapes namespace"))
	if !b.HasWarnings() || b.HasErrors() {
		t.Fatalf("warning bag misreported: warnings=%v errors=%v", b.HasWarnings(), b.HasErrors())
	}
	b.Add(NewError(EvalDuplicateTarget, "//a", "duplicate"))
	if !b.HasErrors() {
		t.Fatalf("error not detected")
	}
}

func TestBagSortIsDeterministic(t *testing.T) {
	b := NewBag(8)
	b.Add(New(SevInfo, EvalInfo, "//b", "late piece"))
	b.Add(NewError(EvalDuplicateTarget, "//a", "dup").WithTarget("walls"))
	b.Add(New(SevWarning, NamespaceViolation, "//a", "ns").WithTarget("walls"))
	b.Add(NewError(EvalBadTarget, "//a", "bad").WithTarget("arch"))

	b.Sort()
	items := b.Items()

	// piece asc, then target asc, then severity desc
	if items[0].Piece != "//a" || items[0].Target != "arch" {
		t.Fatalf("items[0] = %+v", items[0])
	}
	if items[1].Target != "walls" || items[1].Severity != SevError {
		t.Fatalf("items[1] = %+v", items[1])
	}
	if items[2].Target != "walls" || items[2].Severity != SevWarning {
		t.Fatalf("items[2] = %+v", items[2])
	}
	if items[3].Piece != "//b" {
		t.Fatalf("items[3] = %+v", items[3])
	}
}

func TestBagDedup(t *testing.T) {
	b := NewBag(8)
	d := NewError(EvalDuplicateTarget, "//a", "dup").WithTarget("walls")
	b.Add(d)
	b.Add(d)
	b.Add(NewError(EvalDuplicateTarget, "//a", "dup").WithTarget("roof"))

	b.Dedup()
	if b.Len() != 2 {
		t.Fatalf("Dedup kept %d items, want 2", b.Len())
	}
}

func TestBagMergeGrowsCap(t *testing.T) {
	a := NewBag(1)
	a.Add(New(SevInfo, TraceInfo, "//a", "one"))
	other := NewBag(2)
	other.Add(New(SevInfo, TraceInfo, "//b", "two"))
	other.Add(New(SevInfo, TraceInfo, "//c", "three"))

	a.Merge(other)
	if a.Len() != 3 {
		t.Fatalf("merged Len = %d, want 3", a.Len())
	}
	a.Merge(nil)
	if a.Len() != 3 {
		t.Fatalf("nil merge changed the bag")
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(8)
	r := NewDedupReporter(BagReporter{Bag: bag})

	r.Report(EvalDuplicateTarget, SevError, "//a", "walls", "dup")
	r.Report(EvalDuplicateTarget, SevError, "//a", "walls", "dup")
	r.Report(EvalDuplicateTarget, SevError, "//a", "roof", "dup")

	if bag.Len() != 2 {
		t.Fatalf("DedupReporter forwarded %d, want 2", bag.Len())
	}
}

func TestCodeIDRanges(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{TraceInvalid, "TRC1002"},
		{EvalDuplicateTarget, "EVL2001"},
		{NamespaceViolation, "NSP3001"},
		{CacheReadError, "CCH4001"},
		{UnknownCode, "E0000"},
	}
	for _, tt := range tests {
		if got := tt.code.ID(); got != tt.want {
			t.Errorf("Code(%d).ID() = %q, want %q", tt.code, got, tt.want)
		}
	}
	if !strings.Contains(NamespaceViolation.String(), "namespace violation") {
		t.Errorf("String() = %q", NamespaceViolation.String())
	}
}

func TestFprintShape(t *testing.T) {
	bag := NewBag(4)
	bag.Add(NewError(EvalDuplicateTarget, "//srcs/app", "duplicate name").WithTarget("walls"))
	bag.Add(New(SevInfo, TraceInfo, "", "loaded 1 trace"))

	var sb strings.Builder
	Fprint(&sb, bag, false)
	out := sb.String()

	if !strings.Contains(out, "//srcs/app: ERROR EVL2001: duplicate name (target walls)") {
		t.Errorf("unexpected rendering:\n%s", out)
	}
	if !strings.Contains(out, "<input>: INFO TRC1000: loaded 1 trace") {
		t.Errorf("unscoped rendering wrong:\n%s", out)
	}
}
