package piece

import (
	"errors"
	"strings"
	"testing"

	"mason/internal/macro"
)

func TestNamespaceViolationSet(t *testing.T) {
	bb := NewForBuildFileBuilder(testConfig(t))
	bf, err := bb.FinishBuild()
	if err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}

	mb := NewForMacroBuilder(MacroConfig{Evaluated: kilnInstance(t, "foo"), BuildFile: bf})
	mustAdd(t, mb, TargetSpec{Name: "foo", Kind: KindRule, RuleClass: "kiln"})
	mustAdd(t, mb, TargetSpec{Name: "foo_lib", Kind: KindRule, RuleClass: "kiln"})
	mustAdd(t, mb, TargetSpec{Name: "bar", Kind: KindRule, RuleClass: "kiln"})

	p, err := mb.FinishBuild()
	if err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}

	if got := p.NamespaceViolations(); len(got) != 1 || got[0] != "bar" {
		t.Fatalf("NamespaceViolations = %v, want [bar]", got)
	}

	for _, name := range []string{"foo", "foo_lib"} {
		tgt, err := p.Target(name)
		if err != nil {
			t.Fatalf("Target(%q): %v", name, err)
		}
		if err := p.CheckMacroNamespaceCompliance(tgt); err != nil {
			t.Errorf("CheckMacroNamespaceCompliance(%q) = %v, want nil", name, err)
		}
	}

	bad, err := p.Target("bar")
	if err != nil {
		t.Fatalf("Target(bar): %v", err)
	}
	verr := p.CheckMacroNamespaceCompliance(bad)
	var nsErr *MacroNamespaceError
	if !errors.As(verr, &nsErr) {
		t.Fatalf("CheckMacroNamespaceCompliance(bar) = %v, want *MacroNamespaceError", verr)
	}
	if nsErr.Macro != "foo" {
		t.Errorf("MacroNamespaceError.Macro = %q, want foo", nsErr.Macro)
	}
	if nsErr.Target.Name != "bar" {
		t.Errorf("MacroNamespaceError.Target = %v", nsErr.Target)
	}
	if !strings.Contains(verr.Error(), macro.NamingRuleHint) {
		t.Errorf("error does not reference the naming rule: %q", verr.Error())
	}
}

func TestEmptyViolationSetStaysEmpty(t *testing.T) {
	bb := NewForBuildFileBuilder(testConfig(t))
	bf, err := bb.FinishBuild()
	if err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}

	mb := NewForMacroBuilder(MacroConfig{Evaluated: kilnInstance(t, "fire"), BuildFile: bf})
	mustAdd(t, mb, TargetSpec{Name: "fire", Kind: KindRule, RuleClass: "kiln"})
	p, err := mb.FinishBuild()
	if err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}

	if got := p.NamespaceViolations(); len(got) != 0 {
		t.Fatalf("NamespaceViolations = %v, want empty", got)
	}
	tgt, err := p.Target("fire")
	if err != nil {
		t.Fatalf("Target(fire): %v", err)
	}
	if err := p.CheckMacroNamespaceCompliance(tgt); err != nil {
		t.Fatalf("CheckMacroNamespaceCompliance = %v, want nil", err)
	}
}

func TestTopLevelComplianceIsNoOp(t *testing.T) {
	b := NewForBuildFileBuilder(testConfig(t))
	// a name no macro namespace would accept
	mustAdd(t, b, TargetSpec{Name: "zz-anything", Kind: KindRule, RuleClass: "brick_wall"})
	p, err := b.FinishBuild()
	if err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}
	for _, tgt := range p.byName {
		if err := p.CheckMacroNamespaceCompliance(tgt); err != nil {
			t.Errorf("top-level compliance failed for %q: %v", tgt.Name(), err)
		}
	}
}

func TestComplianceOnForeignTargetPanics(t *testing.T) {
	bf, fire, _ := buildSamplePackage(t)

	walls, err := bf.Target("walls")
	if err != nil {
		t.Fatalf("Target(walls): %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("compliance check on a foreign target did not panic")
		}
	}()
	_ = fire.CheckMacroNamespaceCompliance(walls)
}

func TestComplianceOnNilTargetPanics(t *testing.T) {
	bf, _, _ := buildSamplePackage(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("compliance check on nil target did not panic")
		}
	}()
	_ = bf.CheckMacroNamespaceCompliance(nil)
}

// Violations are recorded at insertion and frozen at finalize; targets
// added through a macro builder between snapshots still land in the set.
func TestViolationsRecordedAcrossSnapshots(t *testing.T) {
	bb := NewForBuildFileBuilder(testConfig(t))
	bf, err := bb.FinishBuild()
	if err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}

	mb := NewForMacroBuilder(MacroConfig{Evaluated: kilnInstance(t, "foo"), BuildFile: bf})
	mustAdd(t, mb, TargetSpec{Name: "stray1", Kind: KindRule, RuleClass: "kiln"})
	_ = mb.BuildPartial()
	mustAdd(t, mb, TargetSpec{Name: "stray2", Kind: KindRule, RuleClass: "kiln"})

	p, err := mb.FinishBuild()
	if err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}
	got := p.NamespaceViolations()
	if len(got) != 2 || got[0] != "stray1" || got[1] != "stray2" {
		t.Fatalf("NamespaceViolations = %v, want [stray1 stray2]", got)
	}
}
