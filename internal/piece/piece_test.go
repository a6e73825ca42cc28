package piece

import (
	"errors"
	"strings"
	"testing"

	"mason/internal/label"
)

// buildSamplePackage finalizes a build file piece with two macro pieces:
// one clean ("fire"), one with a namespace violation ("glaze").
func buildSamplePackage(t *testing.T) (*ForBuildFile, *ForMacro, *ForMacro) {
	t.Helper()

	bb := NewForBuildFileBuilder(Config{
		Pkg:           pkgID(t, "srcs/app"),
		WorkspaceName: "workshop",
	})
	mustAdd(t, bb, TargetSpec{Name: "walls", Kind: KindRule, RuleClass: "brick_wall"})
	mustAdd(t, bb, TargetSpec{Name: "blueprint.txt", Kind: KindSourceFile})
	mustAdd(t, bb, TargetSpec{Name: "walls.log", Kind: KindOutputFile})
	if err := bb.RecordMacro(kilnInstance(t, "fire")); err != nil {
		t.Fatalf("RecordMacro: %v", err)
	}
	if err := bb.RecordMacro(kilnInstance(t, "glaze")); err != nil {
		t.Fatalf("RecordMacro: %v", err)
	}
	bf, err := bb.FinishBuild()
	if err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}

	fb := NewForMacroBuilder(MacroConfig{Evaluated: kilnInstance(t, "fire"), BuildFile: bf})
	mustAdd(t, fb, TargetSpec{Name: "fire", Kind: KindRule, RuleClass: "kiln"})
	mustAdd(t, fb, TargetSpec{Name: "fire_logs", Kind: KindOutputFile})
	fire, err := fb.FinishBuild()
	if err != nil {
		t.Fatalf("FinishBuild(fire): %v", err)
	}

	gb := NewForMacroBuilder(MacroConfig{Evaluated: kilnInstance(t, "glaze"), BuildFile: bf})
	mustAdd(t, gb, TargetSpec{Name: "glaze", Kind: KindRule, RuleClass: "kiln"})
	mustAdd(t, gb, TargetSpec{Name: "overspill", Kind: KindRule, RuleClass: "kiln"})
	glaze, err := gb.FinishBuild()
	if err != nil {
		t.Fatalf("FinishBuild(glaze): %v", err)
	}

	return bf, fire, glaze
}

func TestTargetLookupMissSuggests(t *testing.T) {
	bf, _, _ := buildSamplePackage(t)

	if _, err := bf.Target("walls"); err != nil {
		t.Fatalf("Target(walls): %v", err)
	}

	_, err := bf.Target("wals")
	var miss *NoSuchTargetError
	if !errors.As(err, &miss) {
		t.Fatalf("Target(wals) = %v, want *NoSuchTargetError", err)
	}
	if miss.Suggestion != "walls" {
		t.Fatalf("Suggestion = %q, want walls", miss.Suggestion)
	}
	if !strings.Contains(err.Error(), `(did you mean "walls"?)`) {
		t.Fatalf("Error() = %q, want embedded suggestion", err.Error())
	}
	if miss.Label != label.MustLabel(bf.Identity().Pkg, "wals") {
		t.Fatalf("Label = %v", miss.Label)
	}
}

func TestTargetLookupMissSuccinct(t *testing.T) {
	bb := NewForBuildFileBuilder(Config{
		Pkg:                          pkgID(t, "srcs/app"),
		SuccinctTargetNotFoundErrors: true,
	})
	mustAdd(t, bb, TargetSpec{Name: "walls", Kind: KindRule, RuleClass: "brick_wall"})
	bf, err := bb.FinishBuild()
	if err != nil {
		t.Fatalf("FinishBuild: %v", err)
	}

	_, err = bf.Target("wals")
	var miss *NoSuchTargetError
	if !errors.As(err, &miss) {
		t.Fatalf("Target(wals) = %v, want *NoSuchTargetError", err)
	}
	if !miss.Succinct || miss.Suggestion != "" {
		t.Fatalf("succinct miss carried a suggestion: %+v", miss)
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Fatalf("succinct rendering leaked a suggestion: %q", err.Error())
	}
	if !strings.Contains(err.Error(), "//srcs/app") {
		t.Fatalf("succinct rendering lost the piece name: %q", err.Error())
	}
}

func TestTargetHereOrInBuildFile(t *testing.T) {
	bf, fire, glaze := buildSamplePackage(t)

	// own table first
	if got, ok := fire.TargetHereOrInBuildFile("fire_logs"); !ok || got.Owner() != Piece(fire) {
		t.Fatalf("own target not found first: %v %v", got, ok)
	}
	// fallback goes to the build file piece only
	if got, ok := fire.TargetHereOrInBuildFile("walls"); !ok || got.Owner() != Piece(bf) {
		t.Fatalf("build file fallback failed: %v %v", got, ok)
	}
	// sibling macro pieces are never consulted
	if _, ok := fire.TargetHereOrInBuildFile("overspill"); ok {
		t.Fatalf("lookup leaked into a sibling macro piece")
	}
	if _, ok := glaze.TargetHereOrInBuildFile("fire_logs"); ok {
		t.Fatalf("lookup leaked into a sibling macro piece")
	}
	// top-level shape has nothing to fall back to
	if _, ok := bf.TargetHereOrInBuildFile("fire_logs"); ok {
		t.Fatalf("top-level lookup found a macro piece target")
	}
}

func TestTargetsOfKind(t *testing.T) {
	bf, _, _ := buildSamplePackage(t)

	var rules []string
	for tgt := range bf.TargetsOfKind(KindRule) {
		rules = append(rules, tgt.Name())
	}
	if len(rules) != 1 || rules[0] != "walls" {
		t.Fatalf("TargetsOfKind(KindRule) = %v", rules)
	}

	// early break must not walk the whole table
	count := 0
	for range bf.TargetsOfKind(KindOutputFile) {
		count++
		break
	}
	if count != 1 {
		t.Fatalf("early break iterated %d times", count)
	}

	for range bf.TargetsOfKind(KindPackageGroup) {
		t.Fatalf("unexpected package group target")
	}
}

func TestMacroPieceDelegation(t *testing.T) {
	bf, fire, _ := buildSamplePackage(t)

	if fire.Metadata() != bf.Metadata() {
		t.Fatalf("macro piece does not share the sibling's metadata")
	}
	if fire.Declarations() != bf.Declarations() {
		t.Fatalf("macro piece does not share the sibling's declarations")
	}
	if fire.BuildFilePiece() != bf {
		t.Fatalf("BuildFilePiece = %v", fire.BuildFilePiece())
	}
	if bf.BuildFilePiece() != bf {
		t.Fatalf("top-level piece is not its own build file piece")
	}
	if got := fire.DeclaringPackage(); got != pkgID(t, "rules") {
		t.Fatalf("DeclaringPackage = %v", got)
	}
	if fire.EvaluatedMacro().Name != "fire" {
		t.Fatalf("EvaluatedMacro = %v", fire.EvaluatedMacro())
	}

	wantID := NewMacroIdentity(
		bf.Identity().Pkg,
		label.MustLabel(pkgID(t, "rules"), "kiln.mac"),
		"kiln_suite",
		"fire",
	)
	if fire.Identity() != wantID {
		t.Fatalf("Identity = %v, want %v", fire.Identity(), wantID)
	}
}
