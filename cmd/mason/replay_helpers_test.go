package main

import (
	"context"
	"strings"
	"testing"

	"mason/internal/diag"
	"mason/internal/eval"
	"mason/internal/piece"
	"mason/internal/replay"
)

func traceFixture() *replay.Trace {
	return &replay.Trace{Pieces: []replay.PieceTrace{{
		Package:   "//srcs/app",
		Workspace: "forge",
		Loads:     []string{"//rules:suite.mac"},
		Targets: []replay.TargetTrace{
			{Name: "app", Kind: "rule", RuleClass: "cc_binary"},
			{Name: "main.c", Kind: "source file"},
		},
		Macros: []replay.MacroTrace{
			{Class: "kiln_suite", DefinedIn: "//rules:suite.mac", Name: "tests"},
		},
		Expansions: []replay.ExpansionTrace{
			{
				Class:     "kiln_suite",
				DefinedIn: "//rules:suite.mac",
				Name:      "tests",
				Targets: []replay.TargetTrace{
					{Name: "tests_fast", Kind: "rule", RuleClass: "cc_test"},
					{Name: "stray", Kind: "rule", RuleClass: "cc_test"},
				},
			},
			{
				Class:     "kiln_suite",
				DefinedIn: "//rules:suite.mac",
				Name:      "ghost",
			},
		},
	}}}
}

func TestReadUIMode(t *testing.T) {
	cases := []struct {
		input   string
		want    uiMode
		wantErr bool
	}{
		{"", uiModeAuto, false},
		{"auto", uiModeAuto, false},
		{"ON", uiModeOn, false},
		{" off ", uiModeOff, false},
		{"fancy", "", true},
	}
	for _, tc := range cases {
		got, err := readUIMode(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("readUIMode(%q) expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("readUIMode(%q) error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Errorf("readUIMode(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestPlanBlocksListsEveryPieceName(t *testing.T) {
	procBag := diag.NewBag(100)
	blocks, names := planBlocks([]*replay.Trace{traceFixture()}, 100, procBag)

	if len(blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(blocks))
	}
	want := []string{"//srcs/app", "//srcs/app:tests", "//srcs/app:ghost"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if procBag.Len() != 0 {
		t.Errorf("unexpected planning diagnostics: %v", procBag.Items())
	}
}

func TestPlanBlocksRejectsBadPackage(t *testing.T) {
	procBag := diag.NewBag(100)
	tr := &replay.Trace{Pieces: []replay.PieceTrace{{Package: "not a package"}}}
	blocks, _ := planBlocks([]*replay.Trace{tr}, 100, procBag)

	if len(blocks) != 0 {
		t.Fatalf("blocks = %d, want 0", len(blocks))
	}
	if got := errorCodes(procBag); len(got) != 1 || got[0] != diag.TraceBadPackage {
		t.Fatalf("codes = %v, want [TraceBadPackage]", got)
	}
}

func runRounds(t *testing.T, tr *replay.Trace) ([]replayBlock, []expansionJob, *eval.Result, *eval.Result) {
	t.Helper()
	procBag := diag.NewBag(100)
	blocks, _ := planBlocks([]*replay.Trace{tr}, 100, procBag)
	ropts := replay.Options{MaxDiagnostics: 100}

	round1, err := eval.Run(context.Background(), blockItems(blocks, ropts), eval.Options{Permits: 1})
	if err != nil {
		t.Fatalf("round 1: %v", err)
	}
	items, jobs := planExpansions(blocks, round1, ropts, 100, nil)
	round2, err := eval.Run(context.Background(), items, eval.Options{Permits: 1})
	if err != nil {
		t.Fatalf("round 2: %v", err)
	}
	return blocks, jobs, round1, round2
}

func TestTwoRoundReplayProducesOrderedRows(t *testing.T) {
	blocks, jobs, round1, round2 := runRounds(t, traceFixture())

	if len(jobs) != 1 {
		t.Fatalf("expansion jobs = %d, want 1 (ghost is an orphan)", len(jobs))
	}
	rows := collectRows(blocks, jobs, round1, round2)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].name != "//srcs/app" || rows[1].name != "//srcs/app:tests" {
		t.Fatalf("row order = %q, %q", rows[0].name, rows[1].name)
	}

	bf := rowReport(rows[0])
	if bf.Kind != "build file" || bf.Targets != 2 || bf.Macros != 1 {
		t.Errorf("build file row = %+v", bf)
	}
	mp := rowReport(rows[1])
	if mp.Kind != "macro" || mp.Targets != 2 {
		t.Errorf("macro row = %+v", mp)
	}
	if len(mp.Violations) != 1 || mp.Violations[0] != "stray" {
		t.Errorf("violations = %v, want [stray]", mp.Violations)
	}
}

func TestOrphanExpansionReportedOncePerBlock(t *testing.T) {
	blocks, _, _, _ := runRounds(t, traceFixture())

	orphans := 0
	for _, d := range blocks[0].bag.Items() {
		if d.Code == diag.EvalBadMacro && d.Target == "ghost" {
			orphans++
		}
	}
	if orphans != 1 {
		t.Fatalf("orphan diagnostics = %d, want 1 (snapshot check and planner must deduplicate)", orphans)
	}
}

func TestSelectPiece(t *testing.T) {
	blocks, jobs, round1, round2 := runRounds(t, traceFixture())
	rows := collectRows(blocks, jobs, round1, round2)
	pieces := make([]piece.Piece, 0, len(rows))
	for _, row := range rows {
		pieces = append(pieces, row.p)
	}

	def, err := selectPiece(pieces, "")
	if err != nil {
		t.Fatalf("selectPiece default: %v", err)
	}
	if def != pieces[0] {
		t.Error("default selection is not the first piece")
	}

	named, err := selectPiece(pieces, "//srcs/app:tests")
	if err != nil {
		t.Fatalf("selectPiece named: %v", err)
	}
	if named != pieces[1] {
		t.Error("named selection picked the wrong piece")
	}

	_, err = selectPiece(pieces, "//nope")
	if err == nil || !strings.Contains(err.Error(), "//srcs/app") {
		t.Errorf("missing-piece error should list candidates, got %v", err)
	}

	if _, err := selectPiece(nil, ""); err == nil {
		t.Error("expected error for empty piece list")
	}
}

func TestRowReportCarriesError(t *testing.T) {
	row := pieceRow{name: "//srcs/app", err: context.DeadlineExceeded}
	rep := rowReport(row)
	if rep.Error == "" || rep.Targets != 0 {
		t.Fatalf("report = %+v", rep)
	}
}

func errorCodes(bag *diag.Bag) []diag.Code {
	var codes []diag.Code
	for _, d := range bag.Items() {
		if d.Severity == diag.SevError {
			codes = append(codes, d.Code)
		}
	}
	return codes
}
