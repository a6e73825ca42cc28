package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fortio.org/safecast"

	"mason/internal/diag"
	"mason/internal/eval"
	"mason/internal/label"
	"mason/internal/piece"
)

// Options tune how traces are replayed.
type Options struct {
	// WorkspaceName is used for blocks that do not record one, typically
	// the [workspace] name from mason.toml.
	WorkspaceName string
	// Succinct forces succinct target-not-found errors on every piece,
	// regardless of what the block records.
	Succinct bool
	// MaxDiagnostics caps the bag produced by Apply.
	MaxDiagnostics int
}

// Outcome is the result of replaying one trace: every finalized piece in
// block order (build file piece first, its expansions after), plus the
// evaluation diagnostics.
type Outcome struct {
	Pieces []piece.Piece
	Bag    *diag.Bag
}

// Apply replays every block of tr in order, emitting per-piece events
// through ec. Builder-level problems land in the outcome's bag; Apply
// itself fails only on cancellation or a trace that escaped validation.
func Apply(ctx context.Context, ec *eval.Context, tr *Trace, opts Options) (*Outcome, error) {
	bag := diag.NewBag(opts.MaxDiagnostics)
	rep := diag.NewDedupReporter(diag.BagReporter{Bag: bag})
	out := &Outcome{Bag: bag}

	for i := range tr.Pieces {
		pt := &tr.Pieces[i]
		name := pt.CanonicalName()

		ec.Emit(eval.Event{Piece: name, Stage: eval.StageEvaluate, Status: eval.StatusWorking})
		bf, err := BuildFilePiece(ctx, ec, pt, opts, rep)
		if err != nil {
			ec.Emit(eval.Event{Piece: name, Stage: eval.StageEvaluate, Status: eval.StatusError, Err: err})
			if isCancel(err) {
				report(rep, diag.EvalCanceled, diag.SevError, name, "", err.Error())
				return out, err
			}
			report(rep, diag.TraceInvalid, diag.SevError, name, "", err.Error())
			continue
		}
		out.Pieces = append(out.Pieces, bf)
		ec.Emit(eval.Event{Piece: name, Stage: eval.StageFinalize, Status: eval.StatusDone})

		for j := range pt.Expansions {
			xt := &pt.Expansions[j]
			if bf.MacroByName(xt.InstanceID()) == nil {
				// diagnosed by the snapshot check in BuildFilePiece
				continue
			}
			xname := name + ":" + xt.InstanceID()
			ec.Emit(eval.Event{Piece: xname, Stage: eval.StageExpand, Status: eval.StatusWorking})
			mp, err := ExpansionPiece(ctx, ec, pt, xt, bf, opts, rep)
			if err != nil {
				ec.Emit(eval.Event{Piece: xname, Stage: eval.StageExpand, Status: eval.StatusError, Err: err})
				if isCancel(err) {
					report(rep, diag.EvalCanceled, diag.SevError, xname, "", err.Error())
					return out, err
				}
				continue
			}
			out.Pieces = append(out.Pieces, mp)
			ec.Emit(eval.Event{Piece: xname, Stage: eval.StageExpand, Status: eval.StatusDone})
		}
	}
	return out, nil
}

// BuildFilePiece replays the top-level records of one block and
// finalizes the package's build file piece. Records the builders reject
// are reported through rep and skipped; the piece still finalizes. When
// the block carries expansions, a BuildPartial snapshot is read after
// the top-level batch to verify each expansion names a recorded macro.
func BuildFilePiece(ctx context.Context, ec *eval.Context, pt *PieceTrace, opts Options, rep diag.Reporter) (*piece.ForBuildFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scope := pt.CanonicalName()

	cfg, err := builderConfig(pt, opts)
	if err != nil {
		return nil, fmt.Errorf("piece %s: %w", pt.Package, err)
	}
	cfg.CPUPermits = ec.Permits()

	b := piece.NewForBuildFileBuilder(cfg)
	def := ec.WithBuilder(b).ActiveBuilder()

	applied := applyTargets(ctx, ec, def, scope, pt.Targets, rep)
	applied += applyMacros(def, scope, pt.Macros, rep)
	applied += applyLoads(def, pt.Loads)
	addSteps(def, applied)

	if len(pt.Expansions) > 0 {
		reportOrphanExpansions(def.BuildPartial(), pt, scope, rep)
	}
	return b.FinishBuild()
}

// ExpansionPiece replays one expansion against the finalized sibling,
// finalizes the macro piece, and reports its namespace violations as
// warnings.
func ExpansionPiece(ctx context.Context, ec *eval.Context, pt *PieceTrace, xt *ExpansionTrace, sibling *piece.ForBuildFile, opts Options, rep diag.Reporter) (*piece.ForMacro, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scope := pt.CanonicalName() + ":" + xt.InstanceID()

	inst, err := xt.Instance()
	if err != nil {
		report(rep, diag.EvalBadMacro, diag.SevError, scope, "", err.Error())
		return nil, fmt.Errorf("piece %s: %w", scope, err)
	}
	b := piece.NewForMacroBuilder(piece.MacroConfig{
		Evaluated:      inst,
		BuildFile:      sibling,
		CPUPermits:     ec.Permits(),
		GeneratorNames: generatorNames(xt.Targets),
	})
	def := ec.WithBuilder(b).ActiveBuilder()

	addSteps(def, applyTargets(ctx, ec, def, scope, xt.Targets, rep))

	mp, err := b.FinishBuild()
	if err != nil {
		return nil, fmt.Errorf("piece %s: %w", scope, err)
	}
	reportViolations(mp, scope, rep)
	return mp, nil
}

func builderConfig(pt *PieceTrace, opts Options) (piece.Config, error) {
	pkg, err := pt.PackageID()
	if err != nil {
		return piece.Config{}, err
	}
	vis, err := piece.ParseVisibilityPolicy(pt.Visibility)
	if err != nil {
		return piece.Config{}, err
	}
	workspaceName := pt.Workspace
	if workspaceName == "" {
		workspaceName = opts.WorkspaceName
	}
	cfg := piece.Config{
		Pkg:                          pkg,
		WorkspaceName:                workspaceName,
		AssociatedModuleName:         pt.ModuleName,
		AssociatedModuleVersion:      pt.ModuleVersion,
		Visibility:                   vis,
		SuccinctTargetNotFoundErrors: opts.Succinct || pt.SuccinctErrors,
		GeneratorNames:               generatorNames(pt.Targets),
	}
	if len(pt.RepoMapping) > 0 {
		entries := make(map[string]label.RepoName, len(pt.RepoMapping))
		for apparent, canonical := range pt.RepoMapping {
			entries[apparent] = label.RepoName(canonical)
		}
		cfg.RepoMapping = label.NewRepoMapping(pkg.Repo, entries)
	}
	return cfg, nil
}

func applyTargets(ctx context.Context, ec *eval.Context, def piece.Definer, scope string, records []TargetTrace, rep diag.Reporter) int {
	logger := ec.Logger()
	traceOn := logger != nil && logger.Enabled(ctx, eval.LevelTrace)

	applied := 0
	for i := range records {
		rec := &records[i]
		kind, err := piece.ParseTargetKind(rec.Kind)
		if err != nil {
			report(rep, diag.EvalBadTarget, diag.SevError, scope, rec.Name, err.Error())
			continue
		}
		_, err = def.AddTarget(piece.TargetSpec{
			Name:      rec.Name,
			Kind:      kind,
			RuleClass: rec.RuleClass,
			Location:  piece.Location{File: rec.File, Line: rec.Line, Col: rec.Col},
		})
		if err != nil {
			code := diag.EvalBadTarget
			var dup *piece.DuplicateTargetError
			if errors.As(err, &dup) {
				code = diag.EvalDuplicateTarget
			}
			report(rep, code, diag.SevError, scope, rec.Name, err.Error())
			continue
		}
		if traceOn {
			logger.LogAttrs(ctx, eval.LevelTrace, "target applied",
				slog.String("piece", scope), slog.String("target", rec.Name))
		}
		applied++
	}
	return applied
}

func applyMacros(def piece.Definer, scope string, records []MacroTrace, rep diag.Reporter) int {
	applied := 0
	for i := range records {
		inst, err := records[i].Instance()
		if err != nil {
			report(rep, diag.EvalBadMacro, diag.SevError, scope, records[i].Name, err.Error())
			continue
		}
		if err := def.RecordMacro(inst); err != nil {
			code := diag.EvalDuplicateMacro
			var dup *piece.DuplicateTargetError
			if errors.As(err, &dup) {
				code = diag.EvalDuplicateTarget
			}
			report(rep, code, diag.SevError, scope, inst.ID(), err.Error())
			continue
		}
		applied++
	}
	return applied
}

func applyLoads(def piece.Definer, records []string) int {
	if len(records) == 0 {
		return 0
	}
	loads := make([]label.Label, 0, len(records))
	for _, s := range records {
		lbl, err := label.ParseLabel(s)
		if err != nil {
			continue
		}
		loads = append(loads, lbl)
	}
	def.SetLoads(loads)
	return len(loads)
}

// reportOrphanExpansions flags expansions whose instance was never
// recorded by the top-level batch. The snapshot sees the committed
// state without finalizing the builder.
func reportOrphanExpansions(snap *piece.Snapshot, pt *PieceTrace, scope string, rep diag.Reporter) {
	recorded := make(map[string]bool)
	for _, inst := range snap.Macros() {
		recorded[inst.ID()] = true
	}
	for i := range pt.Expansions {
		xt := &pt.Expansions[i]
		if recorded[xt.InstanceID()] {
			continue
		}
		report(rep, diag.EvalBadMacro, diag.SevError, scope, xt.InstanceID(), xt.OrphanMessage())
	}
}

func reportViolations(mp *piece.ForMacro, scope string, rep diag.Reporter) {
	for _, name := range mp.NamespaceViolations() {
		t, err := mp.Target(name)
		if err != nil {
			continue
		}
		if cerr := mp.CheckMacroNamespaceCompliance(t); cerr != nil {
			report(rep, diag.NamespaceViolation, diag.SevWarning, scope, name, cerr.Error())
		}
	}
}

func generatorNames(records []TargetTrace) map[piece.Location]string {
	var gen map[piece.Location]string
	for i := range records {
		rec := &records[i]
		if rec.Generator == "" {
			continue
		}
		if gen == nil {
			gen = make(map[piece.Location]string)
		}
		gen[piece.Location{File: rec.File, Line: rec.Line, Col: rec.Col}] = rec.Generator
	}
	return gen
}

func addSteps(def piece.Definer, applied int) {
	if n, err := safecast.Conv[uint64](applied); err == nil {
		def.AddSteps(n)
	}
}

func report(rep diag.Reporter, code diag.Code, sev diag.Severity, pieceName, targetName, msg string) {
	if rep == nil {
		return
	}
	rep.Report(code, sev, pieceName, targetName, msg)
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
