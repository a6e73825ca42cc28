package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mason/internal/cache"
	"mason/internal/diag"
	"mason/internal/eval"
	"mason/internal/observ"
	"mason/internal/piece"
	"mason/internal/replay"
	"mason/internal/workspace"
)

var replayCmd = &cobra.Command{
	Use:   "replay [flags] <trace.toml>...",
	Short: "Replay evaluation traces into finalized package pieces",
	Long: `Replay drives recorded builder calls through build file and macro piece
builders, finalizes every package piece, and reports evaluation diagnostics`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Int("jobs", 0, "max parallel piece evaluations (0=auto)")
	replayCmd.Flags().String("ui", "auto", "progress UI mode (auto|on|off)")
	replayCmd.Flags().Bool("cache", false, "read and write the persistent piece cache")
	replayCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

// replayBlock is one [[piece]] block scheduled for evaluation. The
// reporter deduplicates across the block's build file round and its
// expansion planning.
type replayBlock struct {
	pt  *replay.PieceTrace
	id  piece.Identity
	bag *diag.Bag
	rep *diag.DedupReporter
}

// expansionJob is one scheduled macro expansion, index-aligned with the
// second round's items.
type expansionJob struct {
	block int
	name  string
	bag   *diag.Bag
}

// pieceRow pairs a produced piece with its evaluation outcome.
type pieceRow struct {
	name   string
	p      piece.Piece
	cached bool
	err    error
}

// pieceReport is one line of replay output.
type pieceReport struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind,omitempty"`
	DefinedBy  string   `json:"defined_by,omitempty"`
	Targets    int      `json:"targets"`
	Macros     int      `json:"macros"`
	Steps      uint64   `json:"steps"`
	Cached     bool     `json:"cached,omitempty"`
	Violations []string `json:"violations,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	cacheFlag, err := cmd.Flags().GetBool("cache")
	if err != nil {
		return fmt.Errorf("failed to get cache flag: %w", err)
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unknown format: %s", format)
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	maxDiag, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}

	ws, err := workspace.Load(".")
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("jobs") {
		jobs = ws.Settings.Evaluation.Permits
	}
	if !cmd.Root().PersistentFlags().Changed("max-diagnostics") {
		maxDiag = ws.Settings.Evaluation.MaxDiagnostics
	}
	if maxDiag <= 0 {
		return fmt.Errorf("max-diagnostics must be positive, got %d", maxDiag)
	}
	cacheOn := cacheFlag
	if !cmd.Flags().Changed("cache") {
		cacheOn = ws.Settings.Cache.Enabled
	}

	bag := diag.NewBag(maxDiag)
	timer := observ.NewTimer()

	loadIdx := timer.Begin("load")
	traces := make([]*replay.Trace, 0, len(args))
	for _, path := range args {
		tr, lerr := replay.Load(path)
		if lerr != nil {
			var terr *replay.TraceError
			if errors.As(lerr, &terr) {
				bag.Add(diag.NewError(terr.Code, terr.Path, terr.Err.Error()))
			} else {
				bag.Add(diag.NewError(diag.TraceUnreadable, path, lerr.Error()))
			}
			continue
		}
		traces = append(traces, tr)
	}
	timer.End(loadIdx, fmt.Sprintf("%d of %d traces", len(traces), len(args)))

	blocks, uiNames := planBlocks(traces, maxDiag, bag)

	ropts := replay.Options{
		WorkspaceName:  ws.Settings.Workspace.Name,
		Succinct:       ws.Settings.Evaluation.SuccinctErrors,
		MaxDiagnostics: maxDiag,
	}

	var dc *cache.DiskCache
	if cacheOn {
		dc, err = openWorkspaceCache(ws)
		if err != nil {
			bag.Add(diag.New(diag.SevWarning, diag.CacheReadError, "", err.Error()))
			dc = nil
		}
	}

	pc := cache.NewPieceCache(len(uiNames))
	if dc != nil {
		warmIdx := timer.Begin("warm")
		warmed := warmPieceCache(dc, pc, blocks, bag)
		timer.End(warmIdx, fmt.Sprintf("%d pieces", warmed))
	}

	var (
		round1 *eval.Result
		round2 *eval.Result
		jobs2  []expansionJob
	)
	logger := debugLogger()
	work := func(ctx context.Context, sink eval.ProgressSink) error {
		runOpts := eval.Options{Permits: jobs, Cache: pc, Sink: sink, Logger: logger}

		var rerr error
		round1, rerr = eval.Run(ctx, blockItems(blocks, ropts), runOpts)
		if rerr != nil {
			return rerr
		}

		var expItems []eval.Item
		expItems, jobs2 = planExpansions(blocks, round1, ropts, maxDiag, sink)
		round2, rerr = eval.Run(ctx, expItems, runOpts)
		return rerr
	}

	replayIdx := timer.Begin("replay")
	ctx := cmd.Context()
	workErr := error(nil)
	if shouldUseTUI(mode) && !quiet {
		workErr = runWithUI(ctx, "mason replay", uiNames, work)
	} else {
		workErr = work(ctx, nil)
	}
	built, hits := 0, 0
	for _, res := range []*eval.Result{round1, round2} {
		if res == nil {
			continue
		}
		hits += res.CacheHits
		for _, p := range res.Pieces {
			if p != nil {
				built++
			}
		}
	}
	timer.End(replayIdx, fmt.Sprintf("%d pieces, %d cache hits", built, hits))

	rows := collectRows(blocks, jobs2, round1, round2)

	if dc != nil && workErr == nil {
		storeIdx := timer.Begin("store")
		stored := 0
		for _, row := range rows {
			if row.p == nil || row.cached {
				continue
			}
			if perr := dc.Put(row.p); perr != nil {
				bag.Add(diag.New(diag.SevWarning, diag.CacheWriteError, row.name, perr.Error()))
				continue
			}
			stored++
		}
		timer.End(storeIdx, fmt.Sprintf("%d entries", stored))
	}

	for i := range blocks {
		bag.Merge(blocks[i].bag)
	}
	for i := range jobs2 {
		bag.Merge(jobs2[i].bag)
	}
	bag.Sort()
	if bag.Len() > 0 {
		diag.Fprint(os.Stderr, bag, useColor(cmd, os.Stderr))
	}
	if workErr != nil {
		return workErr
	}

	if !quiet {
		if format == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rowReports(rows)); err != nil {
				return fmt.Errorf("failed to encode replay report: %w", err)
			}
		} else {
			printPieceRows(os.Stdout, rows)
		}
	}
	if showTimings {
		fmt.Fprint(os.Stdout, timer.Summary())
	}

	failed := bag.HasErrors()
	for _, res := range []*eval.Result{round1, round2} {
		if res != nil && res.Err() != nil {
			failed = true
		}
	}
	if failed {
		// diagnostics already printed
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return fmt.Errorf("")
	}
	return nil
}

// planBlocks flattens the loaded traces into schedulable blocks and the
// full list of piece names for the progress view.
func planBlocks(traces []*replay.Trace, maxDiag int, procBag *diag.Bag) ([]replayBlock, []string) {
	var blocks []replayBlock
	var names []string
	for _, tr := range traces {
		for i := range tr.Pieces {
			pt := &tr.Pieces[i]
			id, err := pt.Identity()
			if err != nil {
				procBag.Add(diag.NewError(diag.TraceBadPackage, pt.CanonicalName(), err.Error()))
				continue
			}
			b := diag.NewBag(maxDiag)
			blocks = append(blocks, replayBlock{
				pt:  pt,
				id:  id,
				bag: b,
				rep: diag.NewDedupReporter(diag.BagReporter{Bag: b}),
			})
			names = append(names, id.CanonicalName())
			for j := range pt.Expansions {
				names = append(names, id.CanonicalName()+":"+pt.Expansions[j].InstanceID())
			}
		}
	}
	return blocks, names
}

// blockItems schedules one item per block, each producing the block's
// build file piece.
func blockItems(blocks []replayBlock, ropts replay.Options) []eval.Item {
	items := make([]eval.Item, len(blocks))
	for i := range blocks {
		b := &blocks[i]
		items[i] = eval.Item{
			Name:     b.id.CanonicalName(),
			Identity: b.id,
			Build: func(ctx context.Context, ec *eval.Context) (piece.Piece, error) {
				bf, err := replay.BuildFilePiece(ctx, ec, b.pt, ropts, b.rep)
				if err != nil {
					return nil, err
				}
				return bf, nil
			},
		}
	}
	return items
}

// planExpansions builds the second round from the first round's build
// file pieces. Expansions whose block failed, or whose instance the
// build file never recorded, are not scheduled.
func planExpansions(blocks []replayBlock, round1 *eval.Result, ropts replay.Options, maxDiag int, sink eval.ProgressSink) ([]eval.Item, []expansionJob) {
	var items []eval.Item
	var jobs []expansionJob
	emit := func(evt eval.Event) {
		if sink != nil {
			sink.OnEvent(evt)
		}
	}
	for i := range blocks {
		b := &blocks[i]
		name := b.id.CanonicalName()
		bf, ok := round1.Pieces[i].(*piece.ForBuildFile)
		for j := range b.pt.Expansions {
			xt := &b.pt.Expansions[j]
			xname := name + ":" + xt.InstanceID()
			if !ok {
				emit(eval.Event{Piece: xname, Stage: eval.StageExpand, Status: eval.StatusError})
				continue
			}
			if bf.MacroByName(xt.InstanceID()) == nil {
				// deduplicated against the snapshot check that ran
				// while the build file piece was accumulating
				b.rep.Report(diag.EvalBadMacro, diag.SevError, name, xt.InstanceID(), xt.OrphanMessage())
				emit(eval.Event{Piece: xname, Stage: eval.StageExpand, Status: eval.StatusError})
				continue
			}
			xid, err := xt.Identity(b.pt)
			if err != nil {
				b.rep.Report(diag.TraceInvalid, diag.SevError, xname, "", err.Error())
				emit(eval.Event{Piece: xname, Stage: eval.StageExpand, Status: eval.StatusError})
				continue
			}
			xbag := diag.NewBag(maxDiag)
			xrep := diag.NewDedupReporter(diag.BagReporter{Bag: xbag})
			pt, xtc := b.pt, xt
			items = append(items, eval.Item{
				Name:     xname,
				Identity: xid,
				Build: func(ctx context.Context, ec *eval.Context) (piece.Piece, error) {
					mp, merr := replay.ExpansionPiece(ctx, ec, pt, xtc, bf, ropts, xrep)
					if merr != nil {
						return nil, merr
					}
					return mp, nil
				},
			})
			jobs = append(jobs, expansionJob{block: i, name: xname, bag: xbag})
		}
	}
	return items, jobs
}

// warmPieceCache loads previously stored pieces for every identity the
// plan will evaluate. Read failures degrade to warnings.
func warmPieceCache(dc *cache.DiskCache, pc *cache.PieceCache, blocks []replayBlock, bag *diag.Bag) int {
	warmed := 0
	for i := range blocks {
		b := &blocks[i]
		warmed += warmIdentity(dc, pc, b.id, bag)
		for j := range b.pt.Expansions {
			xid, err := b.pt.Expansions[j].Identity(b.pt)
			if err != nil {
				continue
			}
			warmed += warmIdentity(dc, pc, xid, bag)
		}
	}
	return warmed
}

func warmIdentity(dc *cache.DiskCache, pc *cache.PieceCache, id piece.Identity, bag *diag.Bag) int {
	p, ok, err := dc.Get(id)
	if err != nil {
		bag.Add(diag.New(diag.SevWarning, diag.CacheReadError, id.CanonicalName(), err.Error()))
		return 0
	}
	if !ok {
		return 0
	}
	pc.Put(p)
	return 1
}

// collectRows pairs every scheduled piece with its outcome, build file
// blocks first, each followed by its expansions.
func collectRows(blocks []replayBlock, jobs []expansionJob, round1, round2 *eval.Result) []pieceRow {
	rows := make([]pieceRow, 0, len(blocks)+len(jobs))
	next := 0
	for i := range blocks {
		row := pieceRow{name: blocks[i].id.CanonicalName()}
		if round1 != nil {
			row.p = round1.Pieces[i]
			row.cached = round1.Cached[i]
			row.err = round1.Errs[i]
		}
		rows = append(rows, row)
		for next < len(jobs) && jobs[next].block == i {
			xrow := pieceRow{name: jobs[next].name}
			if round2 != nil {
				xrow.p = round2.Pieces[next]
				xrow.cached = round2.Cached[next]
				xrow.err = round2.Errs[next]
			}
			rows = append(rows, xrow)
			next++
		}
	}
	return rows
}

func rowReports(rows []pieceRow) []pieceReport {
	reports := make([]pieceReport, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, rowReport(row))
	}
	return reports
}

func rowReport(row pieceRow) pieceReport {
	r := pieceReport{Name: row.name, Cached: row.cached}
	if row.err != nil {
		r.Error = row.err.Error()
		return r
	}
	if row.p == nil {
		r.Error = "not evaluated"
		return r
	}
	r.DefinedBy = row.p.Identity().CanonicalDefinedBy()
	r.Targets = row.p.NumTargets()
	r.Macros = len(row.p.Macros())
	r.Steps = row.p.ComputationSteps()
	switch mp := row.p.(type) {
	case *piece.ForMacro:
		r.Kind = "macro"
		r.Violations = mp.NamespaceViolations()
	default:
		r.Kind = "build file"
	}
	return r
}

func printPieceRows(out io.Writer, rows []pieceRow) {
	done, cached, failed := 0, 0, 0
	for _, row := range rows {
		rep := rowReport(row)
		if rep.Error != "" {
			failed++
			fmt.Fprintf(out, "%s: failed: %s\n", rep.Name, rep.Error)
			continue
		}
		done++
		line := fmt.Sprintf("%s  %s  %d targets, %d macros, %d steps",
			rep.Name, rep.Kind, rep.Targets, rep.Macros, rep.Steps)
		if rep.Cached {
			cached++
			line += " (cached)"
		}
		if n := len(rep.Violations); n > 0 {
			line += fmt.Sprintf(", %d namespace violations", n)
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "replayed %d pieces (%d cached), %d failed\n", done, cached, failed)
}
