package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mason/internal/diag"
	"mason/internal/eval"
	"mason/internal/piece"
	"mason/internal/replay"
	"mason/internal/workspace"
)

var queryCmd = &cobra.Command{
	Use:   "query [flags] <trace.toml> <target-name>",
	Short: "Replay a trace and look up one target",
	Long: `Query replays a trace sequentially, selects a finalized piece, and
resolves a target name against it`,
	Args: cobra.ExactArgs(2),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().String("piece", "", "canonical piece name to query (default: first build file piece)")
	queryCmd.Flags().Bool("build-file-fallback", false, "fall back to the build file piece when the target is not in the selected piece")
	queryCmd.Flags().Bool("check-namespace", false, "check the found target against its macro namespace")
	queryCmd.Flags().Bool("succinct", false, "force succinct no-such-target errors")
	queryCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type targetReport struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Kind      string `json:"kind"`
	RuleClass string `json:"rule_class,omitempty"`
	Location  string `json:"location,omitempty"`
	Generator string `json:"generator,omitempty"`
	Piece     string `json:"piece"`
	Namespace string `json:"namespace,omitempty"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	tracePath, targetName := args[0], args[1]

	pieceSel, err := cmd.Flags().GetString("piece")
	if err != nil {
		return fmt.Errorf("failed to get piece flag: %w", err)
	}
	fallback, err := cmd.Flags().GetBool("build-file-fallback")
	if err != nil {
		return fmt.Errorf("failed to get build-file-fallback flag: %w", err)
	}
	checkNS, err := cmd.Flags().GetBool("check-namespace")
	if err != nil {
		return fmt.Errorf("failed to get check-namespace flag: %w", err)
	}
	succinct, err := cmd.Flags().GetBool("succinct")
	if err != nil {
		return fmt.Errorf("failed to get succinct flag: %w", err)
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
	maxDiag, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}

	ws, err := workspace.Load(".")
	if err != nil {
		return err
	}
	if !cmd.Root().PersistentFlags().Changed("max-diagnostics") {
		maxDiag = ws.Settings.Evaluation.MaxDiagnostics
	}
	if maxDiag <= 0 {
		return fmt.Errorf("max-diagnostics must be positive, got %d", maxDiag)
	}

	tr, err := replay.Load(tracePath)
	if err != nil {
		return fmt.Errorf("failed to load trace: %w", err)
	}

	ropts := replay.Options{
		WorkspaceName:  ws.Settings.Workspace.Name,
		Succinct:       succinct || ws.Settings.Evaluation.SuccinctErrors,
		MaxDiagnostics: maxDiag,
	}
	ec := eval.NewContext(eval.WithLogger(debugLogger()))
	out, err := replay.Apply(cmd.Context(), ec, tr, ropts)
	if err != nil {
		return err
	}
	bag := out.Bag

	sel, err := selectPiece(out.Pieces, pieceSel)
	if err != nil {
		return err
	}

	var found *piece.Target
	if fallback {
		if t, ok := sel.TargetHereOrInBuildFile(targetName); ok {
			found = t
		}
	}
	if found == nil {
		t, terr := sel.Target(targetName)
		if terr == nil {
			found = t
		} else {
			bag.Add(diag.NewError(diag.EvalNoSuchTarget, sel.Identity().CanonicalName(), terr.Error()).
				WithTarget(targetName))
		}
	}

	nsStatus := ""
	if checkNS && found != nil {
		owner := found.Owner()
		nsStatus = "ok"
		if cerr := owner.CheckMacroNamespaceCompliance(found); cerr != nil {
			nsStatus = "violation"
			bag.Add(diag.New(diag.SevWarning, diag.NamespaceViolation, owner.Identity().CanonicalName(), cerr.Error()).
				WithTarget(found.Name()))
		}
	}

	bag.Dedup()
	bag.Sort()
	if bag.Len() > 0 {
		diag.Fprint(os.Stderr, bag, useColor(cmd, os.Stderr))
	}

	if found != nil && !quiet {
		rep := targetReportFor(found, nsStatus)
		if format == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return fmt.Errorf("failed to encode query result: %w", err)
			}
		} else {
			printTargetReport(os.Stdout, rep)
		}
	}

	if found == nil || bag.HasErrors() {
		// diagnostics already printed
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return fmt.Errorf("")
	}
	return nil
}

// selectPiece picks the queried piece: the named one, or the first
// block's build file piece when no selector is given.
func selectPiece(pieces []piece.Piece, sel string) (piece.Piece, error) {
	if len(pieces) == 0 {
		return nil, fmt.Errorf("trace produced no pieces")
	}
	if sel == "" {
		return pieces[0], nil
	}
	names := make([]string, 0, len(pieces))
	for _, p := range pieces {
		name := p.Identity().CanonicalName()
		if name == sel {
			return p, nil
		}
		names = append(names, name)
	}
	return nil, fmt.Errorf("no piece %q in trace (have %s)", sel, strings.Join(names, ", "))
}

func targetReportFor(t *piece.Target, nsStatus string) targetReport {
	rep := targetReport{
		Name:      t.Name(),
		Label:     t.Label().String(),
		Kind:      t.Kind().String(),
		RuleClass: t.RuleClass(),
		Generator: t.GeneratorName(),
		Piece:     t.Owner().Identity().CanonicalName(),
		Namespace: nsStatus,
	}
	if loc := t.Location(); !loc.IsZero() {
		rep.Location = loc.String()
	}
	return rep
}

func printTargetReport(out io.Writer, rep targetReport) {
	fmt.Fprintf(out, "%s %s\n", rep.Kind, rep.Label)
	if rep.RuleClass != "" {
		fmt.Fprintf(out, "rule class: %s\n", rep.RuleClass)
	}
	fmt.Fprintf(out, "piece: %s\n", rep.Piece)
	if rep.Location != "" {
		fmt.Fprintf(out, "declared at: %s\n", rep.Location)
	}
	if rep.Generator != "" {
		fmt.Fprintf(out, "generator: %s\n", rep.Generator)
	}
	if rep.Namespace != "" {
		fmt.Fprintf(out, "namespace: %s\n", rep.Namespace)
	}
}
