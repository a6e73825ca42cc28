package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mason/internal/eval"
	"mason/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "mason",
	Short: "Mason package piece toolchain",
	Long:  `Mason replays build file evaluation traces into immutable package pieces`,
}

// main registers subcommands and persistent flags, then executes the
// root command. Command errors exit with status code 1.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// useColor resolves the persistent color flag against the terminal.
func useColor(cmd *cobra.Command, f *os.File) bool {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return false
	}
	switch mode {
	case "on":
		return true
	case "off":
		return false
	default:
		return isTerminal(f)
	}
}

// debugLogger builds the evaluation logger from MASON_DEBUG: any value
// enables debug logging, "trace" also enables per-target logging. Unset
// means no logging.
func debugLogger() *slog.Logger {
	val := strings.TrimSpace(strings.ToLower(os.Getenv("MASON_DEBUG")))
	if val == "" {
		return nil
	}
	level := slog.LevelDebug
	if val == "trace" {
		level = eval.LevelTrace
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
