package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mason/internal/cache"
	"mason/internal/workspace"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the persistent piece cache",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Summarize cached pieces",
	Args:  cobra.NoArgs,
	RunE:  runCacheInfo,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached piece",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// openWorkspaceCache opens the disk cache configured by mason.toml, or
// the standard per-user location when the manifest does not pick a
// directory. Relative directories resolve against the workspace root.
func openWorkspaceCache(ws *workspace.Workspace) (*cache.DiskCache, error) {
	dir := ws.Settings.Cache.Dir
	if dir == "" {
		return cache.OpenDiskCache("mason")
	}
	if !filepath.IsAbs(dir) && ws.Root != "" {
		dir = filepath.Join(ws.Root, dir)
	}
	return cache.OpenDiskCacheAt(dir)
}

func runCacheInfo(cmd *cobra.Command, _ []string) error {
	ws, err := workspace.Load(".")
	if err != nil {
		return err
	}
	dc, err := openWorkspaceCache(ws)
	if err != nil {
		return err
	}
	entries, err := dc.Entries()
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}

	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}

	var total int64
	for _, e := range entries {
		total += e.Size
		if quiet {
			continue
		}
		line := fmt.Sprintf("%s  %d targets  %d bytes", e.Name, e.Targets, e.Size)
		if e.Violations > 0 {
			line += fmt.Sprintf("  %d violations", e.Violations)
		}
		fmt.Fprintln(os.Stdout, line)
	}
	fmt.Fprintf(os.Stdout, "%s: %d pieces, %d bytes\n", dc.Dir(), len(entries), total)
	return nil
}

func runCacheClear(_ *cobra.Command, _ []string) error {
	ws, err := workspace.Load(".")
	if err != nil {
		return err
	}
	dc, err := openWorkspaceCache(ws)
	if err != nil {
		return err
	}
	if err := dc.DropAll(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Fprintf(os.Stdout, "cleared %s\n", dc.Dir())
	return nil
}
