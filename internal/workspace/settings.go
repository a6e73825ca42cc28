// Package workspace locates the workspace root and loads its mason.toml
// settings. Settings feed builder configuration and driver options; a
// workspace without a manifest runs entirely on defaults.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"mason/internal/piece"
)

// ManifestName is the file marking a workspace root.
const ManifestName = "mason.toml"

// DefaultMaxDiagnostics caps the diagnostics bag when the manifest does
// not say otherwise.
const DefaultMaxDiagnostics = 100

// Settings mirrors the mason.toml schema.
type Settings struct {
	Workspace  WorkspaceSection  `toml:"workspace"`
	Evaluation EvaluationSection `toml:"evaluation"`
	Cache      CacheSection      `toml:"cache"`
}

// WorkspaceSection carries workspace-wide identification.
type WorkspaceSection struct {
	Name string `toml:"name"`
}

// EvaluationSection tunes piece production.
type EvaluationSection struct {
	// Permits bounds concurrent evaluations; 0 means one per CPU.
	Permits int `toml:"permits"`
	// MaxDiagnostics caps the diagnostics bag.
	MaxDiagnostics int `toml:"max_diagnostics"`
	// SuccinctErrors disables suggestions on target lookup misses.
	SuccinctErrors bool `toml:"succinct_errors"`
}

// CacheSection configures the piece disk cache.
type CacheSection struct {
	// Dir overrides the XDG default cache location.
	Dir string `toml:"dir"`
	// Enabled turns the disk cache on.
	Enabled bool `toml:"enabled"`
}

// DefaultSettings returns the settings of a manifest-less workspace.
func DefaultSettings() Settings {
	return Settings{
		Workspace:  WorkspaceSection{Name: piece.DefaultWorkspaceName},
		Evaluation: EvaluationSection{MaxDiagnostics: DefaultMaxDiagnostics},
	}
}

// Workspace is a located workspace with its effective settings.
type Workspace struct {
	// Root is the directory containing mason.toml; empty when no
	// manifest was found.
	Root string
	// Manifest is the mason.toml path; empty when no manifest was found.
	Manifest string
	Settings Settings
}

// FindWorkspaceRoot walks up from startDir to locate mason.toml.
func FindWorkspaceRoot(startDir string) (manifestPath string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load locates the workspace above startDir and reads its settings.
// A missing manifest is not an error: the returned workspace carries
// defaults and an empty Root.
func Load(startDir string) (*Workspace, error) {
	manifestPath, ok, err := FindWorkspaceRoot(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Workspace{Settings: DefaultSettings()}, nil
	}
	settings, err := LoadSettings(manifestPath)
	if err != nil {
		return nil, err
	}
	return &Workspace{
		Root:     filepath.Dir(manifestPath),
		Manifest: manifestPath,
		Settings: settings,
	}, nil
}

// LoadSettings parses one mason.toml. Sections and keys are optional;
// whatever the file leaves out keeps its default. Values that are
// present must be valid.
func LoadSettings(path string) (Settings, error) {
	cfg := DefaultSettings()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if meta.IsDefined("workspace", "name") && strings.TrimSpace(cfg.Workspace.Name) == "" {
		return Settings{}, fmt.Errorf("%s: [workspace].name must not be blank", path)
	}
	if cfg.Evaluation.Permits < 0 {
		return Settings{}, fmt.Errorf("%s: [evaluation].permits must not be negative", path)
	}
	if cfg.Evaluation.MaxDiagnostics <= 0 {
		return Settings{}, fmt.Errorf("%s: [evaluation].max_diagnostics must be positive", path)
	}
	if meta.IsDefined("cache", "enabled") && cfg.Cache.Enabled {
		if meta.IsDefined("cache", "dir") && strings.TrimSpace(cfg.Cache.Dir) == "" {
			return Settings{}, fmt.Errorf("%s: [cache].dir must not be blank", path)
		}
	}
	return cfg, nil
}
