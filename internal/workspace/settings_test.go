package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFindWorkspaceRootWalksUp(t *testing.T) {
	root := t.TempDir()
	want := writeManifest(t, root, "")
	nested := filepath.Join(root, "srcs", "app")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	got, ok, err := FindWorkspaceRoot(nested)
	if err != nil || !ok {
		t.Fatalf("FindWorkspaceRoot = ok=%v, err=%v", ok, err)
	}
	if got != want {
		t.Errorf("manifest = %q, want %q", got, want)
	}
}

func TestLoadDefaultsWhenManifestAbsent(t *testing.T) {
	ws, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ws.Root != "" || ws.Manifest != "" {
		t.Errorf("located %q / %q without a manifest", ws.Root, ws.Manifest)
	}
	if ws.Settings.Workspace.Name != "main" {
		t.Errorf("workspace name = %q, want main", ws.Settings.Workspace.Name)
	}
	if ws.Settings.Evaluation.MaxDiagnostics != DefaultMaxDiagnostics {
		t.Errorf("max diagnostics = %d, want %d", ws.Settings.Evaluation.MaxDiagnostics, DefaultMaxDiagnostics)
	}
	if ws.Settings.Evaluation.Permits != 0 || ws.Settings.Evaluation.SuccinctErrors {
		t.Errorf("evaluation defaults = %+v", ws.Settings.Evaluation)
	}
	if ws.Settings.Cache.Enabled {
		t.Error("cache enabled by default")
	}
}

func TestLoadSettingsFullManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
[workspace]
name = "forge"

[evaluation]
permits = 4
max_diagnostics = 25
succinct_errors = true

[cache]
dir = "/var/cache/mason"
enabled = true
`)
	got, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got.Workspace.Name != "forge" {
		t.Errorf("name = %q", got.Workspace.Name)
	}
	if got.Evaluation.Permits != 4 || got.Evaluation.MaxDiagnostics != 25 || !got.Evaluation.SuccinctErrors {
		t.Errorf("evaluation = %+v", got.Evaluation)
	}
	if !got.Cache.Enabled || got.Cache.Dir != "/var/cache/mason" {
		t.Errorf("cache = %+v", got.Cache)
	}
}

func TestLoadSettingsPartialManifestKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "[workspace]\nname = \"forge\"\n")

	got, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got.Workspace.Name != "forge" {
		t.Errorf("name = %q", got.Workspace.Name)
	}
	if got.Evaluation.MaxDiagnostics != DefaultMaxDiagnostics {
		t.Errorf("max diagnostics = %d, want default", got.Evaluation.MaxDiagnostics)
	}
}

func TestLoadSettingsRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"blank workspace name", "[workspace]\nname = \"  \"\n"},
		{"negative permits", "[evaluation]\npermits = -1\n"},
		{"zero max diagnostics", "[evaluation]\nmax_diagnostics = 0\n"},
		{"blank cache dir", "[cache]\nenabled = true\ndir = \"\"\n"},
		{"malformed toml", "[workspace\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), tt.body)
			if _, err := LoadSettings(path); err == nil {
				t.Fatal("LoadSettings accepted an invalid manifest")
			}
		})
	}
}
