package replay

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mason/internal/diag"
)

const sampleTrace = `
[[piece]]
package = "//srcs/app"
workspace = "forge"
module_name = "kiln"
module_version = "1.4.0"
visibility = "standard"
loads = ["//rules:suite.mac"]

[piece.repo_mapping]
deps = "kiln_deps"

[[piece.target]]
name = "app"
kind = "rule"
rule_class = "cc_binary"
file = "srcs/app/BUILD.mason"
line = 7
col = 1

[[piece.target]]
name = "main.c"
kind = "source file"

[[piece.macro]]
class = "kiln_suite"
defined_in = "//rules:suite.mac"
name = "tests"

[[piece.expansion]]
class = "kiln_suite"
defined_in = "//rules:suite.mac"
name = "tests"

[[piece.expansion.target]]
name = "tests_fast"
kind = "rule"
rule_class = "cc_test"
`

func writeTrace(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadParsesSampleTrace(t *testing.T) {
	tr, err := Load(writeTrace(t, sampleTrace))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tr.Pieces) != 1 {
		t.Fatalf("pieces = %d, want 1", len(tr.Pieces))
	}
	pt := &tr.Pieces[0]
	if pt.CanonicalName() != "//srcs/app" {
		t.Errorf("canonical name = %q", pt.CanonicalName())
	}
	if pt.Workspace != "forge" || pt.ModuleName != "kiln" || pt.Visibility != "standard" {
		t.Errorf("metadata = %+v", pt)
	}
	if len(pt.Targets) != 2 || len(pt.Macros) != 1 || len(pt.Expansions) != 1 {
		t.Fatalf("records = %d targets, %d macros, %d expansions",
			len(pt.Targets), len(pt.Macros), len(pt.Expansions))
	}
	if pt.Targets[0].RuleClass != "cc_binary" || pt.Targets[0].Line != 7 {
		t.Errorf("target[0] = %+v", pt.Targets[0])
	}
	if pt.RepoMapping["deps"] != "kiln_deps" {
		t.Errorf("repo mapping = %v", pt.RepoMapping)
	}
	if got := pt.Expansions[0].InstanceID(); got != "tests" {
		t.Errorf("instance id = %q", got)
	}
	if len(pt.Expansions[0].Targets) != 1 {
		t.Errorf("expansion targets = %+v", pt.Expansions[0].Targets)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	var terr *TraceError
	if !errors.As(err, &terr) {
		t.Fatalf("Load = %v, want *TraceError", err)
	}
	if terr.Code != diag.TraceUnreadable {
		t.Errorf("code = %v, want TraceUnreadable", terr.Code)
	}
}

func TestLoadMalformedTOML(t *testing.T) {
	_, err := Load(writeTrace(t, "[[piece\npackage = \n"))
	var terr *TraceError
	if !errors.As(err, &terr) {
		t.Fatalf("Load = %v, want *TraceError", err)
	}
	if terr.Code != diag.TraceInvalid {
		t.Errorf("code = %v, want TraceInvalid", terr.Code)
	}
}

func TestLoadRejectsStructuralProblems(t *testing.T) {
	tests := []struct {
		name string
		body string
		code diag.Code
	}{
		{
			"no pieces",
			"# empty\n",
			diag.TraceInvalid,
		},
		{
			"bad package",
			"[[piece]]\npackage = \"srcs/app\"\n",
			diag.TraceBadPackage,
		},
		{
			"bad visibility",
			"[[piece]]\npackage = \"//srcs/app\"\nvisibility = \"loud\"\n",
			diag.TraceInvalid,
		},
		{
			"bad load label",
			"[[piece]]\npackage = \"//srcs/app\"\nloads = [\"rules:suite.mac\"]\n",
			diag.TraceBadLabel,
		},
		{
			"bad target kind",
			"[[piece]]\npackage = \"//srcs/app\"\n[[piece.target]]\nname = \"app\"\nkind = \"binary\"\n",
			diag.TraceBadKind,
		},
		{
			"unnamed target",
			"[[piece]]\npackage = \"//srcs/app\"\n[[piece.target]]\nkind = \"rule\"\n",
			diag.TraceInvalid,
		},
		{
			"macro without class",
			"[[piece]]\npackage = \"//srcs/app\"\n[[piece.macro]]\nname = \"tests\"\ndefined_in = \"//rules:suite.mac\"\n",
			diag.TraceInvalid,
		},
		{
			"expansion with bad defining label",
			"[[piece]]\npackage = \"//srcs/app\"\n[[piece.expansion]]\nclass = \"kiln_suite\"\nname = \"tests\"\ndefined_in = \"no-slashes\"\n",
			diag.TraceBadLabel,
		},
		{
			"negative depth",
			"[[piece]]\npackage = \"//srcs/app\"\n[[piece.macro]]\nclass = \"kiln_suite\"\nname = \"tests\"\ndefined_in = \"//rules:suite.mac\"\ndepth = -1\n",
			diag.TraceInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTrace(t, tt.body))
			var terr *TraceError
			if !errors.As(err, &terr) {
				t.Fatalf("Load = %v, want *TraceError", err)
			}
			if terr.Code != tt.code {
				t.Errorf("code = %v (%s), want %v", terr.Code, terr.Err, tt.code)
			}
		})
	}
}

func TestExpansionInstanceID(t *testing.T) {
	tests := []struct {
		depth int
		want  string
	}{
		{0, "tests"},
		{1, "tests"},
		{2, "tests:2"},
	}
	for _, tt := range tests {
		xt := ExpansionTrace{Name: "tests", Depth: tt.depth}
		if got := xt.InstanceID(); got != tt.want {
			t.Errorf("depth %d: id = %q, want %q", tt.depth, got, tt.want)
		}
	}
}
