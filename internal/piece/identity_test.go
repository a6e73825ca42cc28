package piece

import (
	"testing"

	"mason/internal/label"
)

func pkgID(t *testing.T, path string) label.PackageID {
	t.Helper()
	id, err := label.NewPackageID(label.MainRepo, path)
	if err != nil {
		t.Fatalf("NewPackageID(%q): %v", path, err)
	}
	return id
}

func TestIdentityEquality(t *testing.T) {
	pkg := pkgID(t, "srcs/app")
	bf := label.MustLabel(pkg, BuildFileName)
	mac := label.MustLabel(pkgID(t, "rules"), "kiln.mac")

	a := NewIdentity(pkg, bf)
	b := NewIdentity(pkg, bf)
	if a != b {
		t.Fatalf("equal top-level identities compare unequal")
	}

	ma := NewMacroIdentity(pkg, mac, "kiln_suite", "fire")
	mb := NewMacroIdentity(pkg, mac, "kiln_suite", "fire")
	if ma != mb {
		t.Fatalf("equal macro identities compare unequal")
	}
	if a == ma {
		t.Fatalf("top-level and macro identities compare equal")
	}

	other := NewMacroIdentity(pkg, mac, "kiln_suite", "ember")
	if ma == other {
		t.Fatalf("distinct instance names compare equal")
	}

	seen := map[Identity]int{a: 1, ma: 2}
	if seen[b] != 1 || seen[mb] != 2 {
		t.Fatalf("identities do not work as map keys: %v", seen)
	}
}

func TestIdentityCanonicalForms(t *testing.T) {
	pkg := pkgID(t, "srcs/app")
	bf := label.MustLabel(pkg, BuildFileName)
	mac := label.MustLabel(pkgID(t, "rules"), "kiln.mac")

	top := NewIdentity(pkg, bf)
	if got := top.CanonicalName(); got != "//srcs/app" {
		t.Errorf("CanonicalName() = %q", got)
	}
	if got := top.CanonicalDefinedBy(); got != "//srcs/app:BUILD.mason" {
		t.Errorf("CanonicalDefinedBy() = %q", got)
	}
	if got := top.String(); got != "//srcs/app defined by //srcs/app:BUILD.mason" {
		t.Errorf("String() = %q", got)
	}
	if top.IsForMacro() {
		t.Errorf("top-level identity claims to be a macro identity")
	}

	m := NewMacroIdentity(pkg, mac, "kiln_suite", "fire")
	if got := m.CanonicalName(); got != "//srcs/app:fire" {
		t.Errorf("CanonicalName() = %q", got)
	}
	if got := m.CanonicalDefinedBy(); got != "//rules:kiln.mac%kiln_suite" {
		t.Errorf("CanonicalDefinedBy() = %q", got)
	}
	if !m.IsForMacro() {
		t.Errorf("macro identity claims to be top-level")
	}

	// rendering depends on nothing but the four fields
	name, definedBy, str := m.CanonicalName(), m.CanonicalDefinedBy(), m.String()
	for range 3 {
		if m.CanonicalName() != name || m.CanonicalDefinedBy() != definedBy || m.String() != str {
			t.Fatalf("canonical forms drifted across calls")
		}
	}
}

func TestMacroIdentityNeedsBothFields(t *testing.T) {
	pkg := pkgID(t, "srcs/app")
	mac := label.MustLabel(pkgID(t, "rules"), "kiln.mac")

	cases := []struct {
		symbol, instance string
	}{
		{"kiln_suite", ""},
		{"", "fire"},
		{"", ""},
	}
	for _, tt := range cases {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("NewMacroIdentity(%q, %q) did not panic", tt.symbol, tt.instance)
				}
			}()
			NewMacroIdentity(pkg, mac, tt.symbol, tt.instance)
		}()
	}
}

func TestIdentityNeedsDefiningLabel(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("NewIdentity with zero label did not panic")
		}
	}()
	NewIdentity(pkgID(t, "srcs/app"), label.Label{})
}
