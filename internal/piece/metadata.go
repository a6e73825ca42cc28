package piece

import (
	"fmt"
	"slices"

	"mason/internal/label"
)

// VisibilityPolicy selects how config-setting visibility is interpreted
// for the package. The policy is carried, not enforced, by this package.
type VisibilityPolicy uint8

const (
	// VisibilityLegacy ignores visibility declarations on config settings.
	VisibilityLegacy VisibilityPolicy = iota
	// VisibilityStandard applies the declared visibility.
	VisibilityStandard
	// VisibilityPublic treats undeclared visibility as public.
	VisibilityPublic
)

func (p VisibilityPolicy) String() string {
	switch p {
	case VisibilityLegacy:
		return "legacy"
	case VisibilityStandard:
		return "standard"
	case VisibilityPublic:
		return "public"
	}
	return "unknown"
}

// ParseVisibilityPolicy maps the wire spelling of a policy back to its
// value. The empty string is VisibilityLegacy.
func ParseVisibilityPolicy(s string) (VisibilityPolicy, error) {
	switch s {
	case "", "legacy":
		return VisibilityLegacy, nil
	case "standard":
		return VisibilityStandard, nil
	case "public":
		return VisibilityPublic, nil
	}
	return 0, fmt.Errorf("unknown visibility policy %q", s)
}

// Metadata is the package-level information owned by the top-level
// piece. Macro pieces read it through their build file sibling.
// Immutable once built.
type Metadata struct {
	pkg                     label.PackageID
	buildFileLabel          label.Label
	repoMapping             *label.RepoMapping
	mainRepoMapping         *label.RepoMapping
	associatedModuleName    string
	associatedModuleVersion string
	visibility              VisibilityPolicy
	succinctTargetNotFound  bool
}

// Pkg returns the package this metadata describes.
func (m *Metadata) Pkg() label.PackageID { return m.pkg }

// BuildFileLabel returns the label of the BUILD.mason file.
func (m *Metadata) BuildFileLabel() label.Label { return m.buildFileLabel }

// RepoMapping returns the mapping active for labels written in this
// package's build description files.
func (m *Metadata) RepoMapping() *label.RepoMapping { return m.repoMapping }

// MainRepoMapping returns the main repository's mapping, used to render
// labels the way the main repository spells them.
func (m *Metadata) MainRepoMapping() *label.RepoMapping { return m.mainRepoMapping }

// AssociatedModuleName returns the module the package's repository was
// fetched for; empty when not module-managed.
func (m *Metadata) AssociatedModuleName() string { return m.associatedModuleName }

// AssociatedModuleVersion returns the fetched module version, if any.
func (m *Metadata) AssociatedModuleVersion() string { return m.associatedModuleVersion }

// Visibility returns the config-setting visibility policy.
func (m *Metadata) Visibility() VisibilityPolicy { return m.visibility }

// SuccinctTargetNotFoundErrors reports whether target lookup misses
// should skip the suggestion machinery.
func (m *Metadata) SuccinctTargetNotFoundErrors() bool { return m.succinctTargetNotFound }

// Declarations are the direct build-file-level declarations owned by the
// top-level piece. Immutable once built.
type Declarations struct {
	workspaceName string
	directLoads   []label.Label
}

// WorkspaceName returns the workspace name declared for the package.
func (d *Declarations) WorkspaceName() string { return d.workspaceName }

// DirectLoads returns the .mac files loaded by the build file, in load
// order.
func (d *Declarations) DirectLoads() []label.Label {
	return slices.Clone(d.directLoads)
}
