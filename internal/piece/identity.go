package piece

import (
	"mason/internal/label"
)

// Identity names one package piece. It is a pure value: comparable,
// hashable, usable as a map key, and independent of the piece contents.
// Two shapes share the struct: top-level identities carry only the
// package and the build file label; macro identities additionally carry
// the macro class name and the instance name, always both.
type Identity struct {
	Pkg            label.PackageID
	DefiningLabel  label.Label
	DefiningSymbol string
	InstanceName   string
}

// NewIdentity builds the identity of a top-level piece. definingLabel is
// the build file label and must not be zero.
func NewIdentity(pkg label.PackageID, definingLabel label.Label) Identity {
	if definingLabel.IsZero() {
		panic("piece: identity needs a defining label")
	}
	return Identity{Pkg: pkg, DefiningLabel: definingLabel}
}

// NewMacroIdentity builds the identity of a macro piece. definingLabel
// is the .mac file defining the macro class, definingSymbol the class
// name, instanceName the evaluated instance id. Panics unless both
// macro fields are present.
func NewMacroIdentity(pkg label.PackageID, definingLabel label.Label, definingSymbol, instanceName string) Identity {
	if definingLabel.IsZero() {
		panic("piece: identity needs a defining label")
	}
	if definingSymbol == "" || instanceName == "" {
		panic("piece: macro identity needs both a defining symbol and an instance name")
	}
	return Identity{
		Pkg:            pkg,
		DefiningLabel:  definingLabel,
		DefiningSymbol: definingSymbol,
		InstanceName:   instanceName,
	}
}

// IsForMacro reports whether id names a macro piece.
func (id Identity) IsForMacro() bool { return id.DefiningSymbol != "" }

// CanonicalName renders "<pkg>" for top-level pieces and
// "<pkg>:<instance>" for macro pieces.
func (id Identity) CanonicalName() string {
	if id.InstanceName == "" {
		return id.Pkg.CanonicalForm()
	}
	return id.Pkg.CanonicalForm() + ":" + id.InstanceName
}

// CanonicalDefinedBy renders "<definingLabel>" for top-level pieces and
// "<definingLabel>%<symbol>" for macro pieces.
func (id Identity) CanonicalDefinedBy() string {
	if id.DefiningSymbol == "" {
		return id.DefiningLabel.CanonicalForm()
	}
	return id.DefiningLabel.CanonicalForm() + "%" + id.DefiningSymbol
}

func (id Identity) String() string {
	return id.CanonicalName() + " defined by " + id.CanonicalDefinedBy()
}
