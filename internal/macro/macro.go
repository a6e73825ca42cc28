// Package macro models evaluated macro instances. The expansion engine
// that evaluates macro bodies is external; these types describe what it
// hands over to the package-piece builders.
package macro

import (
	"fmt"
	"strings"

	"mason/internal/label"
)

// NamingRuleHint describes the namespace containment rule for targets
// declared inside a macro. Referenced by violation errors.
const NamingRuleHint = "target names inside a macro must equal the macro instance name, " +
	"or begin with it followed by '_', '-' or '.'"

// Class describes one macro implementation: its exported name and the
// .mac library file that defines it.
type Class struct {
	Name          string
	DefiningLabel label.Label
}

// NewClass validates the class name (target-name rules apply) and the
// defining label.
func NewClass(name string, definingLabel label.Label) (*Class, error) {
	if err := label.ValidateTargetName(name); err != nil {
		return nil, fmt.Errorf("invalid macro class name: %w", err)
	}
	if definingLabel.IsZero() {
		return nil, fmt.Errorf("macro class %q: missing defining label", name)
	}
	return &Class{Name: name, DefiningLabel: definingLabel}, nil
}

// Instance is one evaluated use of a macro class inside a package.
// SameNameDepth disambiguates nested instances sharing a name: the
// outermost instance with a given name has depth 1.
type Instance struct {
	Class         *Class
	Name          string
	SameNameDepth int
}

// NewInstance validates the instance name and depth.
func NewInstance(class *Class, name string, sameNameDepth int) (*Instance, error) {
	if class == nil {
		return nil, fmt.Errorf("macro instance %q: nil class", name)
	}
	if err := label.ValidateTargetName(name); err != nil {
		return nil, fmt.Errorf("invalid macro instance name: %w", err)
	}
	if sameNameDepth < 1 {
		return nil, fmt.Errorf("macro instance %q: same-name depth %d out of range", name, sameNameDepth)
	}
	return &Instance{Class: class, Name: name, SameNameDepth: sameNameDepth}, nil
}

// ID identifies the instance within its package piece: the instance
// name, suffixed with ":<depth>" for nested same-name instances.
func (m *Instance) ID() string {
	if m.SameNameDepth <= 1 {
		return m.Name
	}
	return fmt.Sprintf("%s:%d", m.Name, m.SameNameDepth)
}

// NamespaceContains reports whether targetName complies with the
// instance's namespace: the name itself, or the name plus a '_', '-' or
// '.' separated suffix.
func (m *Instance) NamespaceContains(targetName string) bool {
	if targetName == m.Name {
		return true
	}
	rest, ok := strings.CutPrefix(targetName, m.Name)
	if !ok || rest == "" {
		return false
	}
	switch rest[0] {
	case '_', '-', '.':
		return true
	}
	return false
}

func (m *Instance) String() string {
	return fmt.Sprintf("macro %q (class %s)", m.Name, m.Class.Name)
}
