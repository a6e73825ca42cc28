package label

import (
	"fmt"
	"strings"
)

// RepoName is a canonical repository name. The empty name is the main
// repository.
type RepoName string

// MainRepo is the canonical name of the main repository.
const MainRepo RepoName = ""

// IsMain reports whether r names the main repository.
func (r RepoName) IsMain() bool { return r == "" }

func (r RepoName) String() string {
	if r.IsMain() {
		return ""
	}
	return "@" + string(r)
}

// PackageID identifies one package directory within a repository.
// It is comparable and usable as a map key; the caches rely on that.
type PackageID struct {
	Repo RepoName
	Path string
}

// NewPackageID validates repo and path and builds a PackageID.
func NewPackageID(repo RepoName, path string) (PackageID, error) {
	if err := ValidateRepoName(repo); err != nil {
		return PackageID{}, err
	}
	if err := ValidatePackagePath(path); err != nil {
		return PackageID{}, err
	}
	return PackageID{Repo: repo, Path: path}, nil
}

// MustPackageID is NewPackageID that panics on invalid input.
func MustPackageID(repo RepoName, path string) PackageID {
	id, err := NewPackageID(repo, path)
	if err != nil {
		panic(err)
	}
	return id
}

// CanonicalForm renders "//path" for the main repository and
// "@repo//path" otherwise.
func (p PackageID) CanonicalForm() string {
	return p.Repo.String() + "//" + p.Path
}

func (p PackageID) String() string { return p.CanonicalForm() }

// IsRoot reports whether p is the repository root package.
func (p PackageID) IsRoot() bool { return p.Path == "" }

// ParsePackageID parses "[@repo]//path".
func ParsePackageID(s string) (PackageID, error) {
	rest := s
	repo := MainRepo
	if strings.HasPrefix(rest, "@") {
		slash := strings.Index(rest, "//")
		if slash < 0 {
			return PackageID{}, fmt.Errorf("invalid package %q: missing //", s)
		}
		repo = RepoName(rest[1:slash])
		rest = rest[slash:]
	}
	if !strings.HasPrefix(rest, "//") {
		return PackageID{}, fmt.Errorf("invalid package %q: must start with // or @repo//", s)
	}
	id, err := NewPackageID(repo, rest[2:])
	if err != nil {
		return PackageID{}, fmt.Errorf("invalid package %q: %w", s, err)
	}
	return id, nil
}

// Label points at one target within a package.
type Label struct {
	Pkg  PackageID
	Name string
}

// NewLabel validates name and builds a Label.
func NewLabel(pkg PackageID, name string) (Label, error) {
	if err := ValidateTargetName(name); err != nil {
		return Label{}, err
	}
	return Label{Pkg: pkg, Name: name}, nil
}

// MustLabel is NewLabel that panics on invalid input.
func MustLabel(pkg PackageID, name string) Label {
	l, err := NewLabel(pkg, name)
	if err != nil {
		panic(err)
	}
	return l
}

// CanonicalForm renders "[@repo]//path:name".
func (l Label) CanonicalForm() string {
	return l.Pkg.CanonicalForm() + ":" + l.Name
}

func (l Label) String() string { return l.CanonicalForm() }

// IsZero reports whether l is the zero Label.
func (l Label) IsZero() bool { return l == Label{} }

// ParseLabel parses "[@repo]//path[:name]". When :name is omitted the
// last path segment is the target name; the root package always needs
// an explicit :name.
func ParseLabel(s string) (Label, error) {
	pkgPart := s
	name := ""
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		pkgPart, name = s[:i], s[i+1:]
	}
	pkg, err := ParsePackageID(pkgPart)
	if err != nil {
		return Label{}, err
	}
	if name == "" {
		if pkg.IsRoot() {
			return Label{}, fmt.Errorf("invalid label %q: root package labels need an explicit :name", s)
		}
		name = pkg.Path[strings.LastIndexByte(pkg.Path, '/')+1:]
	}
	l, err := NewLabel(pkg, name)
	if err != nil {
		return Label{}, fmt.Errorf("invalid label %q: %w", s, err)
	}
	return l, nil
}
