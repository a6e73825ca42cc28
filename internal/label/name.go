package label

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmptyName indicates an empty target name.
	ErrEmptyName = errors.New("empty target name")
	// ErrNotNormalized indicates a name that is not NFC-normalized UTF-8.
	ErrNotNormalized = errors.New("not NFC-normalized UTF-8")
)

// ValidateTargetName checks a target name: non-empty, no path or label
// separators, no control characters, NFC-normalized UTF-8. Names are
// identity material; two byte sequences that merely render alike must
// not both pass.
func ValidateTargetName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid target name %q: reserved", name)
	}
	if strings.ContainsAny(name, "/:@") {
		return fmt.Errorf("invalid target name %q: '/', ':' and '@' are not allowed", name)
	}
	if err := checkRunes(name); err != nil {
		return fmt.Errorf("invalid target name %q: %w", name, err)
	}
	return nil
}

// ValidatePackagePath checks a slash-separated package path. The empty
// path is the repository root package.
func ValidatePackagePath(path string) error {
	if path == "" {
		return nil
	}
	if strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return fmt.Errorf("invalid package path %q: leading or trailing '/'", path)
	}
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "":
			return fmt.Errorf("invalid package path %q: empty segment", path)
		case ".", "..":
			return fmt.Errorf("invalid package path %q: segment %q is reserved", path, seg)
		}
	}
	if strings.ContainsAny(path, ":@") {
		return fmt.Errorf("invalid package path %q: ':' and '@' are not allowed", path)
	}
	if err := checkRunes(path); err != nil {
		return fmt.Errorf("invalid package path %q: %w", path, err)
	}
	return nil
}

// ValidateRepoName checks a canonical repository name. The empty name is
// the main repository and is always valid.
func ValidateRepoName(repo RepoName) error {
	for _, r := range repo {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-' || r == '+':
		default:
			return fmt.Errorf("invalid repository name %q: %q is not allowed", repo, r)
		}
	}
	return nil
}

func checkRunes(s string) error {
	if !utf8.ValidString(s) {
		return errors.New("not valid UTF-8")
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return errors.New("control characters are not allowed")
		}
	}
	if !norm.NFC.IsNormalString(s) {
		return ErrNotNormalized
	}
	return nil
}
