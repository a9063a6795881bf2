package vault

import (
	"errors"
	"fmt"
	"strings"
)

// RefPrefix marks a configuration value that lives in Vault.
const RefPrefix = "vault:"

// ErrBadRef is returned for references that do not match
// `vault:<mount>/<path>#<key>`.
var ErrBadRef = errors.New("vault: malformed reference")

// Ref is a parsed secret reference.
type Ref struct {
	Path string // "<mount>/<path>"
	Key  string
}

// IsRef reports whether s should be resolved through Vault.
func IsRef(s string) bool { return strings.HasPrefix(s, RefPrefix) }

// ParseRef splits `vault:secret/adept/db#password` into its parts.
func ParseRef(s string) (Ref, error) {
	if !IsRef(s) {
		return Ref{}, fmt.Errorf("%w: %q lacks %q prefix", ErrBadRef, s, RefPrefix)
	}
	path, key, ok := strings.Cut(strings.TrimPrefix(s, RefPrefix), "#")
	mount, rel, _ := strings.Cut(path, "/")
	if !ok || key == "" || mount == "" || rel == "" {
		return Ref{}, fmt.Errorf("%w: %q", ErrBadRef, s)
	}
	return Ref{Path: path, Key: key}, nil
}
