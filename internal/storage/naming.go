// internal/storage/naming.go
//
// Physical table naming.
//
// Rules
// -----
//  1. Physical name is `plugin_<slug>_<logical>`.
//  2. Slug: lower-cased, every rune outside [a-z0-9] becomes "_".  The
//     registry only admits slugs matching SlugPattern (lower-kebab), so
//     this mapping is one-to-one over admitted slugs.
//  3. Logical name: lower-cased, every rune outside [a-z0-9] is dropped.
//     The logical part therefore never contains "_", which makes the last
//     "_" of a physical name the slug/logical boundary.  Distinct slugs can
//     never produce the same physical name.
//
// The function is pure and stable across restarts; nothing is persisted.

package storage

import (
	"regexp"
	"strings"
)

// MaxIdentLen is MySQL's identifier limit.
const MaxIdentLen = 64

// SlugPattern is the admitted plugin slug shape, e.g. "hello-world".
var SlugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSlug reports whether slug may own tables.
func ValidSlug(slug string) bool { return SlugPattern.MatchString(slug) }

// TableName maps (slug, logical) to the physical table name.
func TableName(slug, logical string) string {
	return "plugin_" + slugPart(slug) + "_" + LogicalPart(logical)
}

func slugPart(slug string) string {
	var b strings.Builder
	b.Grow(len(slug))
	for _, r := range strings.ToLower(slug) {
		if isAlnum(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// LogicalPart returns the sanitized logical name.  Empty means the input
// had no usable characters.
func LogicalPart(logical string) string {
	var b strings.Builder
	b.Grow(len(logical))
	for _, r := range strings.ToLower(logical) {
		if isAlnum(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// quoteIdent wraps an already-sanitized identifier in backticks.
func quoteIdent(s string) string { return "`" + s + "`" }
