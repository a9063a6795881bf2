// internal/tenant/helpers.go
//
// Host normalisation shared by the cache and its tests.
//
// Notes
// -----
// • The literal host "localhost" maps to the configured alias (from
//   `database.localhost_alias`) so dev instances can masquerade as any
//   real site row.  Without an alias, localhost resolves nothing.
// • No logging here; caller decides what to log.

package tenant

import (
	"net"
	"strings"
)

// lookupHost strips any port, lower-cases, trims a trailing dot, and
// applies the localhost alias.
func (c *Cache) lookupHost(h string) string {
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	h = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
	if h == "localhost" || h == "127.0.0.1" {
		return c.alias
	}
	return h
}
