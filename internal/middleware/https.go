// Package middleware holds small, composable HTTP wrappers.
package middleware

import (
	"context"
	"net"
	"net/http"
)

// SiteLookup confirms a host belongs to a known site.
type SiteLookup interface {
	SiteID(ctx context.Context, host string) (int64, error)
}

// ForceHTTPS returns a wrapper that, when enabled, issues a 308 Permanent
// Redirect to the HTTPS version of the URL for plain-HTTP requests to a
// known site.  Localhost and unknown hosts pass through unchanged.
func ForceHTTPS(enabled bool, sites SiteLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := StripPort(r.Host)
			if isTLS(r) || host == "localhost" || host == "127.0.0.1" {
				next.ServeHTTP(w, r)
				return
			}
			if sites != nil {
				if _, err := sites.SiteID(r.Context(), host); err != nil {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Redirect(w, r, "https://"+r.Host+r.URL.RequestURI(), http.StatusPermanentRedirect)
		})
	}
}

// StripPort removes the :port suffix from a Host header when present.
func StripPort(h string) string {
	if host, _, err := net.SplitHostPort(h); err == nil {
		return host
	}
	return h
}
