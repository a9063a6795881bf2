// internal/acl/middleware.go
//
// Chi middleware helpers that enforce a Policy on host-owned routes
// (e.g. /api/admin/*).  Plugin routes are checked by the dispatcher with
// the same Authorize call.

package acl

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/adept-pluginhost/internal/auth"
	"github.com/yanizio/adept-pluginhost/internal/respond"
)

// Authenticate resolves the request credential and stores the Principal in
// the request context.  Missing or invalid credentials yield 401.
func Authenticate(res interface {
	Resolve(string) (auth.Principal, error)
}, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, _ := auth.BearerToken(r, cookieName)
			p, err := res.Resolve(raw)
			if err != nil {
				zap.S().Debugw("acl authenticate", "path", r.URL.Path, "err", err)
				respond.Error(w, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// Require enforces pol against the Principal placed by Authenticate.
func Require(pol Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.FromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized)
				return
			}
			if _, err := Authorize(p, pol, nil); err != nil {
				zap.S().Infow("acl denied",
					"path", r.URL.Path,
					"subject", p.SubjectID,
					"role", p.Role,
					"err", err)
				respond.Error(w, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
