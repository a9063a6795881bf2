// internal/auth/context.go
//
// Request-context helpers for the resolved Principal.
//
// Usage
// -----
//
//	// Dispatcher, after the credential verifies.
//	ctx = auth.WithPrincipal(ctx, p)
//
//	// Downstream code retrieves it.
//	p, ok := auth.FromContext(ctx)
//	id, ok := auth.UserID(ctx)
//
// Notes
// -----
// • Stores the Principal by value; callers receive a copy.
// • Oxford commas, two spaces after periods.

package auth

import "context"

// principalKey is unexported to avoid context-key collisions.
type principalKey struct{}

// WithPrincipal returns a new context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext extracts the Principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok {
		return Principal{}, false
	}
	p.TenantID = CopyID(p.TenantID)
	return p, true
}

// UserID returns the subject id of the principal in ctx.  It returns
// (0, false) when no principal is attached.
func UserID(ctx context.Context) (int64, bool) {
	p, ok := FromContext(ctx)
	if !ok {
		return 0, false
	}
	return p.SubjectID, true
}
