// internal/auth/principal.go
//
// Principal model.
//
// Context
// -------
// A Principal is the verified identity behind one request.  It is decoded
// from a signed credential by Resolver and never persisted by the host.
//
//	SubjectID  – numeric user id assigned by the credential issuer.
//	Email      – informational, not used for authorization.
//	Role       – one of the five platform roles below.
//	TenantID   – nil for global operators; otherwise the single site the
//	             principal is pinned to.
//
// Notes
// -----
// • Principal is passed by value; TenantID is copied on construction so a
//   handler can never mutate another request's view of it.
// • Oxford commas, two spaces after periods.
package auth

import (
	"fmt"
	"strings"
)

// Role is a platform-wide role name as carried in the credential.
type Role string

const (
	RoleAdmin         Role = "admin"
	RolePageDeveloper Role = "page_developer"
	RoleSubscriber    Role = "subscriber"
	RoleBlogger       Role = "blogger"
	RoleBloggerAdmin  Role = "blogger_admin"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:         {},
	RolePageDeveloper: {},
	RoleSubscriber:    {},
	RoleBlogger:       {},
	RoleBloggerAdmin:  {},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// ParseRole normalises s and returns the matching Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("auth: unknown role %q", s)
	}
	return r, nil
}

// Principal is immutable for the lifetime of a request.
type Principal struct {
	SubjectID int64  `json:"subjectId"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	TenantID  *int64 `json:"tenantId"`
}

// NewPrincipal builds a Principal with its own copy of tenantID.
func NewPrincipal(subjectID int64, email string, role Role, tenantID *int64) Principal {
	return Principal{
		SubjectID: subjectID,
		Email:     email,
		Role:      role,
		TenantID:  CopyID(tenantID),
	}
}

// Global reports whether the principal acts across tenants.
func (p Principal) Global() bool { return p.TenantID == nil }

// Tenant returns the pinned tenant id, if any.
func (p Principal) Tenant() (int64, bool) {
	if p.TenantID == nil {
		return 0, false
	}
	return *p.TenantID, true
}

// CopyID returns a fresh pointer holding the same value, or nil.
func CopyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
