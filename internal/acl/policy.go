// internal/acl/policy.go
//
// Route-level authorization policy.
//
// Context
// -------
// Every plugin route and every host-owned admin route carries a Policy.
// Authorize evaluates it against the resolved Principal as an ordered list
// of checks.  Each step either passes or denies with a named Reason:
//
//  1. Role allow-list.  Non-empty Roles must contain the principal's role.
//  2. Global-only.  Tenant-scoped principals never reach operator surfaces.
//  3. Tenant pinning.  A tenant-scoped principal always acts on its own
//     tenant; any tenant implied by the request (host, header) is ignored.
//  4. Global principals.  On AllSites routes they act globally (nil
//     tenant).  On site routes they need an implied tenant, else deny.
//
// Notes
// -----
// • GlobalOnly implies AllSites.
// • Pure function; no I/O, no logging.  The dispatcher logs the Reason.
// • Oxford commas, two spaces after periods.
package acl

import (
	"errors"

	"github.com/yanizio/adept-pluginhost/internal/auth"
)

// ErrForbidden is the sentinel behind every *Denied.
var ErrForbidden = errors.New("acl: forbidden")

// Reason names the policy step that denied a request.
type Reason string

const (
	ReasonRole           Reason = "role_not_allowed"
	ReasonGlobalOnly     Reason = "global_only"
	ReasonTenantRequired Reason = "tenant_required"
)

// Denied is returned by Authorize.  errors.Is(err, ErrForbidden) holds.
type Denied struct {
	Reason Reason
}

func (d *Denied) Error() string { return "acl: forbidden: " + string(d.Reason) }
func (d *Denied) Unwrap() error { return ErrForbidden }

// Policy is the authorization half of a route registration.
type Policy struct {
	AllSites   bool
	GlobalOnly bool
	Roles      []auth.Role
}

// SiteWide reports whether the route is reachable without a tenant.
func (p Policy) SiteWide() bool { return p.AllSites || p.GlobalOnly }

func (p Policy) allowsRole(r auth.Role) bool {
	if len(p.Roles) == 0 {
		return true
	}
	for _, allowed := range p.Roles {
		if allowed == r {
			return true
		}
	}
	return false
}

// Decision is the outcome of a successful Authorize.
type Decision struct {
	// TenantID is the tenant the request acts on; nil means globally.
	TenantID *int64
}

// Authorize runs the ordered checks.  implied is the tenant suggested by
// the request itself and is consulted only for global principals.
func Authorize(p auth.Principal, pol Policy, implied *int64) (Decision, error) {
	if !pol.allowsRole(p.Role) {
		return Decision{}, &Denied{Reason: ReasonRole}
	}

	if tid, scoped := p.Tenant(); scoped {
		if pol.GlobalOnly {
			return Decision{}, &Denied{Reason: ReasonGlobalOnly}
		}
		return Decision{TenantID: &tid}, nil
	}

	if pol.SiteWide() {
		return Decision{}, nil
	}
	if implied == nil {
		return Decision{}, &Denied{Reason: ReasonTenantRequired}
	}
	return Decision{TenantID: auth.CopyID(implied)}, nil
}
