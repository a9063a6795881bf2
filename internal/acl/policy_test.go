package acl

import (
	"errors"
	"testing"

	"github.com/yanizio/adept-pluginhost/internal/auth"
)

func id(v int64) *int64 { return &v }

func TestAuthorize_Table(t *testing.T) {
	tenant7 := auth.NewPrincipal(1, "", auth.RoleBlogger, id(7))
	global := auth.NewPrincipal(2, "", auth.RoleAdmin, nil)
	sub := auth.NewPrincipal(3, "", auth.RoleSubscriber, id(7))

	cases := []struct {
		name    string
		p       auth.Principal
		pol     Policy
		implied *int64
		reason  Reason
		tenant  *int64
	}{
		{"role denied", sub, Policy{Roles: []auth.Role{auth.RoleAdmin}}, nil, ReasonRole, nil},
		{"role allowed", global, Policy{AllSites: true, Roles: []auth.Role{auth.RoleAdmin}}, nil, "", nil},
		{"tenant pinned on site route", tenant7, Policy{}, id(99), "", id(7)},
		{"tenant pinned on allSites", tenant7, Policy{AllSites: true}, nil, "", id(7)},
		{"tenant on global-only", tenant7, Policy{AllSites: true, GlobalOnly: true}, nil, ReasonGlobalOnly, nil},
		{"global-only implies allSites", global, Policy{GlobalOnly: true}, nil, "", nil},
		{"global on allSites acts globally", global, Policy{AllSites: true}, id(5), "", nil},
		{"global on site route with implied", global, Policy{}, id(5), "", id(5)},
		{"global on site route without tenant", global, Policy{}, nil, ReasonTenantRequired, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec, err := Authorize(tc.p, tc.pol, tc.implied)
			if tc.reason != "" {
				var d *Denied
				if !errors.As(err, &d) || d.Reason != tc.reason {
					t.Fatalf("err = %v, want reason %s", err, tc.reason)
				}
				if !errors.Is(err, ErrForbidden) {
					t.Fatalf("err does not match ErrForbidden: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch {
			case tc.tenant == nil && dec.TenantID != nil:
				t.Fatalf("tenant = %d, want nil", *dec.TenantID)
			case tc.tenant != nil && (dec.TenantID == nil || *dec.TenantID != *tc.tenant):
				t.Fatalf("tenant = %v, want %d", dec.TenantID, *tc.tenant)
			}
		})
	}
}

func TestAuthorize_GlobalOnlyDeniesEveryTenantRole(t *testing.T) {
	roles := []auth.Role{
		auth.RoleAdmin, auth.RolePageDeveloper, auth.RoleSubscriber,
		auth.RoleBlogger, auth.RoleBloggerAdmin,
	}
	pol := Policy{AllSites: true, GlobalOnly: true}
	for _, r := range roles {
		_, err := Authorize(auth.NewPrincipal(1, "", r, id(3)), pol, nil)
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("role %s: err = %v, want forbidden", r, err)
		}
	}
}

func TestAuthorize_ImpliedTenantIsCopied(t *testing.T) {
	implied := id(5)
	dec, err := Authorize(auth.NewPrincipal(1, "", auth.RoleAdmin, nil), Policy{}, implied)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	*implied = 6
	if *dec.TenantID != 5 {
		t.Fatalf("decision aliased implied tenant: %d", *dec.TenantID)
	}
}
