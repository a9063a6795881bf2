package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func newTestResolver(t *testing.T, opts ...ResolverOption) *Resolver {
	t.Helper()
	r, err := NewResolver(testKey, opts...)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func sign(t *testing.T, method jwt.SigningMethod, key any, c jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, c).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestNewResolver_ShortKey(t *testing.T) {
	if _, err := NewResolver([]byte("short")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestResolve_RoundTrip(t *testing.T) {
	r := newTestResolver(t, WithIssuer("adept"))
	site := int64(7)

	tok, err := r.Issue(NewPrincipal(12, "ed@example.com", RoleBlogger, &site), time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p, err := r.Resolve(tok)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.SubjectID != 12 || p.Email != "ed@example.com" || p.Role != RoleBlogger {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if id, ok := p.Tenant(); !ok || id != 7 {
		t.Fatalf("tenant = %d, %v; want 7, true", id, ok)
	}
}

func TestResolve_GlobalPrincipal(t *testing.T) {
	r := newTestResolver(t)
	tok, err := r.Issue(NewPrincipal(1, "ops@example.com", RoleAdmin, nil), time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	p, err := r.Resolve(tok)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !p.Global() {
		t.Fatalf("expected global principal, got tenant %v", *p.TenantID)
	}
}

func TestResolve_Rejects(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestResolver(t, WithClock(fixedClock(now)), WithIssuer("adept"))

	good := func() claims {
		return claims{
			SubjectID: 3,
			Email:     "x@example.com",
			Role:      RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "adept",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
	}

	expired := good()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	noExp := good()
	noExp.ExpiresAt = nil

	badRole := good()
	badRole.Role = "root"

	noSubject := good()
	noSubject.SubjectID = 0

	wrongIssuer := good()
	wrongIssuer.Issuer = "someone-else"

	zeroTenant := good()
	zero := int64(0)
	zeroTenant.TenantID = &zero

	cases := map[string]string{
		"empty":        "",
		"malformed":    "not-a-token",
		"expired":      sign(t, jwt.SigningMethodHS256, testKey, expired),
		"missing exp":  sign(t, jwt.SigningMethodHS256, testKey, noExp),
		"bad sig":      sign(t, jwt.SigningMethodHS256, []byte("ffffffffffffffffffffffffffffffff"), good()),
		"wrong alg":    sign(t, jwt.SigningMethodHS512, testKey, good()),
		"alg none":     sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, good()),
		"unknown role": sign(t, jwt.SigningMethodHS256, testKey, badRole),
		"no subject":   sign(t, jwt.SigningMethodHS256, testKey, noSubject),
		"wrong issuer": sign(t, jwt.SigningMethodHS256, testKey, wrongIssuer),
		"zero tenant":  sign(t, jwt.SigningMethodHS256, testKey, zeroTenant),
	}

	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(tok)
			if !errors.Is(err, ErrUnauthenticated) {
				t.Fatalf("err = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestResolve_Leeway(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := newTestResolver(t, WithClock(fixedClock(now)), WithLeeway(time.Minute))

	c := claims{
		SubjectID: 3,
		Role:      RoleSubscriber,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(-30 * time.Second)),
		},
	}
	if _, err := r.Resolve(sign(t, jwt.SigningMethodHS256, testKey, c)); err != nil {
		t.Fatalf("token within leeway rejected: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def")
	if tok, ok := BearerToken(req, ""); !ok || tok != "abc.def" {
		t.Fatalf("header token = %q, %v", tok, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	if _, ok := BearerToken(req, "token"); ok {
		t.Fatal("basic auth must not yield a bearer token")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "from-cookie"})
	if tok, ok := BearerToken(req, "token"); !ok || tok != "from-cookie" {
		t.Fatalf("cookie token = %q, %v", tok, ok)
	}
	if _, ok := BearerToken(req, ""); ok {
		t.Fatal("cookie must be ignored when no cookie name is configured")
	}
}

func TestContextRoundTrip(t *testing.T) {
	site := int64(9)
	ctx := WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil).Context(),
		NewPrincipal(5, "", RolePageDeveloper, &site))

	p, ok := FromContext(ctx)
	if !ok || p.SubjectID != 5 {
		t.Fatalf("FromContext = %+v, %v", p, ok)
	}
	*p.TenantID = 100 // must not leak into the stored copy

	again, _ := FromContext(ctx)
	if *again.TenantID != 9 {
		t.Fatalf("stored tenant mutated: %d", *again.TenantID)
	}
	if id, ok := UserID(ctx); !ok || id != 5 {
		t.Fatalf("UserID = %d, %v", id, ok)
	}
}
