// internal/auth/resolver.go
//
// Principal resolver: signed credential → Principal.
//
// Context
// -------
// Credentials are HS256 JSON Web Tokens minted by an external issuer.  The
// token is self-contained; the resolver never touches the database.  Claims:
//
//	{ "subjectId": 12, "email": "a@b.c", "role": "admin",
//	  "tenantId": 7 | null, "exp": …, "iat": …, "iss": … }
//
// Any verification failure (missing, malformed, expired, bad signature,
// wrong algorithm, unknown role) yields ErrUnauthenticated.  Callers map it
// to a rejection, never to an anonymous principal.
//
// Notes
// -----
// • `exp` is mandatory.  Tokens without it are rejected.
// • Issue exists for tests and the `token:issue` dev command.
// • Oxford commas, two spaces after periods.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned for every credential that fails
// verification.  Match with errors.Is.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// MinKeyLen is the minimum HMAC key size accepted by NewResolver.
const MinKeyLen = 32

type claims struct {
	SubjectID int64  `json:"subjectId"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	TenantID  *int64 `json:"tenantId"`
	jwt.RegisteredClaims
}

// Resolver verifies credentials.  Safe for concurrent use.
type Resolver struct {
	key    []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithIssuer requires (and stamps) the `iss` claim.
func WithIssuer(iss string) ResolverOption {
	return func(r *Resolver) { r.issuer = iss }
}

// WithLeeway tolerates small clock skew on `exp`, `nbf`, and `iat`.
func WithLeeway(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.leeway = d }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver returns a Resolver keyed with secret.
func NewResolver(secret []byte, opts ...ResolverOption) (*Resolver, error) {
	if len(secret) < MinKeyLen {
		return nil, fmt.Errorf("auth: signing key must be at least %d bytes", MinKeyLen)
	}
	r := &Resolver{
		key: append([]byte(nil), secret...),
		now: time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Resolve verifies raw and decodes its claims into a Principal.
func (r *Resolver) Resolve(raw string) (Principal, error) {
	if strings.TrimSpace(raw) == "" {
		return Principal{}, fmt.Errorf("%w: missing credential", ErrUnauthenticated)
	}

	popts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(r.leeway),
		jwt.WithTimeFunc(r.now),
	}
	if r.issuer != "" {
		popts = append(popts, jwt.WithIssuer(r.issuer))
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return r.key, nil
	}, popts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if c.SubjectID <= 0 {
		return Principal{}, fmt.Errorf("%w: missing subjectId", ErrUnauthenticated)
	}
	if !c.Role.Valid() {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, c.Role)
	}
	if c.TenantID != nil && *c.TenantID <= 0 {
		return Principal{}, fmt.Errorf("%w: invalid tenantId", ErrUnauthenticated)
	}

	return NewPrincipal(c.SubjectID, c.Email, c.Role, c.TenantID), nil
}

// Issue signs a credential for p that expires after ttl.
func (r *Resolver) Issue(p Principal, ttl time.Duration) (string, error) {
	if !p.Role.Valid() {
		return "", fmt.Errorf("auth: unknown role %q", p.Role)
	}
	now := r.now()
	c := claims{
		SubjectID: p.SubjectID,
		Email:     p.Email,
		Role:      p.Role,
		TenantID:  CopyID(p.TenantID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.SubjectID, 10),
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(r.key)
}

// BearerToken extracts the raw credential from the Authorization header,
// falling back to the named cookie when cookieName is non-empty.
func BearerToken(r *http.Request, cookieName string) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(tok) != "" {
			return strings.TrimSpace(tok), true
		}
		return "", false
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}
