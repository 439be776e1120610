// Package auth issues and verifies the bearer tokens that carry the acting
// identity (uid and role) into the API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the kind of account behind a request.
type Role string

const (
	RoleVolunteer    Role = "volunteer"
	RoleOrganization Role = "organization"
)

// ParseRole accepts the two known roles.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleVolunteer:
		return RoleVolunteer, nil
	case RoleOrganization:
		return RoleOrganization, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   Role
}

// IsOrganization reports whether the caller acts for a rescue organization.
func (id Identity) IsOrganization() bool {
	return id.Role == RoleOrganization
}

// ErrInvalidToken covers every reason a token is rejected.
var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer constructs an Issuer.
func NewIssuer(secret []byte, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue returns a signed token for uid acting as role.
func (i *Issuer) Issue(uid string, role Role) (string, error) {
	if uid == "" {
		return "", errors.New("uid required")
	}
	now := i.now()
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the identity.
func (i *Issuer) Verify(token string) (*Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	role, err := ParseRole(string(c.Role))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &Identity{UserID: c.Subject, Role: role}, nil
}

type contextKey string

const contextKeyIdentity contextKey = "identity"

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

// FromContext returns the identity attached by Middleware, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKeyIdentity).(*Identity)
	return id, ok && id != nil
}

// Middleware attaches the bearer token's identity to the request. Requests
// without a token pass through anonymous; handlers decide whether that is
// allowed. A present but invalid token is rejected with 401.
func Middleware(issuer *Issuer, reject func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !strings.HasPrefix(header, "Bearer ") {
				reject(w, fmt.Errorf("%w: expected bearer scheme", ErrInvalidToken))
				return
			}
			id, err := issuer.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				reject(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
