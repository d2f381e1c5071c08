package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"mech-dispatch/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoAuthHeader       = errors.New("authorization header missing")
	ErrBadAuthScheme      = errors.New("authorization must start with Bearer")
	ErrEmptyToken         = errors.New("bearer token missing")
	ErrInvalidSigningAlgo = errors.New("unexpected signing method")
	ErrRoleForbidden      = errors.New("role not allowed")
)

// Manager signs and verifies the HS256 access tokens used by every service
// mode. The same secret must be configured for all three, otherwise a token
// minted against one service fails on the next.
type Manager struct {
	secret    []byte
	accessTTL time.Duration
}

// NewManager creates a token manager. An empty secret is a deployment error
// caught at startup.
func NewManager(secret string, accessTTL time.Duration) *Manager {
	s := strings.TrimSpace(secret)
	if s == "" {
		panic("jwt: empty secret key")
	}

	return &Manager{
		secret:    []byte(s),
		accessTTL: accessTTL,
	}
}

// IssueUserToken returns a signed access token for a user (customer/mechanic/admin).
func (m *Manager) IssueUserToken(userID string, role user.Role) (string, *Claims, error) {
	if !role.Valid() {
		return "", nil, fmt.Errorf("invalid role: %s", role)
	}

	claims := NewUserClaims(userID, role, m.accessTTL)
	tkn := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := tkn.SignedString(m.secret)

	return signed, claims, err
}

// FromAuthorization reads "Authorization: Bearer <token>". WebSocket clients
// that cannot set headers may pass the same value as a query parameter.
func FromAuthorization(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer "), nil
	}

	if authParam := r.URL.Query().Get("Authorization"); authParam != "" {
		if strings.HasPrefix(authParam, "Bearer ") {
			return strings.TrimPrefix(authParam, "Bearer "), nil
		}
		return authParam, nil // some clients send just the token
	}

	return "", fmt.Errorf("missing or malformed Authorization")
}

// ParseAndValidate verifies the signature and the standard time claims.
// Only HS256 is accepted; a token signed with any other method is rejected
// before the key callback runs.
func (m *Manager) ParseAndValidate(tokenString string) (*jwtlib.Token, *Claims, error) {
	parser := jwtlib.NewParser(jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwtlib.Token) (any, error) {
		if t.Method != jwtlib.SigningMethodHS256 {
			return nil, ErrInvalidSigningAlgo
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, nil, err
	}

	if !token.Valid {
		return nil, nil, errors.New("invalid token")
	}

	return token, claims, nil
}

// RoleAllowed asserts the claims' role is one of the allowed.
func RoleAllowed(cl *Claims, allowed ...user.Role) error {
	if slices.Contains(allowed, cl.Role) {
		return nil
	}
	return ErrRoleForbidden
}

// Context wiring (used by middleware)
type ctxKey string

const claimsCtxKey ctxKey = "jwtClaims"

// InjectClaims adds JWT claims to the context.
func InjectClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, c)
}

// FromContext extracts JWT claims from the context.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsCtxKey).(*Claims)
	return c, ok
}
