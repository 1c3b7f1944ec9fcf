// Package auth provides JWT-based authentication for ekaya-dq.
// It validates tokens using JWKS endpoints and scopes callers to the
// connections their token names.
package auth

import (
	"context"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// WildcardConnection in the conns claim grants access to every connection.
const WildcardConnection = "*"

// Claims represents the JWT claims accepted by ekaya-dq.
// It embeds RegisteredClaims for standard JWT fields (sub, iss, exp, etc.)
// and adds the connection scope.
type Claims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email,omitempty"` // User email address
	Roles       []string `json:"roles,omitempty"` // User roles
	Connections []string `json:"conns,omitempty"` // Connection IDs the caller may read
}

// AllowsConnection reports whether the claims grant access to connectionID.
// A token without a conns claim is unscoped.
func (c *Claims) AllowsConnection(connectionID string) bool {
	if len(c.Connections) == 0 {
		return true
	}
	return slices.Contains(c.Connections, WildcardConnection) || slices.Contains(c.Connections, connectionID)
}

// WithAuth returns a context carrying claims and the raw token.
func WithAuth(ctx context.Context, claims *Claims, token string) context.Context {
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return context.WithValue(ctx, TokenKey, token)
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
// Returns empty string and false if token is not present.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// GetUserIDFromContext extracts the user ID from JWT claims in the context.
// Returns empty string if not authenticated or claims are missing.
func GetUserIDFromContext(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return ""
	}
	return claims.Subject
}
