package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates authentication logic to AuthService.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware with the given AuthService.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger,
	}
}

// RequireAuth validates the JWT and sets claims and token in context for
// downstream handlers.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.unauthorized(w, "Authentication required")
			return
		}

		next(w, r.WithContext(WithAuth(r.Context(), claims, token)))
	}
}

// RequireConnectionAccess validates the JWT and checks that its conns claim
// covers the connection named by the path parameter.
// pathParamName is the name used in r.PathValue() (e.g., "id").
func (m *Middleware) RequireConnectionAccess(pathParamName string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, token, err := m.authService.ValidateRequest(r)
			if err != nil {
				m.unauthorized(w, "Authentication required")
				return
			}

			if err := m.authService.AuthorizeConnection(claims, r.PathValue(pathParamName)); err != nil {
				m.forbidden(w, "Token does not grant access to this connection")
				return
			}

			next(w, r.WithContext(WithAuth(r.Context(), claims, token)))
		}
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, "unauthorized", message)
}

// forbidden returns a 403 response with JSON error body.
func (m *Middleware) forbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, "forbidden", message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
