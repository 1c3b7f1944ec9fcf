package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrConnectionForbidden  = errors.New("token does not grant access to connection")
)

// AuthService defines the interface for authentication operations.
type AuthService interface {
	// ValidateRequest extracts and validates a JWT from the request.
	// It checks for the token in:
	//   1. Cookie named "ekaya_jwt" (browser clients)
	//   2. Authorization header with "Bearer" scheme (API clients)
	// Returns the validated claims, the raw token string, or an error.
	ValidateRequest(r *http.Request) (*Claims, string, error)

	// AuthorizeConnection ensures the claims grant access to connectionID.
	AuthorizeConnection(claims *Claims, connectionID string) error
}

// authService implements AuthService.
type authService struct {
	jwksClient JWKSClientInterface
	logger     *zap.Logger
}

// NewAuthService creates a new AuthService with the given JWKS client and logger.
func NewAuthService(jwksClient JWKSClientInterface, logger *zap.Logger) AuthService {
	return &authService{
		jwksClient: jwksClient,
		logger:     logger,
	}
}

// ValidateRequest extracts and validates a JWT from the request.
func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	var tokenString string
	var tokenSource string

	// Try cookie first (browser clients)
	if cookie, err := r.Cookie("ekaya_jwt"); err == nil {
		tokenString = cookie.Value
		tokenSource = "cookie"
	} else {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.logger.Debug("No JWT found in request",
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method))
			return nil, "", ErrMissingAuthorization
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			s.logger.Debug("Invalid Authorization header format",
				zap.String("path", r.URL.Path))
			return nil, "", ErrInvalidAuthFormat
		}
		tokenString = token
		tokenSource = "header"
	}

	claims, err := s.jwksClient.ValidateToken(tokenString)
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("token_source", tokenSource))
		return nil, "", err
	}

	return claims, tokenString, nil
}

// AuthorizeConnection ensures the claims grant access to connectionID.
func (s *authService) AuthorizeConnection(claims *Claims, connectionID string) error {
	if connectionID == "" || claims.AllowsConnection(connectionID) {
		return nil
	}
	s.logger.Warn("Connection not in token scope",
		zap.String("subject", claims.Subject),
		zap.String("connection_id", connectionID))
	return ErrConnectionForbidden
}

// Ensure authService implements AuthService at compile time.
var _ AuthService = (*authService)(nil)
