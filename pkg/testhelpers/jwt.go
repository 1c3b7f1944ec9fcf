// Package testhelpers provides utilities for testing ekaya-dq components.
package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// GenerateTestJWT creates a test JWT token for use when verification is disabled.
// The token has a valid structure but no signature (alg: none) and carries
// aud: "dq". conns scopes the token to connection IDs; none means unscoped.
func GenerateTestJWT(sub string, conns ...string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	claims := map[string]any{"sub": sub, "aud": "dq"}
	if len(conns) > 0 {
		claims["conns"] = conns
	}
	payload, _ := json.Marshal(claims)

	encodedPayload := base64.RawURLEncoding.EncodeToString(payload)
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub string, conns ...string) string {
	return "Bearer " + GenerateTestJWT(sub, conns...)
}
