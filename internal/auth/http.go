// ABOUTME: HTTP middleware for JWT authentication on the JSON API
// ABOUTME: Extracts the bearer token, verifies it, and checks the relay key is live

package auth

import (
	"net/http"
	"strings"

	"github.com/hookline/console/internal/store"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// HTTPAuthMiddleware creates an HTTP middleware that extracts and validates
// JWT tokens. The token's subject must name a relay key that still exists
// and has not been revoked; the key's last-used timestamp is refreshed on
// every authenticated request.
func HTTPAuthMiddleware(keys store.KeyStore, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			keyID, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			key, err := keys.GetRelayKey(r.Context(), keyID)
			if err != nil {
				http.Error(w, `{"error":"unknown relay key"}`, http.StatusUnauthorized)
				return
			}
			if key.Revoked() {
				http.Error(w, `{"error":"relay key revoked"}`, http.StatusForbidden)
				return
			}

			// Best effort; a failed touch must not fail the request.
			_ = keys.TouchRelayKey(r.Context(), key.ID)

			authCtx := &AuthContext{KeyID: key.ID, KeyName: key.Name}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}
