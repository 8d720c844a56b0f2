package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "user_id"

// TokenValidator resolves a bearer token to a user ID.
// *services.UserService satisfies it.
type TokenValidator interface {
	ValidateJWT(token string) (string, error)
}

// AuthMiddleware rejects requests without a valid bearer token and puts
// the authenticated user ID on the request context for GetUserID.
func AuthMiddleware(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "Bearer token required")
				return
			}

			userID, err := tokens.ValidateJWT(token)
			if err != nil {
				unauthorized(w, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// GetUserID extracts the authenticated user ID from context. Empty for
// requests that did not pass AuthMiddleware.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ValidateWebSocketToken validates the JWT passed as a query parameter
// on WebSocket upgrade requests, which cannot carry an Authorization
// header from browsers.
func ValidateWebSocketToken(token string, tokens TokenValidator) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token required")
	}
	return tokens.ValidateJWT(token)
}
