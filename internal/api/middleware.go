/**
 * @description
 * This file contains custom middleware for the HTTP router. The service sits
 * behind the platform gateway, which terminates end-user authentication and
 * forwards the resolved user id in a trusted header. Internal endpoints
 * (provider callbacks, ops actions) are protected by a shared API key instead.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/google/uuid: User id parsing.
 */

package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// UserIDContextKey is a custom type for the context key to avoid collisions.
type UserIDContextKey string

const userIDKey UserIDContextKey = "settlementUserID"

const userIDHeader = "X-User-ID"

// UserContextMiddleware requires the gateway-forwarded user id header and
// stores the parsed UUID on the request context.
func UserContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(userIDHeader))
		if raw == "" {
			http.Error(w, "Missing user identity header", http.StatusUnauthorized)
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "Invalid user identity header", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID retrieves the authenticated user's id from the request context.
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}

// InternalAuthMiddleware guards internal endpoints with a shared API key.
func InternalAuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				http.Error(w, "Internal endpoints are not configured", http.StatusServiceUnavailable)
				return
			}
			provided := strings.TrimSpace(r.Header.Get("X-Internal-API-Key"))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
