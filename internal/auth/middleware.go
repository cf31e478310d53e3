package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"vodflow/internal/response"
)

const unauthorizedCode = "unauthorized"

// RequireAPIKey rejects ingest calls that do not carry key, either as a
// bearer token or in X-API-Key. An empty key leaves the routes open.
func RequireAPIKey(key string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := presentedKey(r); ok && matches(token, key) {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("rejected unauthenticated request", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="vodflow"`)
			response.JSON(w, http.StatusUnauthorized, response.ErrorResponse{
				Status:  "error",
				Code:    unauthorizedCode,
				Message: "Invalid or missing API key",
			})
		})
	}
}

// presentedKey prefers the Authorization header over X-API-Key.
func presentedKey(r *http.Request) (string, bool) {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token, token != ""
	}
	if token := r.Header.Get("X-API-Key"); token != "" {
		return token, true
	}
	return "", false
}

func matches(token, key string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1
}
