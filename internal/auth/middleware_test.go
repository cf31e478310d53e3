package auth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodflow/internal/response"
)

func protected(key string) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return RequireAPIKey(key, slog.New(slog.NewTextHandler(io.Discard, nil)))(ok)
}

func TestRequireAPIKey(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		authHeader   string
		apiKeyHeader string
		wantStatus   int
	}{
		{"no key configured", "", "", "", http.StatusOK},
		{"valid bearer token", "secret", "Bearer secret", "", http.StatusOK},
		{"valid X-API-Key", "secret", "", "secret", http.StatusOK},
		{"wrong bearer token", "secret", "Bearer nope", "", http.StatusUnauthorized},
		{"wrong X-API-Key", "secret", "", "nope", http.StatusUnauthorized},
		{"no headers", "secret", "", "", http.StatusUnauthorized},
		{"not a bearer scheme", "secret", "Basic secret", "", http.StatusUnauthorized},
		{"empty bearer token", "secret", "Bearer ", "", http.StatusUnauthorized},
		{"bearer checked before X-API-Key", "secret", "Bearer secret", "nope", http.StatusOK},
		{"wrong bearer is not rescued by X-API-Key", "secret", "Bearer nope", "secret", http.StatusUnauthorized},
		{"key prefix only", "secret", "Bearer sec", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/upload", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.apiKeyHeader != "" {
				req.Header.Set("X-API-Key", tt.apiKeyHeader)
			}

			rec := httptest.NewRecorder()
			protected(tt.key).ServeHTTP(rec, req)
			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "OK", rec.Body.String())
				return
			}

			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

			var resp response.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, "unauthorized", resp.Code)
			assert.Equal(t, "Invalid or missing API key", resp.Message)
		})
	}
}
