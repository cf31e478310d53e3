package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodflow/internal/apperr"
)

func TestError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid", apperr.Invalid("create upload", "parts must be positive"), http.StatusBadRequest, "invalid_request"},
		{"wrapped invalid", fmt.Errorf("handler: %w", apperr.Invalid("x", "bad")), http.StatusBadRequest, "invalid_request"},
		{"encode", apperr.New(apperr.KindFatalEncode, "encode renditions", errors.New("exit status 1")), http.StatusInternalServerError, "encode_failed"},
		{"persistence", apperr.New(apperr.KindPersistence, "catalog insert", errors.New("timeout")), http.StatusInternalServerError, "persistence_failed"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.err.Error(), body.Message)
		})
	}
}

func TestBadRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	BadRequest(rec, "Invalid request body")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status":"error","code":"invalid_request","message":"Invalid request body"}`, rec.Body.String())
}

func TestPlain(t *testing.T) {
	rec := httptest.NewRecorder()
	Plain(rec, http.StatusOK, "OK")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "OK", rec.Body.String())
}
