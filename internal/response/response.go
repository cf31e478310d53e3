package response

import (
	"encoding/json"
	"net/http"

	"vodflow/internal/apperr"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Plain writes a text/plain body.
func Plain(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}

// Error maps err onto a status code by its apperr kind and writes the error body.
func Error(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	JSON(w, StatusFor(kind), ErrorResponse{
		Status:  "error",
		Code:    kind.String(),
		Message: err.Error(),
	})
}

// BadRequest writes an invalid_request error without an underlying error value.
func BadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, ErrorResponse{
		Status:  "error",
		Code:    apperr.KindInvalid.String(),
		Message: message,
	})
}

func StatusFor(kind apperr.Kind) int {
	if kind == apperr.KindInvalid {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
