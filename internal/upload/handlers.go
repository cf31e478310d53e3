package upload

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"vodflow/internal/response"
)

type Handler struct {
	coordinator *Coordinator
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewHandler(coordinator *Coordinator, logger *slog.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("component", "upload-api"),
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/create-upload", h.HandleCreateUpload)
	r.Post("/complete-upload", h.HandleCompleteUpload)
}

// HandleCreateUpload handles POST /create-upload
func (h *Handler) HandleCreateUpload(w http.ResponseWriter, r *http.Request) {
	var req CreateUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	plan, err := h.coordinator.Plan(r.Context(), req.Filename, req.Parts)
	if err != nil {
		h.logger.Error("create upload failed", "filename", req.Filename, "error", err)
		response.Error(w, err)
		return
	}

	response.JSON(w, http.StatusOK, CreateUploadResponse{
		UploadID:  plan.UploadID,
		Key:       plan.Key,
		URLs:      plan.URLs,
		ExpiresAt: plan.ExpiresAt,
	})
}

// HandleCompleteUpload handles POST /complete-upload
func (h *Handler) HandleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	var req CompleteUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	key := req.Key
	if key == "" {
		key = req.Filename
	}

	location, err := h.coordinator.CompleteFromClientReport(r.Context(), key, req.UploadID, req.Parts)
	if err != nil {
		h.logger.Error("complete upload failed", "key", key, "upload_id", req.UploadID, "error", err)
		response.Error(w, err)
		return
	}

	response.JSON(w, http.StatusOK, CompleteUploadResponse{
		Message:  "Upload completed",
		Key:      key,
		Location: location,
	})
}
