package ingest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"vodflow/internal/response"
)

// formMemory is how much of a multipart body is held in memory before the
// rest spills to disk.
const formMemory = 32 << 20

type Handler struct {
	service  *Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "ingest-api"),
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/upload", h.HandleUpload)
	r.Post("/save-video", h.HandleSaveVideo)
}

type uploadForm struct {
	Title       string `validate:"required"`
	Description string
	Genre       string
}

type UploadResponse struct {
	Status       string   `json:"status"`
	ID           string   `json:"id,omitempty"`
	VideoURL     string   `json:"videoUrl"`
	ThumbnailURL string   `json:"thumbnailUrl"`
	Duration     string   `json:"duration"`
	SourceURL    string   `json:"sourceUrl,omitempty"`
	Degraded     []string `json:"degraded,omitempty"`
}

type SaveVideoRequest struct {
	VideoURL     string `json:"videoUrl" validate:"required,url"`
	Title        string `json:"title" validate:"required"`
	Genre        string `json:"genre"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailUrl" validate:"omitempty,url"`
}

type SaveVideoResponse struct {
	Status       string   `json:"status"`
	ID           string   `json:"id,omitempty"`
	Duration     string   `json:"duration"`
	ThumbnailURL string   `json:"thumbnailUrl"`
	VideoURL     string   `json:"videoUrl"`
	Degraded     []string `json:"degraded,omitempty"`
}

// HandleUpload handles POST /upload
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if limit := h.service.opts.MaxUploadBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+formMemory)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(w, "File too large")
			return
		}
		response.BadRequest(w, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := uploadForm{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Genre:       r.FormValue("genre"),
	}
	if err := h.validate.Struct(&form); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "No file uploaded")
		return
	}
	defer file.Close()

	result, err := h.service.DirectUpload(r.Context(), DirectUploadInput{
		File:        file,
		Filename:    header.Filename,
		Title:       form.Title,
		Description: form.Description,
		Genre:       form.Genre,
	})
	if err != nil {
		h.logger.Error("upload failed", "filename", header.Filename, "error", err)
		response.Error(w, err)
		return
	}

	response.JSON(w, http.StatusOK, UploadResponse{
		Status:       "ok",
		ID:           result.ID,
		VideoURL:     result.VideoURL,
		ThumbnailURL: result.ThumbnailURL,
		Duration:     result.Duration,
		SourceURL:    result.SourceURL,
		Degraded:     result.Degraded,
	})
}

// HandleSaveVideo handles POST /save-video
func (h *Handler) HandleSaveVideo(w http.ResponseWriter, r *http.Request) {
	var req SaveVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	result, err := h.service.PublishMetadata(r.Context(), PublishMetadataInput{
		VideoURL:     req.VideoURL,
		Title:        req.Title,
		Genre:        req.Genre,
		Description:  req.Description,
		ThumbnailURL: req.ThumbnailURL,
	})
	if err != nil {
		h.logger.Error("save video failed", "video_url", req.VideoURL, "error", err)
		response.Error(w, err)
		return
	}

	response.JSON(w, http.StatusOK, SaveVideoResponse{
		Status:       "ok",
		ID:           result.ID,
		Duration:     result.Duration,
		ThumbnailURL: result.ThumbnailURL,
		VideoURL:     result.VideoURL,
		Degraded:     result.Degraded,
	})
}
