package transport

import (
	"errors"
	"net/http"

	"serenity-catalog/internal/middleware"
	"serenity-catalog/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const errTooLarge = "image exceeds the upload size limit"

// isTooLarge reports whether a form read stopped at the body size limit
func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

// UploadResponse is returned after an image is stored
type UploadResponse struct {
	Message  string `json:"message"`
	ImageURL string `json:"imageUrl"`
}

// UploadHandler handles standalone image uploads
type UploadHandler struct {
	catalog  service.CatalogService
	maxBytes int64
	logger   *zap.Logger
}

// NewUploadHandler creates a new UploadHandler
func NewUploadHandler(catalog service.CatalogService, maxBytes int64, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		catalog:  catalog,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// RegisterRoutes registers POST /upload behind the given middleware
func (h *UploadHandler) RegisterRoutes(r chi.Router, middlewares ...func(http.Handler) http.Handler) {
	r.With(middlewares...).Post("/upload", h.Upload)
}

// Upload handles POST /upload with the multipart field "image"
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		if isTooLarge(err) {
			middleware.RespondWithError(w, http.StatusRequestEntityTooLarge, errTooLarge)
			return
		}
		h.logger.Debug("Failed to parse upload form", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "Failed to process form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "No image file uploaded")
		return
	}
	defer file.Close()

	ref, err := h.catalog.UploadImage(r.Context(), session, service.ImageUpload{
		Content:  file,
		Filename: header.Filename,
	})
	if err != nil {
		// storage failures keep the {message, error} shape
		if middleware.StatusForError(err) >= http.StatusInternalServerError {
			h.logger.Error("Failed to store uploaded image", zap.Error(err))
			middleware.RespondWithMessageError(w, http.StatusInternalServerError, "Failed to store image", err.Error())
			return
		}
		middleware.RespondWithDomainError(w, h.logger, err, "Failed to store image")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, UploadResponse{
		Message:  "Image uploaded successfully",
		ImageURL: ref.URL,
	})
}
