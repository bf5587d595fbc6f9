package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/blob"
)

// DefaultMaxUploadBytes is the largest file POST /api/upload accepts.
const DefaultMaxUploadBytes = 10 << 20

// UploadHandler stores one multipart file per request and returns its URL,
// which the client then puts in a post's image or file field.
type UploadHandler struct {
	store    blob.Store
	maxBytes int64
	logger   *slog.Logger
}

// NewUploadHandler creates an UploadHandler. A non-positive maxBytes falls
// back to DefaultMaxUploadBytes.
func NewUploadHandler(store blob.Store, maxBytes int64, logger *slog.Logger) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &UploadHandler{store: store, maxBytes: maxBytes, logger: logger}
}

type UploadResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Name    string `json:"name"`
}

// HandleUpload stores the multipart field "file".
//
// HTTP: POST /api/upload (multipart/form-data)
//
// The body is capped at maxBytes plus a little room for the multipart
// framing; anything larger fails while parsing and is reported as a 400.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+64<<10)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			WriteError(w, apperror.ValidationFailed("file", "File is too large"))
		case errors.Is(err, http.ErrMissingFile):
			WriteError(w, apperror.ValidationFailed("file", "No file uploaded"))
		default:
			WriteError(w, apperror.ValidationFailed("file", "Invalid multipart upload"))
		}
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		WriteError(w, apperror.ValidationFailed("file", "File is too large"))
		return
	}

	url, err := h.store.Put(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, blob.ErrEmptyName) {
			WriteError(w, apperror.ValidationFailed("file", "File name is required"))
			return
		}
		h.logger.Error("failed to store upload",
			slog.String("name", header.Filename),
			slog.String("error", err.Error()),
		)
		WriteError(w, err)
		return
	}

	h.logger.Info("file uploaded", slog.String("url", url), slog.Int64("bytes", header.Size))
	writeJSON(w, http.StatusOK, UploadResponse{Success: true, URL: url, Name: header.Filename})
}
