package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/milanh34/linkUp/internal/blob"
	"github.com/milanh34/linkUp/internal/logger"
	"github.com/milanh34/linkUp/internal/model"
)

type MediaHandler struct {
	blobs   *blob.DiskStore
	maxSize int64
}

func NewMediaHandler(blobs *blob.DiskStore, maxSize int64) *MediaHandler {
	return &MediaHandler{blobs: blobs, maxSize: maxSize}
}

type UploadResponse struct {
	URL  string          `json:"url"`
	Kind model.MediaKind `json:"kind"`
}

// Upload stores a multipart "file" and returns the asset reference clients
// attach to messages or group avatars.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	defer logger.DeferLogDuration("handler.Upload", time.Now())()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)

	if err := r.ParseMultipartForm(h.maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	asset, err := h.blobs.Upload(header.Filename, file)
	switch {
	case errors.Is(err, blob.ErrBlockedType):
		writeError(w, http.StatusBadRequest, "file type not allowed")
		return
	case errors.Is(err, blob.ErrTooLarge):
		writeError(w, http.StatusBadRequest, "file too large")
		return
	case err != nil:
		logger.Errorf("media upload: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{URL: asset.URL, Kind: asset.Kind})
}

// Serve streams a stored asset by filename.
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	f, contentType, err := h.blobs.Open(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		logger.Errorf("media serve %s: %v", name, err)
	}
}
