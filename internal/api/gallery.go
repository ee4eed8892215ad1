package api

import (
	"net/http"

	"github.com/tubelens/backend/internal/gallery"
)

type GalleryHandlers struct {
	store GalleryStore
}

func NewGalleryHandlers(store GalleryStore) *GalleryHandlers {
	return &GalleryHandlers{store: store}
}

// GalleryResponse lists stored files, newest first.
type GalleryResponse struct {
	Files []gallery.File `json:"files"`
}

// List handles GET /api/gallery
func (h *GalleryHandlers) List(w http.ResponseWriter, r *http.Request) error {
	files, err := h.store.List()
	if err != nil {
		return mapError(err)
	}
	return writeJSON(w, r, http.StatusOK, GalleryResponse{Files: files})
}

// Delete handles DELETE /api/gallery/delete?filename=
func (h *GalleryHandlers) Delete(w http.ResponseWriter, r *http.Request) error {
	if err := h.store.Delete(r.Context(), r.URL.Query().Get("filename")); err != nil {
		return mapError(err)
	}
	return writeJSON(w, r, http.StatusOK, MessageResponse{Message: "File deleted successfully"})
}
