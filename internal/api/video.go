package api

import (
	"net/http"
	"strings"

	apperrors "github.com/tubelens/backend/internal/errors"
)

type VideoHandlers struct {
	videos VideoService
}

func NewVideoHandlers(videos VideoService) *VideoHandlers {
	return &VideoHandlers{videos: videos}
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	URL string `json:"url"`
}

// Info handles GET /api/video/info?url=
func (h *VideoHandlers) Info(w http.ResponseWriter, r *http.Request) error {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		return apperrors.BadRequest("No URL provided")
	}
	return writeJSON(w, r, http.StatusOK, h.videos.Info(r.Context(), url))
}

// Formats handles GET /api/video/formats?url=
func (h *VideoHandlers) Formats(w http.ResponseWriter, r *http.Request) error {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		return apperrors.BadRequest("No URL provided")
	}

	list, err := h.videos.Formats(r.Context(), url)
	if err != nil {
		return mapError(err)
	}
	return writeJSON(w, r, http.StatusOK, list)
}

// Analyze handles POST /analyze
func (h *VideoHandlers) Analyze(w http.ResponseWriter, r *http.Request) error {
	var req AnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return apperrors.BadRequest("No URL provided")
	}
	return writeJSON(w, r, http.StatusOK, h.videos.Analyze(r.Context(), url))
}
