package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/tubelens/backend/internal/download"
	apperrors "github.com/tubelens/backend/internal/errors"
	"github.com/tubelens/backend/internal/filename"
	"github.com/tubelens/backend/internal/logger"
	"github.com/tubelens/backend/internal/validators"
)

type DownloadHandlers struct {
	jobs       JobService
	gallery    GalleryStore
	validators *validators.Registry
	log        *logger.Logger
}

func NewDownloadHandlers(jobs JobService, store GalleryStore, v *validators.Registry, log *logger.Logger) *DownloadHandlers {
	if log == nil {
		log = logger.Default()
	}
	return &DownloadHandlers{
		jobs:       jobs,
		gallery:    store,
		validators: v,
		log:        log.WithComponent("api"),
	}
}

// CreateDownloadResponse is returned as soon as the job is running.
type CreateDownloadResponse struct {
	Status     string `json:"status"`
	DownloadID string `json:"download_id"`
}

// CleanupRequest names either a job to finalize or a gallery file to drop.
type CleanupRequest struct {
	DownloadID string `json:"download_id"`
	Filename   string `json:"filename"`
}

// CreateDownload handles POST /api/download
func (h *DownloadHandlers) CreateDownload(w http.ResponseWriter, r *http.Request) error {
	var req download.Request
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return apperrors.BadRequest("URL is required")
	}

	if h.validators != nil {
		if result := h.validators.Validate(req.URL); !result.Valid {
			msg := result.Error
			if msg == "" {
				msg = "unsupported URL"
			}
			return apperrors.ValidationError(msg).WithDetails(map[string]any{"url": req.URL})
		}
	}

	job, err := h.jobs.Start(r.Context(), req)
	if err != nil {
		return mapError(err)
	}

	return writeJSON(w, r, http.StatusOK, CreateDownloadResponse{
		Status:     string(job.State),
		DownloadID: job.ID,
	})
}

// GetStatus handles GET /api/download/status?id=
func (h *DownloadHandlers) GetStatus(w http.ResponseWriter, r *http.Request) error {
	job, err := h.jobs.Get(r.URL.Query().Get("id"))
	if err != nil {
		return mapError(err)
	}
	return writeJSON(w, r, http.StatusOK, job)
}

// ServeFile handles GET /api/download?download_id= and ?filename=
func (h *DownloadHandlers) ServeFile(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	if id := q.Get("download_id"); id != "" {
		job, err := h.jobs.Get(id)
		if err != nil || job.State != download.StateDone || job.FinalFilePath == "" {
			return apperrors.FileNotFound()
		}
		return serveAttachment(w, r, job.FinalFilePath, job.SanitizedName)
	}

	if name := q.Get("filename"); name != "" {
		path, err := h.gallery.Path(name)
		if err != nil {
			return apperrors.FileNotFound()
		}
		return serveAttachment(w, r, path, filename.SanitizeBase(name))
	}

	return apperrors.FileNotFound()
}

// serveAttachment streams path with headers that make browsers save it
// rather than render it.
func serveAttachment(w http.ResponseWriter, r *http.Request, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.FileNotFound()
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return apperrors.FileNotFound()
	}

	header := w.Header()
	header.Set("Content-Disposition", `attachment; filename="`+name+`"`)
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	header.Set("Pragma", "no-cache")
	header.Set("Expires", "0")
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type")

	http.ServeContent(w, r, name, info.ModTime(), f)
	return nil
}

// Cleanup handles POST /api/download/cleanup
func (h *DownloadHandlers) Cleanup(w http.ResponseWriter, r *http.Request) error {
	var req CleanupRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}

	switch {
	case req.DownloadID != "":
		if _, err := h.jobs.Finalize(r.Context(), req.DownloadID); err != nil {
			return mapError(err)
		}
		return writeJSON(w, r, http.StatusOK, MessageResponse{Message: "File moved to downloads successfully"})

	case req.Filename != "":
		if err := h.gallery.Delete(r.Context(), req.Filename); err != nil {
			return mapError(err)
		}
		return writeJSON(w, r, http.StatusOK, MessageResponse{Message: "File cleaned up successfully"})
	}

	return apperrors.FileNotFound()
}

// Discard handles DELETE /api/download?download_id= for finished jobs
// whose file will not be kept.
func (h *DownloadHandlers) Discard(w http.ResponseWriter, r *http.Request) error {
	id := r.URL.Query().Get("download_id")
	if id == "" {
		return apperrors.BadRequest("download_id is required")
	}
	if err := h.jobs.Discard(r.Context(), id); err != nil {
		return mapError(err)
	}
	return writeJSON(w, r, http.StatusOK, MessageResponse{Message: "Download discarded"})
}
