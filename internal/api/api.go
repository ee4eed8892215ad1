// Package api wires the HTTP surface: video lookups, download jobs, file
// serving and the gallery.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tubelens/backend/internal/download"
	apperrors "github.com/tubelens/backend/internal/errors"
	"github.com/tubelens/backend/internal/gallery"
	"github.com/tubelens/backend/internal/processor"
	"github.com/tubelens/backend/internal/ytdlp"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

// JobService runs and tracks download jobs.
type JobService interface {
	Start(ctx context.Context, req download.Request) (download.Job, error)
	Get(id string) (download.Job, error)
	Finalize(ctx context.Context, id string) (string, error)
	Discard(ctx context.Context, id string) error
}

// VideoService answers video lookups.
type VideoService interface {
	Info(ctx context.Context, url string) *processor.VideoInfo
	Analyze(ctx context.Context, url string) *processor.Analysis
	Formats(ctx context.Context, url string) (*ytdlp.FormatList, error)
}

// GalleryStore is the durable downloads directory.
type GalleryStore interface {
	List() ([]gallery.File, error)
	Path(name string) (string, error)
	Delete(ctx context.Context, name string) error
}

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) error {
	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), status, data)
	return nil
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst zero.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return apperrors.BadRequest("invalid request body").WithCause(err)
	}
	return nil
}

// mapError translates package sentinels into API errors.
func mapError(err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, download.ErrJobNotFound):
		return apperrors.JobNotFound()
	case errors.Is(err, download.ErrFileNotFound), errors.Is(err, gallery.ErrNotFound):
		return apperrors.FileNotFound()
	case errors.Is(err, download.ErrJobRunning):
		return apperrors.Conflict("download is still running").WithCause(err)
	case errors.Is(err, download.ErrShuttingDown):
		return apperrors.Unavailable("server is shutting down")
	}
	return apperrors.FilesystemError(err.Error()).WithCause(err)
}
