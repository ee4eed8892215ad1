package api

import (
	"net/http"
	"strings"

	apperrors "github.com/tubelens/backend/internal/errors"
	"github.com/tubelens/backend/internal/health"
	"github.com/tubelens/backend/internal/logger"
	"github.com/tubelens/backend/internal/metrics"
	"github.com/tubelens/backend/internal/validators"
	"github.com/tubelens/backend/internal/websocket"
)

// Config carries the services the router exposes. Health, WebSocket and
// Metrics are optional.
type Config struct {
	Jobs       JobService
	Videos     VideoService
	Gallery    GalleryStore
	Validators *validators.Registry
	WebSocket  *websocket.Handler
	Health     *health.Handler
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

type Router struct {
	mux        *http.ServeMux
	cfg        Config
	video      *VideoHandlers
	downloads  *DownloadHandlers
	gallery    *GalleryHandlers
	validation *validators.Handlers
}

func NewRouter(cfg Config) *Router {
	if cfg.Validators == nil {
		cfg.Validators = validators.DefaultRegistry()
	}
	r := &Router{
		mux:        http.NewServeMux(),
		cfg:        cfg,
		video:      NewVideoHandlers(cfg.Videos),
		downloads:  NewDownloadHandlers(cfg.Jobs, cfg.Gallery, cfg.Validators, cfg.Logger),
		gallery:    NewGalleryHandlers(cfg.Gallery),
		validation: validators.NewHandlers(cfg.Validators),
	}
	r.setupRoutes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	// Operational
	if r.cfg.Health != nil {
		r.handle("GET /health", r.cfg.Health.HealthHandler)
		r.handle("GET /health/ready", r.cfg.Health.ReadinessHandler)
	}
	if r.cfg.Metrics != nil {
		r.handle("GET /metrics", r.cfg.Metrics.Handler())
	}

	// Video lookups
	r.handle("GET /api/video/info", apperrors.HandleFunc(r.video.Info))
	r.handle("GET /api/video/formats", apperrors.HandleFunc(r.video.Formats))
	r.handle("POST /analyze", apperrors.HandleFunc(r.video.Analyze))

	// Download jobs
	r.handle("POST /api/download", apperrors.HandleFunc(r.downloads.CreateDownload))
	r.handle("GET /api/download", apperrors.HandleFunc(r.downloads.ServeFile))
	r.handle("DELETE /api/download", apperrors.HandleFunc(r.downloads.Discard))
	r.handle("GET /api/download/status", apperrors.HandleFunc(r.downloads.GetStatus))
	r.handle("POST /api/download/cleanup", apperrors.HandleFunc(r.downloads.Cleanup))
	if r.cfg.WebSocket != nil {
		r.handle("GET /api/download/ws", apperrors.HandleFunc(r.cfg.WebSocket.ServeWS))
	}

	// Gallery
	r.handle("GET /api/gallery", apperrors.HandleFunc(r.gallery.List))
	r.handle("DELETE /api/gallery/delete", apperrors.HandleFunc(r.gallery.Delete))

	// URL validation
	r.handle("GET /api/validate", apperrors.HandleFunc(r.validation.ValidateURLQuery))
	r.handle("GET /api/validate/sources", apperrors.HandleFunc(r.validation.GetSupportedSources))
}

// handle registers h and labels its requests in metrics with the pattern's
// path.
func (r *Router) handle(pattern string, h http.HandlerFunc) {
	route := pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		route = pattern[i+1:]
	}
	r.mux.HandleFunc(pattern, func(w http.ResponseWriter, req *http.Request) {
		metrics.SetRoute(req.Context(), route)
		h(w, req)
	})
}
