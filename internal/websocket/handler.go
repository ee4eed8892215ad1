package websocket

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tubelens/backend/internal/download"
	apperrors "github.com/tubelens/backend/internal/errors"
	"github.com/tubelens/backend/internal/logger"
	"github.com/tubelens/backend/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// the API is served with permissive CORS
		return true
	},
}

// JobSource returns job snapshots.
type JobSource interface {
	Get(id string) (download.Job, error)
}

// Handler handles WebSocket connections.
type Handler struct {
	hub     *Hub
	jobs    JobSource
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, jobs JobSource, m *metrics.Metrics, log *logger.Logger) *Handler {
	if m == nil {
		m = metrics.Default()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		hub:     hub,
		jobs:    jobs,
		metrics: m,
		log:     log.WithComponent("websocket"),
	}
}

// ServeWS streams the job named by ?id= to the client: the current snapshot
// first, then every change until the job finishes or is removed.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) error {
	id := r.URL.Query().Get("id")
	if id == "" {
		return apperrors.BadRequest("id is required")
	}
	if _, err := h.jobs.Get(id); err != nil {
		if errors.Is(err, download.ErrJobNotFound) {
			return apperrors.JobNotFound()
		}
		return err
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request
		h.log.Warn(r.Context(), "websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return nil
	}

	client := NewClient(h.hub, conn, id)
	h.hub.Register(client)

	// Anything delivered since registering is at least as new as this.
	job, err := h.jobs.Get(id)
	if err != nil {
		client.markRemoved()
	} else {
		client.offer(job, true)
	}

	h.metrics.IncWSConnections()
	h.log.Debug(r.Context(), "websocket client connected", map[string]interface{}{"job_id": id})

	go func() {
		defer h.metrics.DecWSConnections()
		client.WritePump()
	}()
	go client.ReadPump()
	return nil
}

// GetHub returns the hub instance for external access.
func (h *Handler) GetHub() *Hub {
	return h.hub
}
