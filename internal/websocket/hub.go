// Package websocket pushes download job snapshots to browsers as they
// change.
package websocket

import (
	"sync"

	"github.com/tubelens/backend/internal/download"
)

// Hub maintains the set of active clients, keyed by the job they watch.
// It is a download.Observer: the registry calls it while holding its lock,
// so delivery never blocks.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[*Client]struct{}
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

// Register adds c to the watchers of its job.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.jobID] == nil {
		h.clients[c.jobID] = make(map[*Client]struct{})
	}
	h.clients[c.jobID][c] = struct{}{}
}

// Unregister removes c. It is safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[c.jobID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.clients, c.jobID)
		}
	}
}

// JobUpdated hands the new snapshot to every watcher of the job.
func (h *Hub) JobUpdated(job download.Job) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients[job.ID] {
		c.offer(job, false)
	}
}

// JobRemoved tells watchers the job is gone.
func (h *Hub) JobRemoved(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients[id] {
		c.markRemoved()
	}
}

// ClientCount returns the number of connected clients for a job.
func (h *Hub) ClientCount(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[jobID])
}

// TotalClients returns the total number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, clients := range h.clients {
		count += len(clients)
	}
	return count
}
