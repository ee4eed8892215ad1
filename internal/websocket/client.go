package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tubelens/backend/internal/download"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client is one websocket connection watching a single job.
//
// Only the newest snapshot is kept: updates coalesce into one pending slot
// and notify is a one-element signal, so a slow reader skips intermediate
// states but never sees them out of order.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	jobID string

	mu      sync.Mutex
	latest  download.Job
	pending bool
	seen    bool
	removed bool

	notify chan struct{}
}

// NewClient creates a client for jobID. It is not registered yet.
func NewClient(hub *Hub, conn *websocket.Conn, jobID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		jobID:  jobID,
		notify: make(chan struct{}, 1),
	}
}

// offer stores job as the next snapshot to send. With ifEmpty set it only
// fills a slot that has never held a snapshot.
func (c *Client) offer(job download.Job, ifEmpty bool) {
	c.mu.Lock()
	if c.removed || (ifEmpty && c.seen) {
		c.mu.Unlock()
		return
	}
	c.latest = job
	c.pending = true
	c.seen = true
	c.mu.Unlock()
	c.signal()
}

func (c *Client) markRemoved() {
	c.mu.Lock()
	c.removed = true
	c.mu.Unlock()
	c.signal()
}

func (c *Client) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// next takes the pending snapshot, if any, and whether the job is gone.
func (c *Client) next() (job download.Job, ok bool, removed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok = c.latest, c.pending
	c.pending = false
	return job, ok, c.removed
}

// ReadPump drains the connection so control frames are processed, and
// unregisters the client when the peer goes away.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WritePump sends snapshots until the job finishes or is removed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		select {
		case <-c.notify:
			job, ok, removed := c.next()
			if ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteJSON(job); err != nil {
					return
				}
				if job.IsTerminal() {
					c.close("download finished")
					return
				}
			}
			if removed {
				c.close("download removed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) close(reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
