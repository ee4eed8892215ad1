package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// HealthResponse represents the full health check response
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Timestamp  string                     `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// Checker performs health checks on various components
type Checker struct {
	downloader   CheckFunc
	redis        CheckFunc
	storage      CheckFunc
	version      string
	checkTimeout time.Duration
}

// CheckerConfig holds configuration for the health checker. Redis and
// Storage are optional and left nil when the feature is disabled.
type CheckerConfig struct {
	Downloader CheckFunc
	Redis      CheckFunc
	Storage    CheckFunc
	Version    string
	Timeout    time.Duration
}

// NewChecker creates a new health checker
func NewChecker(cfg *CheckerConfig) *Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		downloader:   cfg.Downloader,
		redis:        cfg.Redis,
		storage:      cfg.Storage,
		version:      cfg.Version,
		checkTimeout: timeout,
	}
}

func (c *Checker) run(ctx context.Context, check CheckFunc, failed Status, message string) ComponentHealth {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if err := check(ctx); err != nil {
		return ComponentHealth{
			Status:   failed,
			Message:  message + ": " + err.Error(),
			Duration: time.Since(start).String(),
		}
	}

	return ComponentHealth{
		Status:   StatusHealthy,
		Duration: time.Since(start).String(),
	}
}

// CheckDownloader verifies the yt-dlp binary runs. Nothing can be
// downloaded without it.
func (c *Checker) CheckDownloader(ctx context.Context) ComponentHealth {
	if c.downloader == nil {
		return ComponentHealth{
			Status:  StatusUnhealthy,
			Message: "downloader not configured",
		}
	}
	return c.run(ctx, c.downloader, StatusUnhealthy, "downloader check failed")
}

// CheckRedis checks Redis connectivity. The cache is optional so a failure
// only degrades the service.
func (c *Checker) CheckRedis(ctx context.Context) ComponentHealth {
	return c.run(ctx, c.redis, StatusDegraded, "redis ping failed")
}

// CheckStorage checks S3/MinIO connectivity
func (c *Checker) CheckStorage(ctx context.Context) ComponentHealth {
	return c.run(ctx, c.storage, StatusDegraded, "storage check failed")
}

// Check performs a basic health check (liveness)
func (c *Checker) Check(ctx context.Context) *HealthResponse {
	return &HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   c.version,
	}
}

// ReadyCheck checks only what a download needs.
func (c *Checker) ReadyCheck(ctx context.Context) *HealthResponse {
	return c.collect(ctx, map[string]func(context.Context) ComponentHealth{
		"downloader": c.CheckDownloader,
	})
}

// DeepCheck performs a comprehensive health check of every configured
// dependency.
func (c *Checker) DeepCheck(ctx context.Context) *HealthResponse {
	checks := map[string]func(context.Context) ComponentHealth{
		"downloader": c.CheckDownloader,
	}
	if c.redis != nil {
		checks["redis"] = c.CheckRedis
	}
	if c.storage != nil {
		checks["storage"] = c.CheckStorage
	}
	return c.collect(ctx, checks)
}

func (c *Checker) collect(ctx context.Context, checks map[string]func(context.Context) ComponentHealth) *HealthResponse {
	response := &HealthResponse{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    c.version,
		Components: make(map[string]ComponentHealth),
	}

	// Run checks in parallel
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, check := range checks {
		wg.Add(1)
		go func(n string, ch func(context.Context) ComponentHealth) {
			defer wg.Done()
			result := ch(ctx)
			mu.Lock()
			response.Components[n] = result
			mu.Unlock()
		}(name, check)
	}

	wg.Wait()

	// Determine overall status
	for _, comp := range response.Components {
		if comp.Status == StatusUnhealthy {
			response.Status = StatusUnhealthy
			break
		} else if comp.Status == StatusDegraded && response.Status == StatusHealthy {
			response.Status = StatusDegraded
		}
	}

	return response
}

// Handler provides HTTP handlers for health endpoints
type Handler struct {
	checker *Checker
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// LivenessHandler handles liveness probe requests
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, h.checker.Check(r.Context()))
}

// ReadinessHandler handles readiness probe requests. With ?deep=true every
// configured dependency is checked.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "true" {
		writeResponse(w, h.checker.DeepCheck(r.Context()))
		return
	}
	writeResponse(w, h.checker.ReadyCheck(r.Context()))
}

// HealthHandler handles basic health check requests
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	// Check if deep check is requested via query param
	if r.URL.Query().Get("deep") == "true" {
		h.ReadinessHandler(w, r)
		return
	}
	h.LivenessHandler(w, r)
}

func writeResponse(w http.ResponseWriter, response *HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	if response.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		// degraded still accepts traffic
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}
