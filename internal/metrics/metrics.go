// Package metrics exposes request and download job metrics in the
// Prometheus text format.
//
// Request series are labelled by the route pattern the router matched, not
// the raw path, so query strings and unknown paths cannot grow the label set.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const namespace = "tubelens_"

// UnmatchedRoute labels requests no route accepted.
const UnmatchedRoute = "unmatched"

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// Metrics holds all application metrics
type Metrics struct {
	requests     *counterVec   // route, method, status
	latency      *histogramVec // route, method
	jobEvents    *counterVec   // event
	cacheLookups *counterVec   // result

	wsConnections int64
	activeJobs    int64
	galleryFiles  int64

	startTime time.Time
}

// New creates a new Metrics instance
func New() *Metrics {
	return &Metrics{
		requests:     newCounterVec("http_requests_total", "HTTP requests by route and status class", "route", "method", "status"),
		latency:      newHistogramVec("http_request_duration_seconds", "HTTP request latency", "route", "method"),
		jobEvents:    newCounterVec("download_jobs_total", "Download job lifecycle events", "event"),
		cacheLookups: newCounterVec("cache_lookups_total", "Metadata cache lookups", "result"),
		startTime:    time.Now(),
	}
}

var defaultMetrics = New()

// Default returns the process-wide instance.
func Default() *Metrics {
	return defaultMetrics
}

// RecordRequest records one served request against its route.
func (m *Metrics) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	if route == "" {
		route = UnmatchedRoute
	}
	m.requests.inc(route, method, fmt.Sprintf("%dxx", statusCode/100))
	m.latency.observe(duration.Seconds(), route, method)
}

func (m *Metrics) IncWSConnections() {
	atomic.AddInt64(&m.wsConnections, 1)
}

func (m *Metrics) DecWSConnections() {
	atomic.AddInt64(&m.wsConnections, -1)
}

// SetActiveJobs records the number of download jobs not yet terminal.
func (m *Metrics) SetActiveJobs(n int) {
	atomic.StoreInt64(&m.activeJobs, int64(n))
}

// JobEvent counts a download job lifecycle event.
func (m *Metrics) JobEvent(event string) {
	m.jobEvents.inc(event)
}

// CacheLookup counts a metadata cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if hit {
		m.cacheLookups.inc("hit")
		return
	}
	m.cacheLookups.inc("miss")
}

// SetGalleryFiles records how many files the last gallery listing found.
func (m *Metrics) SetGalleryFiles(n int) {
	atomic.StoreInt64(&m.galleryFiles, int64(n))
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder
		writeGauge(&sb, "uptime_seconds", "Time since the server started", time.Since(m.startTime).Seconds())
		writeGauge(&sb, "websocket_connections_active", "Active WebSocket connections", float64(atomic.LoadInt64(&m.wsConnections)))
		writeGauge(&sb, "download_jobs_active", "Download jobs not yet finished", float64(atomic.LoadInt64(&m.activeJobs)))
		writeGauge(&sb, "gallery_files", "Files in the gallery at the last listing", float64(atomic.LoadInt64(&m.galleryFiles)))

		m.jobEvents.write(&sb)
		m.requests.write(&sb)
		m.latency.write(&sb)
		m.cacheLookups.write(&sb)

		w.Write([]byte(sb.String()))
	}
}

func writeGauge(sb *strings.Builder, name, help string, v float64) {
	writeHeader(sb, name, help, "gauge")
	fmt.Fprintf(sb, "%s%s %g\n\n", namespace, name, v)
}

func writeHeader(sb *strings.Builder, name, help, kind string) {
	fmt.Fprintf(sb, "# HELP %s%s %s\n", namespace, name, help)
	fmt.Fprintf(sb, "# TYPE %s%s %s\n", namespace, name, kind)
}

// labelSet renders {a="x",b="y"}; extra holds additional name/value pairs.
func labelSet(names, values []string, extra ...string) string {
	pairs := make([]string, 0, len(names)+len(extra)/2)
	for i, n := range names {
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, n, labelEscaper.Replace(values[i])))
	}
	for i := 0; i+1 < len(extra); i += 2 {
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, extra[i], labelEscaper.Replace(extra[i+1])))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

// label values are joined with a byte that cannot appear in routes or methods
const keySep = "\x00"

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type counterVec struct {
	name   string
	help   string
	labels []string

	mu     sync.Mutex
	values map[string]uint64
}

func newCounterVec(name, help string, labels ...string) *counterVec {
	return &counterVec{name: name, help: help, labels: labels, values: make(map[string]uint64)}
}

func (c *counterVec) inc(values ...string) {
	key := strings.Join(values, keySep)
	c.mu.Lock()
	c.values[key]++
	c.mu.Unlock()
}

func (c *counterVec) write(sb *strings.Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.values) == 0 {
		return
	}

	writeHeader(sb, c.name, c.help, "counter")
	for _, key := range sortedKeys(c.values) {
		fmt.Fprintf(sb, "%s%s%s %d\n", namespace, c.name, labelSet(c.labels, strings.Split(key, keySep)), c.values[key])
	}
	sb.WriteString("\n")
}

// histogram buckets are cumulative: an observation lands in every bucket
// whose bound it does not exceed.
type histogram struct {
	count   uint64
	sum     float64
	buckets []uint64
}

type histogramVec struct {
	name   string
	help   string
	labels []string

	mu     sync.Mutex
	values map[string]*histogram
}

func newHistogramVec(name, help string, labels ...string) *histogramVec {
	return &histogramVec{name: name, help: help, labels: labels, values: make(map[string]*histogram)}
}

func (h *histogramVec) observe(v float64, values ...string) {
	key := strings.Join(values, keySep)

	h.mu.Lock()
	defer h.mu.Unlock()

	hist, ok := h.values[key]
	if !ok {
		hist = &histogram{buckets: make([]uint64, len(durationBuckets))}
		h.values[key] = hist
	}
	hist.count++
	hist.sum += v
	for i, b := range durationBuckets {
		if v <= b {
			hist.buckets[i]++
		}
	}
}

func (h *histogramVec) write(sb *strings.Builder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.values) == 0 {
		return
	}

	writeHeader(sb, h.name, h.help, "histogram")
	for _, key := range sortedKeys(h.values) {
		values := strings.Split(key, keySep)
		hist := h.values[key]
		for i, b := range durationBuckets {
			fmt.Fprintf(sb, "%s%s_bucket%s %d\n", namespace, h.name, labelSet(h.labels, values, "le", fmt.Sprintf("%g", b)), hist.buckets[i])
		}
		fmt.Fprintf(sb, "%s%s_bucket%s %d\n", namespace, h.name, labelSet(h.labels, values, "le", "+Inf"), hist.count)
		fmt.Fprintf(sb, "%s%s_sum%s %f\n", namespace, h.name, labelSet(h.labels, values), hist.sum)
		fmt.Fprintf(sb, "%s%s_count%s %d\n", namespace, h.name, labelSet(h.labels, values), hist.count)
	}
	sb.WriteString("\n")
}

type routeKey struct{}

// SetRoute tags the request being measured with the route pattern that
// served it. Outside MetricsMiddleware it does nothing.
func SetRoute(ctx context.Context, route string) {
	if p, ok := ctx.Value(routeKey{}).(*string); ok {
		*p = route
	}
}

// MetricsMiddleware creates middleware that records request metrics
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			route := UnmatchedRoute
			wrapped := &statusResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), routeKey{}, &route)))

			m.RecordRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// websocket upgrades need for hijacking.
func (w *statusResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
