package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tubelens/backend/internal/download"
	apperrors "github.com/tubelens/backend/internal/errors"
	"github.com/tubelens/backend/internal/gallery"
	"github.com/tubelens/backend/internal/logger"
	"github.com/tubelens/backend/internal/metrics"
	"github.com/tubelens/backend/internal/processor"
	"github.com/tubelens/backend/internal/ytdlp"
)

type fakeJobs struct {
	jobs        map[string]download.Job
	started     []download.Request
	startErr    error
	finalizeErr error
	discardErr  error
	finalized   []string
}

func (f *fakeJobs) Start(ctx context.Context, req download.Request) (download.Job, error) {
	if f.startErr != nil {
		return download.Job{}, f.startErr
	}
	f.started = append(f.started, req)
	return download.NewJob("job-1", req.URL, req.Format, req.Quality, "", time.Now()), nil
}

func (f *fakeJobs) Get(id string) (download.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return download.Job{}, download.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobs) Finalize(ctx context.Context, id string) (string, error) {
	if f.finalizeErr != nil {
		return "", f.finalizeErr
	}
	f.finalized = append(f.finalized, id)
	return "x.mp4", nil
}

func (f *fakeJobs) Discard(ctx context.Context, id string) error {
	return f.discardErr
}

type fakeVideos struct {
	formatsErr error
}

func (f *fakeVideos) Info(ctx context.Context, url string) *processor.VideoInfo {
	return &processor.VideoInfo{Title: "T", AISummary: "S", KeyPoints: []string{}, Topics: []string{}, Status: "completed"}
}

func (f *fakeVideos) Analyze(ctx context.Context, url string) *processor.Analysis {
	return &processor.Analysis{Summary: "about " + url, KeyPoints: []string{}, Topics: []string{}, Status: "completed"}
}

func (f *fakeVideos) Formats(ctx context.Context, url string) (*ytdlp.FormatList, error) {
	if f.formatsErr != nil {
		return nil, f.formatsErr
	}
	return &ytdlp.FormatList{Formats: []ytdlp.Format{}, AvailableQualities: []string{"720p"}}, nil
}

type testServer struct {
	router *Router
	jobs   *fakeJobs
	videos *fakeVideos
	store  *gallery.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.New(io.Discard, logger.LevelError, "api")
	store, err := gallery.New(t.TempDir(), nil, log)
	if err != nil {
		t.Fatal(err)
	}
	ts := &testServer{
		jobs:   &fakeJobs{jobs: map[string]download.Job{}},
		videos: &fakeVideos{},
		store:  store,
	}
	ts.router = NewRouter(Config{
		Jobs:    ts.jobs,
		Videos:  ts.videos,
		Gallery: store,
		Logger:  log,
	})
	return ts
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apperrors.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return resp.Error.Code
}

func TestCreateDownload(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		startErr   error
		wantStatus int
	}{
		{name: "started", body: `{"url":"https://youtu.be/shorts/abc123","format":"video","quality":"720p"}`, wantStatus: http.StatusOK},
		{name: "missing url", body: `{"format":"audio"}`, wantStatus: http.StatusBadRequest},
		{name: "empty body", body: "", wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{"url":`, wantStatus: http.StatusBadRequest},
		{name: "unsupported scheme", body: `{"url":"ftp://example.com/v.mp4"}`, wantStatus: http.StatusBadRequest},
		{name: "shutting down", body: `{"url":"https://example.com/v"}`, startErr: download.ErrShuttingDown, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.jobs.startErr = tt.startErr

			w := ts.do(http.MethodPost, "/api/download", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp CreateDownloadResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != "started" || resp.DownloadID != "job-1" {
				t.Errorf("unexpected response: %+v", resp)
			}
			if got := ts.jobs.started[0]; got.Quality != "720p" || got.Format != "video" {
				t.Errorf("request not forwarded: %+v", got)
			}
		})
	}
}

func TestGetStatus(t *testing.T) {
	ts := newTestServer(t)
	job := download.NewJob("abc", "https://example.com/v", "video", "best", "/tmp/job_abc", time.Now())
	job.State = download.StateDownloading
	job.Progress = 45.2
	ts.jobs.jobs["abc"] = job

	w := ts.do(http.MethodGet, "/api/download/status?id=abc", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["state"] != "downloading" || body["progress"] != 45.2 {
		t.Errorf("unexpected body: %v", body)
	}
	if _, ok := body["WorkingDir"]; ok {
		t.Error("working directory must not be exposed")
	}

	w = ts.do(http.MethodGet, "/api/download/status?id=nope", "")
	if w.Code != http.StatusNotFound || errorCode(t, w) != apperrors.CodeJobNotFound {
		t.Errorf("unknown id: status = %d", w.Code)
	}
}

func TestServeFile_ByDownloadID(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "Cafe video.mp4")
	if err := os.WriteFile(path, []byte("video-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	done := download.NewJob("done", "u", "video", "best", dir, time.Now())
	if err := done.Complete(path, "Cafe video.mp4", time.Now()); err != nil {
		t.Fatal(err)
	}
	ts.jobs.jobs["done"] = done
	ts.jobs.jobs["running"] = download.NewJob("running", "u", "video", "best", dir, time.Now())

	w := ts.do(http.MethodGet, "/api/download?download_id=done", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "video-bytes" {
		t.Errorf("body = %q", w.Body.String())
	}
	wantHeaders := map[string]string{
		"Content-Disposition":          `attachment; filename="Cafe video.mp4"`,
		"Content-Type":                 "application/octet-stream",
		"Cache-Control":                "no-cache, no-store, must-revalidate",
		"Pragma":                       "no-cache",
		"Expires":                      "0",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, OPTIONS",
	}
	for k, v := range wantHeaders {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	for _, target := range []string{
		"/api/download?download_id=running",
		"/api/download?download_id=missing",
		"/api/download",
	} {
		if w := ts.do(http.MethodGet, target, ""); w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", target, w.Code)
		}
	}
}

func TestServeFile_ByFilename(t *testing.T) {
	ts := newTestServer(t)
	if err := os.WriteFile(filepath.Join(ts.store.Dir(), "Café ☕.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := ts.do(http.MethodGet, "/api/download?filename=Caf%C3%A9+%E2%98%95.mp3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="Cafe.mp3"` {
		t.Errorf("Content-Disposition = %q", got)
	}

	if w := ts.do(http.MethodGet, "/api/download?filename=..%2Fetc%2Fpasswd", ""); w.Code != http.StatusNotFound {
		t.Errorf("traversal: status = %d, want 404", w.Code)
	}
}

func TestCleanup(t *testing.T) {
	t.Run("finalize job", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(http.MethodPost, "/api/download/cleanup", `{"download_id":"job-1"}`)
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "File moved to downloads successfully") {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		if len(ts.jobs.finalized) != 1 {
			t.Error("finalizer not called")
		}
	})

	t.Run("second finalize is not found", func(t *testing.T) {
		ts := newTestServer(t)
		ts.jobs.finalizeErr = download.ErrFileNotFound
		w := ts.do(http.MethodPost, "/api/download/cleanup", `{"download_id":"job-1"}`)
		if w.Code != http.StatusNotFound || errorCode(t, w) != apperrors.CodeFileNotFound {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("move failure", func(t *testing.T) {
		ts := newTestServer(t)
		ts.jobs.finalizeErr = errors.New("disk full")
		w := ts.do(http.MethodPost, "/api/download/cleanup", `{"download_id":"job-1"}`)
		if w.Code != http.StatusInternalServerError || errorCode(t, w) != apperrors.CodeFilesystemError {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("gallery file", func(t *testing.T) {
		ts := newTestServer(t)
		path := filepath.Join(ts.store.Dir(), "old.mp4")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		w := ts.do(http.MethodPost, "/api/download/cleanup", `{"filename":"old.mp4"}`)
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "File cleaned up successfully") {
			t.Fatalf("status = %d: %s", w.Code, w.Body.String())
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("file not deleted")
		}
	})

	t.Run("nothing named", func(t *testing.T) {
		ts := newTestServer(t)
		if w := ts.do(http.MethodPost, "/api/download/cleanup", `{}`); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestDiscard(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "discarded", wantStatus: http.StatusOK},
		{name: "still running", err: download.ErrJobRunning, wantStatus: http.StatusConflict},
		{name: "unknown", err: download.ErrJobNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.jobs.discardErr = tt.err
			if w := ts.do(http.MethodDelete, "/api/download?download_id=x", ""); w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestGallery(t *testing.T) {
	ts := newTestServer(t)
	if err := os.WriteFile(filepath.Join(ts.store.Dir(), "a.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := ts.do(http.MethodGet, "/api/gallery", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp GalleryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Files) != 1 || resp.Files[0].DeleteURL != "/api/gallery/delete?filename=a.mp4" {
		t.Errorf("unexpected files: %+v", resp.Files)
	}

	if w := ts.do(http.MethodDelete, "/api/gallery/delete?filename=a.mp4", ""); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := ts.do(http.MethodDelete, "/api/gallery/delete?filename=a.mp4", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestVideoEndpoints(t *testing.T) {
	ts := newTestServer(t)

	if w := ts.do(http.MethodGet, "/api/video/info", ""); w.Code != http.StatusBadRequest {
		t.Errorf("info without url: status = %d", w.Code)
	}

	w := ts.do(http.MethodGet, "/api/video/info?url=https://youtu.be/x", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"aiSummary":"S"`) {
		t.Errorf("info: %d %s", w.Code, w.Body.String())
	}

	w = ts.do(http.MethodPost, "/analyze", `{"url":"https://youtu.be/x"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "about https://youtu.be/x") {
		t.Errorf("analyze: %d %s", w.Code, w.Body.String())
	}
	if w := ts.do(http.MethodPost, "/analyze", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("analyze without url: status = %d", w.Code)
	}

	w = ts.do(http.MethodGet, "/api/video/formats?url=https://youtu.be/x", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"available_qualities":["720p"]`) {
		t.Errorf("formats: %d %s", w.Code, w.Body.String())
	}

	ts.videos.formatsErr = apperrors.UpstreamToolError("Failed to get video formats")
	w = ts.do(http.MethodGet, "/api/video/formats?url=https://youtu.be/x", "")
	if w.Code != http.StatusInternalServerError || errorCode(t, w) != apperrors.CodeDownloadError {
		t.Errorf("formats failure: status = %d", w.Code)
	}
}

func TestRouter_LabelsRequestMetrics(t *testing.T) {
	ts := newTestServer(t)
	m := metrics.New()
	handler := metrics.MetricsMiddleware(m)(ts.router)

	for _, target := range []string{"/api/download/status?id=a", "/api/download/status?id=b", "/api/unknown"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	w := httptest.NewRecorder()
	m.Handler()(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()

	for _, want := range []string{
		`tubelens_http_requests_total{route="/api/download/status",method="GET",status="4xx"} 2`,
		`tubelens_http_requests_total{route="unmatched",method="GET",status="4xx"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s, got:\n%s", want, body)
		}
	}
}
