package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/tubelens/backend/internal/errors"
	"github.com/tubelens/backend/internal/filename"
	"github.com/tubelens/backend/internal/logger"
	"github.com/tubelens/backend/internal/progress"
	"github.com/tubelens/backend/internal/validators"
	"github.com/tubelens/backend/internal/ytdlp"
)

const (
	// Default configuration values
	DefaultTickInterval = 2 * time.Second
	DefaultTickStep     = 5.0
	DefaultTickCeiling  = 90.0

	// JobDirPrefix names per-job scratch directories.
	JobDirPrefix = "job_"

	tailLines      = 20
	maxLineLength  = 1024 * 1024
	defaultQuality = "best"
)

// ErrShuttingDown rejects new jobs once Shutdown has begun.
var ErrShuttingDown = errors.New("download manager is shutting down")

// Downloader launches the external download process.
type Downloader interface {
	Start(ctx context.Context, args []string) (ytdlp.Process, error)
}

// Importer moves a finished file into durable storage under name and
// returns the stored name.
type Importer interface {
	Import(ctx context.Context, src, name string) (string, error)
}

// Recorder receives job lifecycle counts.
type Recorder interface {
	JobEvent(event string)
	SetActiveJobs(n int)
}

type nopRecorder struct{}

func (nopRecorder) JobEvent(string)   {}
func (nopRecorder) SetActiveJobs(int) {}

// Config holds configuration for the download manager
type Config struct {
	TempDir      string
	UserAgent    string
	TickInterval time.Duration
	TickStep     float64
	TickCeiling  float64
}

// Request is a client's download order.
type Request struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Quality string `json:"quality"`
}

// Manager runs download jobs. Each job gets a runner goroutine that owns
// the external process and a fallback ticker goroutine; both are tracked
// so Shutdown can wait for them.
type Manager struct {
	cfg        Config
	registry   *Registry
	downloader Downloader
	store      Importer
	log        *logger.Logger
	recorder   Recorder

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	tickers map[string]context.CancelFunc
	closed  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithRecorder reports job counts to r.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// NewManager creates a manager. Jobs run until they finish or Shutdown
// cancels them.
func NewManager(cfg Config, registry *Registry, downloader Downloader, store Importer, log *logger.Logger, opts ...Option) *Manager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.TickStep <= 0 {
		cfg.TickStep = DefaultTickStep
	}
	if cfg.TickCeiling <= 0 {
		cfg.TickCeiling = DefaultTickCeiling
	}
	if log == nil {
		log = logger.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg,
		registry:   registry,
		downloader: downloader,
		store:      store,
		log:        log.WithComponent("download"),
		recorder:   nopRecorder{},
		baseCtx:    ctx,
		cancel:     cancel,
		tickers:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry exposes the job registry for read access and observers.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Get returns a snapshot of a job.
func (m *Manager) Get(id string) (Job, error) {
	return m.registry.Get(id)
}

// Start creates a job, launches it in the background and returns the
// job as first recorded.
func (m *Manager) Start(ctx context.Context, req Request) (Job, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return Job{}, ErrShuttingDown
	}

	if req.Format == "" {
		req.Format = ytdlp.FormatVideo
	}
	if req.Quality == "" {
		req.Quality = defaultQuality
	}
	target := validators.Canonicalize(req.URL)

	id := uuid.New().String()
	dir, err := os.MkdirTemp(m.cfg.TempDir, JobDirPrefix+id+"_")
	if err != nil {
		return Job{}, fmt.Errorf("failed to create working directory: %w", err)
	}

	job := NewJob(id, target, req.Format, req.Quality, dir, time.Now())
	if err := m.registry.Create(job); err != nil {
		os.RemoveAll(dir)
		return Job{}, err
	}

	// background work keeps the request id for log correlation but not
	// the request's cancellation
	jobCtx := apperrors.WithRequestID(m.baseCtx, apperrors.GetRequestID(ctx))
	tickCtx, stopTick := context.WithCancel(jobCtx)

	// registering under mu orders wg.Add before Shutdown's Wait
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		stopTick()
		m.registry.Delete(id)
		os.RemoveAll(dir)
		return Job{}, ErrShuttingDown
	}
	m.tickers[id] = stopTick
	m.wg.Add(2)
	m.mu.Unlock()

	go m.run(jobCtx, job)
	go m.tick(tickCtx, id)

	m.recorder.JobEvent("started")
	m.recorder.SetActiveJobs(m.registry.Active())
	m.log.Info(ctx, "download job created", map[string]interface{}{
		"job_id":  id,
		"url":     target,
		"format":  req.Format,
		"quality": req.Quality,
		"dir":     dir,
	})

	return job, nil
}

// run owns the external process for one job.
func (m *Manager) run(ctx context.Context, job Job) {
	defer m.wg.Done()
	defer m.stopTicker(job.ID)
	defer func() {
		if rec := recover(); rec != nil {
			m.fail(ctx, job.ID, fmt.Sprintf("unexpected error: %v", rec))
		}
	}()

	args := ytdlp.DownloadArgs(ytdlp.DownloadOptions{
		URL:       job.URL,
		Format:    job.Format,
		Quality:   job.Quality,
		OutputDir: job.WorkingDir,
		UserAgent: m.cfg.UserAgent,
	})

	proc, err := m.downloader.Start(ctx, args)
	if err != nil {
		m.fail(ctx, job.ID, err.Error())
		return
	}

	if _, err := m.registry.Update(job.ID, func(j *Job) error {
		return j.MarkDownloading(time.Now())
	}); err != nil {
		m.log.Warn(ctx, "could not mark job downloading", map[string]interface{}{"job_id": job.ID, "error": err.Error()})
	}
	m.log.Info(ctx, "download process spawned", map[string]interface{}{"job_id": job.ID})

	captured, tail := m.consume(ctx, job.ID, proc.Output())

	if err := proc.Wait(); err != nil {
		m.fail(ctx, job.ID, failureMessage(ctx, err, tail))
		return
	}

	path, err := resolveOutput(job.WorkingDir, captured)
	if err != nil {
		m.fail(ctx, job.ID, "Failed to locate downloaded file")
		return
	}

	name := filename.SanitizeBase(filepath.Base(path))
	if _, err := m.registry.Update(job.ID, func(j *Job) error {
		return j.Complete(path, name, time.Now())
	}); err != nil {
		m.log.Warn(ctx, "could not complete job", map[string]interface{}{"job_id": job.ID, "error": err.Error()})
		return
	}

	m.recorder.JobEvent("completed")
	m.recorder.SetActiveJobs(m.registry.Active())
	m.log.Info(ctx, "download job completed", map[string]interface{}{
		"job_id": job.ID,
		"file":   filepath.Base(path),
	})
}

// consume reads output to EOF, applying each line to the job. It returns
// the last announced output path and the trailing lines for diagnostics.
func (m *Manager) consume(ctx context.Context, id string, r io.Reader) (captured, tail string) {
	var recent []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		m.log.Debug(ctx, "yt-dlp output", map[string]interface{}{"job_id": id, "line": line})

		recent = append(recent, line)
		if len(recent) > tailLines {
			recent = recent[1:]
		}

		sig := progress.Parse(line)
		if sig.FilePath != "" {
			captured = sig.FilePath
		}
		if sig.Empty() {
			continue
		}
		if _, err := m.registry.Update(id, func(j *Job) error {
			return j.Apply(sig, time.Now())
		}); err != nil && !errors.Is(err, ErrJobTerminal) {
			m.log.Debug(ctx, "progress update dropped", map[string]interface{}{"job_id": id, "error": err.Error()})
		}
	}
	if err := scanner.Err(); err != nil {
		m.log.Warn(ctx, "reading yt-dlp output failed", map[string]interface{}{"job_id": id, "error": err.Error()})
	}
	// keep the pipe drained so the process can exit
	io.Copy(io.Discard, r)

	return captured, strings.Join(recent, "\n")
}

func failureMessage(ctx context.Context, err error, tail string) string {
	if ctx.Err() != nil {
		return "download cancelled: server shutting down"
	}
	msg := err.Error()
	var exitErr *ytdlp.ExitError
	if errors.As(err, &exitErr) {
		if reason := ytdlp.Reason(tail); reason != "" {
			msg += ": " + reason
		}
	}
	return msg
}

func (m *Manager) fail(ctx context.Context, id, message string) {
	if _, err := m.registry.Update(id, func(j *Job) error {
		return j.Fail(message, time.Now())
	}); err != nil {
		m.log.Warn(ctx, "could not mark job failed", map[string]interface{}{"job_id": id, "error": err.Error()})
		return
	}

	m.recorder.JobEvent("failed")
	m.recorder.SetActiveJobs(m.registry.Active())
	m.log.Error(ctx, "download job failed", errors.New(message), map[string]interface{}{"job_id": id})
}

// resolveOutput prefers the announced path and otherwise picks the most
// recently modified media file in dir.
func resolveOutput(dir, captured string) (string, error) {
	if captured != "" {
		if info, err := os.Stat(captured); err == nil && info.Mode().IsRegular() {
			return filepath.Abs(captured)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if !e.Type().IsRegular() || !filename.IsMedia(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", ErrFileNotFound
	}
	return filepath.Abs(newest)
}

// tick nudges a job off 0% if the downloader has not reported progress by
// the time it fires. It exits once the job has any progress, leaves
// downloading or disappears.
func (m *Manager) tick(ctx context.Context, id string) {
	defer m.wg.Done()

	t := time.NewTicker(m.cfg.TickInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		keep := false
		_, err := m.registry.Update(id, func(j *Job) error {
			before := j.Progress
			var err error
			keep, err = j.Nudge(m.cfg.TickStep, m.cfg.TickCeiling, time.Now())
			if err != nil {
				return err
			}
			if j.Progress == before {
				return errUnchanged
			}
			return nil
		})
		if err != nil || !keep {
			return
		}
	}
}

func (m *Manager) stopTicker(id string) {
	m.mu.Lock()
	stop, ok := m.tickers[id]
	delete(m.tickers, id)
	m.mu.Unlock()
	if ok {
		stop()
	}
}

// Finalize moves a done job's file into durable storage, removes its
// working directory and forgets the job. Unknown ids, unfinished jobs and
// files already gone all report ErrFileNotFound. If the move fails the job
// is left as it was so the call can be retried.
func (m *Manager) Finalize(ctx context.Context, id string) (string, error) {
	job, err := m.registry.Get(id)
	if err != nil {
		return "", ErrFileNotFound
	}
	if job.State != StateDone || !within(job.WorkingDir, job.FinalFilePath) {
		return "", ErrFileNotFound
	}
	if info, err := os.Stat(job.FinalFilePath); err != nil || !info.Mode().IsRegular() {
		return "", ErrFileNotFound
	}

	job, err = m.registry.Update(id, func(j *Job) error {
		if j.State != StateDone || j.finalizing {
			return ErrFileNotFound
		}
		j.finalizing = true
		return nil
	})
	if err != nil {
		return "", ErrFileNotFound
	}

	stored, err := m.store.Import(ctx, job.FinalFilePath, job.SanitizedName)
	if err != nil {
		m.registry.Update(id, func(j *Job) error {
			j.finalizing = false
			return nil
		})
		m.log.Error(ctx, "failed to move downloaded file", err, map[string]interface{}{"job_id": id})
		return "", err
	}

	m.release(ctx, job)
	m.recorder.JobEvent("finalized")
	m.log.Info(ctx, "download job finalized", map[string]interface{}{
		"job_id": id,
		"file":   stored,
	})
	return stored, nil
}

// Discard drops a finished job that will never be finalized, removing its
// working directory. Running jobs report ErrJobRunning.
func (m *Manager) Discard(ctx context.Context, id string) error {
	job, err := m.registry.Update(id, func(j *Job) error {
		if !j.IsTerminal() || j.finalizing {
			return ErrJobRunning
		}
		j.finalizing = true
		return nil
	})
	if err != nil {
		return err
	}

	m.release(ctx, job)
	m.recorder.JobEvent("discarded")
	m.log.Info(ctx, "download job discarded", map[string]interface{}{"job_id": id, "state": string(job.State)})
	return nil
}

func (m *Manager) release(ctx context.Context, job Job) {
	if err := os.RemoveAll(job.WorkingDir); err != nil {
		m.log.Warn(ctx, "failed to remove working directory", map[string]interface{}{
			"job_id": job.ID,
			"dir":    job.WorkingDir,
			"error":  err.Error(),
		})
	}
	m.registry.Delete(job.ID)
	m.stopTicker(job.ID)
	m.recorder.SetActiveJobs(m.registry.Active())
}

// Shutdown cancels running downloads and waits for job goroutines to exit
// or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info(ctx, "download manager stopped gracefully")
		return nil
	case <-ctx.Done():
		m.log.Warn(ctx, "download manager shutdown timed out")
		return ctx.Err()
	}
}

// PrepareScratch creates the scratch root and removes job directories left
// behind by a previous process. Job state does not survive restarts, so
// nothing can reference them.
func PrepareScratch(dir string, log *logger.Logger) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), JobDirPrefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			if log != nil {
				log.Warn(context.Background(), "failed to remove stale job directory", map[string]interface{}{
					"dir":   e.Name(),
					"error": err.Error(),
				})
			}
			continue
		}
		removed++
	}
	return removed, nil
}

// within reports whether path lies inside dir.
func within(dir, path string) bool {
	if dir == "" || path == "" {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
