// Package ytdlp drives the yt-dlp binary: download processes with a
// combined output stream, and short metadata and format queries.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/tubelens/backend/internal/logger"
)

// Config holds configuration for the yt-dlp service
type Config struct {
	// YtdlpPath is the path to yt-dlp binary (default: "yt-dlp")
	YtdlpPath string
	// UserAgent is passed with --user-agent; queries retry once without it.
	UserAgent string

	TitleTimeout            time.Duration
	MetadataTimeout         time.Duration
	MetadataFallbackTimeout time.Duration
	FormatsTimeout          time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		YtdlpPath:               "yt-dlp",
		UserAgent:               "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		TitleTimeout:            15 * time.Second,
		MetadataTimeout:         45 * time.Second,
		MetadataFallbackTimeout: 30 * time.Second,
		FormatsTimeout:          30 * time.Second,
	}
}

// runFunc executes yt-dlp with args and returns its stdout.
type runFunc func(ctx context.Context, args []string) ([]byte, error)

// Service wraps the yt-dlp binary
type Service struct {
	cfg *Config
	run runFunc
	log *logger.Logger
}

// New creates a new yt-dlp service
func New(cfg *Config, log *logger.Logger) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}

	if _, err := exec.LookPath(cfg.YtdlpPath); err != nil {
		return nil, ErrYtdlpNotFound
	}

	s := &Service{cfg: cfg, log: log.WithComponent("ytdlp")}
	s.run = s.output
	return s, nil
}

// Binary returns the configured executable.
func (s *Service) Binary() string {
	return s.cfg.YtdlpPath
}

// Check verifies the binary is still resolvable. Used by health checks.
func (s *Service) Check(ctx context.Context) error {
	if _, err := exec.LookPath(s.cfg.YtdlpPath); err != nil {
		return ErrYtdlpNotFound
	}
	return nil
}

// output runs a short query and captures stdout. stderr is attached to the
// returned error for categorisation.
func (s *Service) output(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.cfg.YtdlpPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return nil, &commandError{err: err, stderr: stderr.String()}
	}
	return out, nil
}

type commandError struct {
	err    error
	stderr string
}

func (e *commandError) Error() string { return e.err.Error() }
func (e *commandError) Unwrap() error { return e.err }

// Process is a running download. Output yields stdout and stderr
// interleaved as the tool wrote them; Wait must be called after Output
// has been read to EOF.
type Process interface {
	Output() io.Reader
	Wait() error
}

type process struct {
	cmd *exec.Cmd
	out *os.File
}

func (p *process) Output() io.Reader { return p.out }

func (p *process) Wait() error {
	defer p.out.Close()

	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}

// Start launches a download with the given arguments. Both output streams
// share one pipe so progress and error lines keep their order.
func (s *Service) Start(ctx context.Context, args []string) (Process, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.cfg.YtdlpPath, args...)
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, &DownloadError{Message: "failed to start yt-dlp", Err: err}
	}
	// the child holds its own copy; closing ours lets reads hit EOF on exit
	w.Close()

	s.log.Debug(ctx, "yt-dlp started", map[string]interface{}{
		"pid":  cmd.Process.Pid,
		"args": args,
	})

	return &process{cmd: cmd, out: r}, nil
}

// ExitError reports a non-zero exit status of the downloader.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("yt-dlp failed with exit code %d", e.Code)
}

// withUserAgentFallback runs args with the configured user agent and, if
// that fails for any reason other than the caller's cancellation, once more
// without it.
func (s *Service) withUserAgentFallback(ctx context.Context, sourceURL string, timeout, fallbackTimeout time.Duration, args ...string) ([]byte, error) {
	primary := append(append([]string{}, args...), "--user-agent", s.cfg.UserAgent, sourceURL)

	out, err := s.runWithTimeout(ctx, timeout, primary)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.log.Warn(ctx, "yt-dlp query failed, retrying without user agent", map[string]interface{}{
		"url":   sourceURL,
		"args":  args,
		"error": err.Error(),
	})

	fallback := append(append([]string{}, args...), sourceURL)
	out, err = s.runWithTimeout(ctx, fallbackTimeout, fallback)
	if err != nil {
		return nil, categorizeQueryError(sourceURL, err)
	}
	return out, nil
}

func (s *Service) runWithTimeout(ctx context.Context, timeout time.Duration, args []string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.run(ctx, args)
}

func categorizeQueryError(sourceURL string, err error) error {
	if errors.Is(err, ErrTimeout) {
		return &DownloadError{URL: sourceURL, Message: "yt-dlp timed out", Err: ErrTimeout}
	}
	var cmdErr *commandError
	if errors.As(err, &cmdErr) {
		return Categorize(sourceURL, cmdErr.stderr)
	}
	return &DownloadError{URL: sourceURL, Message: "yt-dlp failed", Err: fmt.Errorf("%w: %v", ErrDownloadFailed, err)}
}
