package download

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/tubelens/backend/internal/progress"
)

// State is a step in a job's lifecycle.
type State string

// Job states. done and error are terminal.
const (
	StateStarted     State = "started"
	StateDownloading State = "downloading"
	StateProcessing  State = "processing"
	StateDone        State = "done"
	StateError       State = "error"
)

// MaxActiveProgress caps progress until the job is done.
const MaxActiveProgress = 99.9

var (
	// ErrJobNotFound is returned for ids the registry does not know.
	ErrJobNotFound = errors.New("download job not found")

	// ErrJobExists is returned when creating a job under a live id.
	ErrJobExists = errors.New("download job already exists")

	// ErrJobTerminal rejects mutations of a job that already finished.
	ErrJobTerminal = errors.New("download job already finished")

	// ErrJobRunning rejects discarding a job that has not finished.
	ErrJobRunning = errors.New("download job still running")

	// ErrFileNotFound means the job has no produced file to serve or finalize.
	ErrFileNotFound = errors.New("downloaded file not found")
)

// IsTerminal reports whether s is done or error.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateError
}

// Job is one download request and its tracked state. Values handed out by
// the registry are copies; mutate through Registry.Update.
type Job struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Format  string `json:"format"`
	Quality string `json:"quality"`

	State    State   `json:"state"`
	Progress float64 `json:"progress"`
	Speed    string  `json:"speed,omitempty"`
	ETA      string  `json:"eta,omitempty"`

	WorkingDir    string `json:"-"`
	FinalFilePath string `json:"-"`
	FileName      string `json:"filePath,omitempty"`
	SanitizedName string `json:"sanitizedFilename,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// finalizing is held while the finalizer moves the file out.
	finalizing bool
}

// NewJob returns a job in the started state.
func NewJob(id, url, format, quality, workingDir string, now time.Time) Job {
	return Job{
		ID:         id,
		URL:        url,
		Format:     format,
		Quality:    quality,
		State:      StateStarted,
		WorkingDir: workingDir,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.State.IsTerminal()
}

// MarkDownloading moves a started job to downloading.
func (j *Job) MarkDownloading(now time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	if j.State == StateStarted {
		j.State = StateDownloading
		j.UpdatedAt = now
	}
	return nil
}

// Apply folds one parsed output line into the job. Progress only ever
// rises and stays below 100; speed and ETA are last-write-wins. A phase
// change moves the job to processing for good.
func (j *Job) Apply(sig progress.Signal, now time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}

	if sig.Phase == progress.PhaseProcessing {
		j.State = StateProcessing
		j.raise(progress.ProcessingProgress)
	}

	if sig.HasProgress {
		if j.State == StateStarted {
			j.State = StateDownloading
		}
		j.raise(sig.Progress)
	}

	if sig.Speed != "" {
		j.Speed = sig.Speed
	}
	if sig.ETA != "" {
		j.ETA = sig.ETA
	}

	j.UpdatedAt = now
	return nil
}

func (j *Job) raise(p float64) {
	if p > MaxActiveProgress {
		p = MaxActiveProgress
	}
	if p > j.Progress {
		j.Progress = p
	}
}

// Nudge is the fallback ticker's step. It only moves a downloading job
// whose progress is still at 0, and reports false once the ticker should
// stop for good.
func (j *Job) Nudge(step, ceiling float64, now time.Time) (bool, error) {
	switch {
	case j.IsTerminal():
		return false, ErrJobTerminal
	case j.State == StateStarted:
		return true, nil
	case j.State != StateDownloading, j.Progress != 0:
		return false, nil
	}

	j.Progress = step
	if j.Progress > ceiling {
		j.Progress = ceiling
	}
	j.UpdatedAt = now
	return j.Progress == 0, nil
}

// Complete records the produced file and finishes the job.
func (j *Job) Complete(path, sanitizedName string, now time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	j.State = StateDone
	j.Progress = 100
	j.FinalFilePath = path
	j.FileName = filepath.Base(path)
	j.SanitizedName = sanitizedName
	j.UpdatedAt = now
	j.CompletedAt = &now
	return nil
}

// Fail finishes the job with a message. Progress is left where it was.
func (j *Job) Fail(message string, now time.Time) error {
	if j.IsTerminal() {
		return ErrJobTerminal
	}
	if message == "" {
		message = "download failed"
	}
	j.State = StateError
	j.ErrorMessage = message
	j.Speed = ""
	j.ETA = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
	return nil
}
