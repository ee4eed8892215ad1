package download

import (
	"errors"
	"sync"
)

// Observer is told about every committed change. Callbacks run while the
// registry lock is held, so they must not block or call back into the
// registry.
type Observer interface {
	JobUpdated(job Job)
	JobRemoved(id string)
}

// errUnchanged lets a mutator decline to commit without failing.
var errUnchanged = errors.New("unchanged")

// Registry is the in-memory set of live jobs. All access goes through its
// methods; a single mutex serialises them.
type Registry struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	observers []Observer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Observe registers o for change notifications.
func (r *Registry) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Create stores a new job.
func (r *Registry) Create(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return ErrJobExists
	}
	stored := job
	r.jobs[job.ID] = &stored
	r.notify(stored)
	return nil
}

// Get returns a copy of the job.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

// Update applies fn to a copy of the job and commits the copy only if fn
// succeeds, so a failed mutation leaves no partial change behind.
func (r *Registry) Update(id string, fn func(*Job) error) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}

	next := *job
	if err := fn(&next); err != nil {
		if errors.Is(err, errUnchanged) {
			return *job, nil
		}
		return *job, err
	}

	*job = next
	r.notify(next)
	return next, nil
}

// Delete removes the job and reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return false
	}
	delete(r.jobs, id)
	for _, o := range r.observers {
		o.JobRemoved(id)
	}
	return true
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Active counts jobs that have not reached a terminal state.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, job := range r.jobs {
		if !job.IsTerminal() {
			n++
		}
	}
	return n
}

func (r *Registry) notify(job Job) {
	for _, o := range r.observers {
		o.JobUpdated(job)
	}
}
