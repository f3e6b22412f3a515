package scheduler

import (
	"github.com/agentmemory/memd/internal/merrors"
)

// Registry holds every job the scheduler knows about, keyed by name.
type Registry struct {
	jobs map[string]*job
	// order preserves registration order so Status() output is stable
	// and deterministic for tests and CLI rendering.
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{jobs: map[string]*job{}}
}

// Register adds spec/fn under spec.Name. Registering the same name twice
// is a conflict: job identity is the admin surface's only handle.
func (r *Registry) Register(spec JobSpec, fn JobFunc) error {
	if spec.Name == "" {
		return merrors.New(merrors.InvalidArgument, "scheduler.Register", "job name is required")
	}
	if _, exists := r.jobs[spec.Name]; exists {
		return merrors.New(merrors.Conflict, "scheduler.Register", "job already registered: "+spec.Name)
	}
	r.jobs[spec.Name] = &job{spec: spec, fn: fn, paused: !spec.Enabled}
	r.order = append(r.order, spec.Name)
	return nil
}

// Pause stops name from being ticked until Resume is called. Pausing a
// non-pausable job is an invalid-argument error: some jobs (in the
// default set, usage-flush) are deliberately not operator-controllable.
func (r *Registry) Pause(name string) error {
	j, ok := r.jobs[name]
	if !ok {
		return merrors.New(merrors.NotFound, "scheduler.Pause", "unknown job: "+name)
	}
	if !j.spec.Pausable {
		return merrors.New(merrors.InvalidArgument, "scheduler.Pause", "job is not pausable: "+name)
	}
	j.mu.Lock()
	j.paused = true
	j.mu.Unlock()
	return nil
}

// Resume re-enables ticking for name.
func (r *Registry) Resume(name string) error {
	j, ok := r.jobs[name]
	if !ok {
		return merrors.New(merrors.NotFound, "scheduler.Resume", "unknown job: "+name)
	}
	j.mu.Lock()
	j.paused = false
	j.mu.Unlock()
	return nil
}

// Status returns every job's current state in registration order.
func (r *Registry) Status() []JobStatus {
	statuses := make([]JobStatus, 0, len(r.order))
	for _, name := range r.order {
		statuses = append(statuses, r.jobs[name].status())
	}
	return statuses
}

// StatusOne returns a single job's state.
func (r *Registry) StatusOne(name string) (JobStatus, error) {
	j, ok := r.jobs[name]
	if !ok {
		return JobStatus{}, merrors.New(merrors.NotFound, "scheduler.StatusOne", "unknown job: "+name)
	}
	return j.status(), nil
}
