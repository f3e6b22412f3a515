// Package scheduler runs the daemon's background maintenance jobs
// (index pruning, topic lifecycle, outbox truncation, usage flush,
// importance refresh) on independent ticking schedules, with per-job
// pause/resume and status reporting for the admin surface.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// JobResult is what a job reports back after one run.
type JobResult struct {
	Count   int
	Summary map[string]string
}

// JobFunc is one job's unit of work. It must respect ctx cancellation:
// the scheduler derives ctx from the job's configured timeout.
type JobFunc func(ctx context.Context) (JobResult, error)

// JobSpec describes a job's schedule and whether an operator can pause it.
type JobSpec struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Pausable bool
	Enabled  bool
}

// JobStatus is a point-in-time snapshot of a job's state, returned by
// GetSchedulerStatus.
type JobStatus struct {
	Name       string
	Enabled    bool
	Paused     bool
	Running    bool
	LastRunMs  int64
	LastResult JobResult
	LastErr    string
	RunCount   uint64
	FailCount  uint64
}

// job is the registry's internal bookkeeping for one registered JobFunc.
type job struct {
	spec JobSpec
	fn   JobFunc

	mu         sync.Mutex
	paused     bool
	running    bool
	lastRunMs  int64
	lastResult JobResult
	lastErr    string
	runCount   uint64
	failCount  uint64
}

func (j *job) status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobStatus{
		Name:       j.spec.Name,
		Enabled:    j.spec.Enabled,
		Paused:     j.paused,
		Running:    j.running,
		LastRunMs:  j.lastRunMs,
		LastResult: j.lastResult,
		LastErr:    j.lastErr,
		RunCount:   j.runCount,
		FailCount:  j.failCount,
	}
}

// tryStart marks the job running if it isn't already and isn't paused,
// implementing an overlap policy of "skip": a tick that fires while the
// previous run is still in flight is dropped rather than queued.
func (j *job) tryStart() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.paused || j.running {
		return false
	}
	j.running = true
	return true
}

func (j *job) finish(nowMs int64, result JobResult, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.running = false
	j.lastRunMs = nowMs
	j.runCount++
	if err != nil {
		j.failCount++
		j.lastErr = err.Error()
		return
	}
	j.lastResult = result
	j.lastErr = ""
}
