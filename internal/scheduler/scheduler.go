package scheduler

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/agentmemory/memd/internal/types"
)

// Scheduler drives a Registry's jobs, one goroutine per job, each on its
// own ticker. Every background job receives ctx and checks it at loop
// heads, per the daemon's cancellation discipline.
type Scheduler struct {
	registry *Registry
	log      *slog.Logger
}

// New returns a Scheduler over registry. A nil log falls back to
// slog.Default().
func New(registry *Registry, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{registry: registry, log: log}
}

// Registry exposes the underlying Registry so callers can Register jobs
// before or after constructing the Scheduler.
func (s *Scheduler) Registry() *Registry { return s.registry }

// Run starts one ticking goroutine per registered job and blocks until
// ctx is cancelled or every goroutine has exited.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, name := range s.registry.order {
		j := s.registry.jobs[name]
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()
			s.runJob(ctx, j)
		}(j)
	}
	wg.Wait()
}

// runJob ticks j on its configured interval, staggered by a fixed
// per-name jitter so identically-configured jobs don't all fire on the
// same instant, skipping a tick if the previous run for this job hasn't
// finished yet (overlap policy: skip).
func (s *Scheduler) runJob(ctx context.Context, j *job) {
	if j.spec.Interval <= 0 {
		return
	}
	time.Sleep(jitter(j.spec.Name, j.spec.Interval))

	ticker := time.NewTicker(j.spec.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, j)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, j *job) {
	if !j.tryStart() {
		return
	}
	runCtx := ctx
	var cancel context.CancelFunc
	if j.spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, j.spec.Timeout)
		defer cancel()
	}

	result, err := j.fn(runCtx)
	j.finish(types.NowMs(), result, err)
	if err != nil {
		s.log.Error("scheduler: job failed", "job", j.spec.Name, "error", err)
		return
	}
	if result.Count > 0 {
		s.log.Info("scheduler: job completed", "job", j.spec.Name, "count", result.Count)
	}
}

// jitter derives a deterministic stagger in [0, interval/10) from name,
// so restarts don't change a job's phase relative to its own history.
func jitter(name string, interval time.Duration) time.Duration {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	span := interval / 10
	if span <= 0 {
		return 0
	}
	return time.Duration(h.Sum32()) % span
}
