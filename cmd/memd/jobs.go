package main

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmemory/memd/internal/metrics"
	"github.com/agentmemory/memd/internal/scheduler"
	"github.com/agentmemory/memd/internal/types"
)

// registerJobs wires the six named maintenance jobs from
// scheduler.DefaultJobSpecs (and any jobs.toml overlay already folded
// into specs) onto their concrete bodies, and registers each with
// registry. A recorder of nil is fine: metrics.Recorder is nil-safe.
func registerJobs(registry *scheduler.Registry, specs []scheduler.JobSpec, d *daemonComponents, recorder *metrics.Recorder) error {
	bodies := map[string]scheduler.JobFunc{
		"lexical-prune":      lexicalPruneJob(d),
		"vector-prune":       vectorPruneJob(d),
		"topic-lifecycle":    topicLifecycleJob(d),
		"outbox-gc":          outboxGCJob(d),
		"usage-flush":        usageFlushJob(d),
		"importance-refresh": importanceRefreshJob(d),
	}

	for _, spec := range specs {
		fn, ok := bodies[spec.Name]
		if !ok {
			continue // an operator-added jobs.toml entry with no matching body is ignored
		}
		timed := timedJob(spec.Name, fn, recorder)
		if err := registry.Register(spec, timed); err != nil {
			return err
		}
	}
	return nil
}

// timedJob wraps fn so every run reports its outcome to recorder without
// requiring internal/scheduler itself to know about metrics.
func timedJob(name string, fn scheduler.JobFunc, recorder *metrics.Recorder) scheduler.JobFunc {
	return func(ctx context.Context) (scheduler.JobResult, error) {
		start := time.Now()
		result, err := fn(ctx)
		recorder.RecordJob(ctx, name, time.Since(start), err)
		return result, err
	}
}

func lexicalPruneJob(d *daemonComponents) scheduler.JobFunc {
	return func(_ context.Context) (scheduler.JobResult, error) {
		if d.lexical == nil {
			return scheduler.JobResult{}, nil
		}
		ageDays := d.cfg.GetInt("retention.lexical.age_days")
		stats, err := d.lexical.Prune(ageDays, "", false)
		if err != nil {
			return scheduler.JobResult{}, err
		}
		return scheduler.JobResult{
			Count:   stats.Total,
			Summary: map[string]string{"deleted_by_level": fmt.Sprint(stats.DeletedByLevel)},
		}, nil
	}
}

func vectorPruneJob(d *daemonComponents) scheduler.JobFunc {
	return func(_ context.Context) (scheduler.JobResult, error) {
		if d.vector == nil {
			return scheduler.JobResult{}, nil
		}
		ageDays := d.cfg.GetInt("retention.vector.age_days")
		cutoff := types.NowMs() - int64(ageDays)*86_400_000
		stats, err := d.vector.Prune(cutoff)
		if err != nil {
			return scheduler.JobResult{}, err
		}
		return scheduler.JobResult{Count: stats.Removed}, nil
	}
}

func topicLifecycleJob(d *daemonComponents) scheduler.JobFunc {
	return func(_ context.Context) (scheduler.JobResult, error) {
		if d.topics == nil {
			return scheduler.JobResult{}, nil
		}
		const staleDays = 90
		const mergeThreshold = 0.92
		pruned, err := d.topics.PruneStaleTopics(staleDays)
		if err != nil {
			return scheduler.JobResult{}, err
		}
		merged, err := d.topics.MergeSimilarTopics(mergeThreshold)
		if err != nil {
			return scheduler.JobResult{}, err
		}
		return scheduler.JobResult{
			Count:   pruned + merged,
			Summary: map[string]string{"pruned": fmt.Sprint(pruned), "merged": fmt.Sprint(merged)},
		}, nil
	}
}

func outboxGCJob(d *daemonComponents) scheduler.JobFunc {
	return func(_ context.Context) (scheduler.JobResult, error) {
		if d.outboxDriver == nil {
			return scheduler.JobResult{}, nil
		}
		result, err := d.outboxDriver.Tick()
		if err != nil {
			return scheduler.JobResult{}, err
		}
		return scheduler.JobResult{
			Count:   result.Processed,
			Summary: map[string]string{"fetched": fmt.Sprint(result.FetchedEntries), "skipped": fmt.Sprint(result.Skipped)},
		}, nil
	}
}

func usageFlushJob(d *daemonComponents) scheduler.JobFunc {
	return func(_ context.Context) (scheduler.JobResult, error) {
		if d.usage == nil {
			return scheduler.JobResult{}, nil
		}
		if err := d.usage.FlushWrites(); err != nil {
			return scheduler.JobResult{}, err
		}
		return scheduler.JobResult{}, nil
	}
}

func importanceRefreshJob(d *daemonComponents) scheduler.JobFunc {
	return func(_ context.Context) (scheduler.JobResult, error) {
		if d.topics == nil {
			return scheduler.JobResult{}, nil
		}
		n, err := d.topics.RefreshImportanceScores()
		if err != nil {
			return scheduler.JobResult{}, err
		}
		return scheduler.JobResult{Count: n}, nil
	}
}
