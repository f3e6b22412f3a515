// Package outbox drives the indexing pipeline: it owns the registered
// indexer adapters and advances them over the event store's outbox in
// batches, checkpointing progress so a crash mid-batch is always safe to
// resume from.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentmemory/memd/internal/eventstore"
	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/types"
)

// Adapter is one indexer's view of the pipeline. IndexType names the
// adapter for checkpointing; it must be stable across restarts.
type Adapter interface {
	IndexType() string
	IndexDocument(entry types.OutboxEntry) error
	RemoveDocument(docID string) error
	Commit() error
}

// Options configures a Driver's tick behaviour.
type Options struct {
	BatchSize        int
	ContinueOnError  bool
	CommitAfterBatch bool
	Cleanup          bool // delete_outbox_entries past the safe watermark after each tick
}

// DefaultOptions mirrors an append-only-by-default posture: batches
// commit and checkpoint, but the outbox itself is never truncated unless
// the caller opts in.
func DefaultOptions() Options {
	return Options{BatchSize: 256, ContinueOnError: true, CommitAfterBatch: true, Cleanup: false}
}

// EntryResult records what happened to a single outbox entry for one
// adapter.
type EntryResult struct {
	Sequence uint64
	Adapter  string
	Err      error
}

// TickResult summarises one Tick call.
type TickResult struct {
	FetchedEntries int
	Processed      int
	Skipped        int
	Failures       []EntryResult
}

// Driver is the general pipeline runner described by the indexing
// pipeline component: N adapters, one outbox, checkpointed independently.
type Driver struct {
	store    *eventstore.Store
	adapters []Adapter
	opts     Options
	log      *slog.Logger
}

// NewDriver builds a Driver over the given adapters.
func NewDriver(store *eventstore.Store, adapters []Adapter, opts Options, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{store: store, adapters: adapters, opts: opts, log: log}
}

// Tick runs one pass of the pipeline algorithm: compute the minimum
// checkpoint, fetch a bounded batch at or after it, feed each adapter the
// entries it hasn't seen, commit and advance checkpoints, and optionally
// truncate the outbox up to the new safe watermark.
func (d *Driver) Tick() (TickResult, error) {
	if len(d.adapters) == 0 {
		return TickResult{}, nil
	}

	checkpoints := make(map[string]types.Checkpoint, len(d.adapters))
	minSeq := ^uint64(0)
	for _, a := range d.adapters {
		cp, _, err := d.store.GetCheckpoint(a.IndexType())
		if err != nil {
			return TickResult{}, merrors.Wrap(merrors.Storage, "outbox.Tick", err)
		}
		checkpoints[a.IndexType()] = cp
		if cp.LastSequence < minSeq {
			minSeq = cp.LastSequence
		}
	}
	if minSeq == ^uint64(0) {
		minSeq = 0
	}

	entries, err := d.store.GetOutboxEntries(minSeq, d.opts.BatchSize)
	if err != nil {
		return TickResult{}, merrors.Wrap(merrors.Storage, "outbox.Tick", err)
	}

	result := TickResult{FetchedEntries: len(entries)}
	if len(entries) == 0 {
		return result, nil
	}

	for _, a := range d.adapters {
		cp := checkpoints[a.IndexType()]
		fresh := cp.ProcessedCount == 0
		highest := cp.LastSequence
		successes := 0

		for _, entry := range entries {
			if !fresh && entry.Sequence <= cp.LastSequence {
				result.Skipped++
				continue
			}
			if err := a.IndexDocument(entry); err != nil {
				result.Failures = append(result.Failures, EntryResult{Sequence: entry.Sequence, Adapter: a.IndexType(), Err: err})
				d.log.Error("indexer failed on entry", "adapter", a.IndexType(), "sequence", entry.Sequence, "error", err)
				if !d.opts.ContinueOnError {
					break
				}
				continue
			}
			successes++
			result.Processed++
			if entry.Sequence > highest {
				highest = entry.Sequence
			}
		}

		if d.opts.CommitAfterBatch && successes > 0 {
			if err := a.Commit(); err != nil {
				return result, merrors.Wrap(merrors.Internal, "outbox.Tick", err)
			}
			cp.LastSequence = highest
			cp.ProcessedCount += uint64(successes)
			cp.Name = a.IndexType()
			if err := d.store.PutCheckpoint(cp); err != nil {
				return result, merrors.Wrap(merrors.Storage, "outbox.Tick", err)
			}
			checkpoints[a.IndexType()] = cp
		}
	}

	if d.opts.Cleanup {
		watermark := ^uint64(0)
		for _, cp := range checkpoints {
			if cp.LastSequence < watermark {
				watermark = cp.LastSequence
			}
		}
		if watermark != ^uint64(0) {
			if err := d.store.DeleteOutboxEntries(watermark); err != nil {
				return result, merrors.Wrap(merrors.Storage, "outbox.Tick", err)
			}
		}
	}

	return result, nil
}

// Run ticks on interval until ctx is cancelled, logging each tick's
// outcome at debug level.
func (d *Driver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := d.Tick()
			if err != nil {
				d.log.Error("pipeline tick failed", "error", err)
				continue
			}
			if result.FetchedEntries > 0 {
				d.log.Debug("pipeline tick",
					"fetched", result.FetchedEntries,
					"processed", result.Processed,
					"skipped", result.Skipped,
					"failures", len(result.Failures))
			}
		}
	}
}
