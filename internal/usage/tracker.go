// Package usage implements the cache-first usage tracker (spec §4.10): a
// bounded in-memory LRU in front of the usage_counters column family,
// with the store only ever touched from background flush/prefetch
// passes, never from the hot path.
package usage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agentmemory/memd/internal/merrors"
	"github.com/agentmemory/memd/internal/storage"
	"github.com/agentmemory/memd/internal/types"
)

// Tracker is the two-level usage tracker. All exported methods are safe
// for concurrent use.
type Tracker struct {
	cache   *lru.Cache[string, types.UsageStats]
	engine  storage.Engine
	enabled bool

	mu              sync.Mutex
	pendingWrites   map[string]bool
	pendingPrefetch map[string]bool
}

// New builds a Tracker with a bounded LRU of cacheSize entries. When
// enabled is false every method is a no-op, matching the spec's
// "disabled by configuration with no other subsystem needing to change"
// invariant.
func New(engine storage.Engine, cacheSize int, enabled bool) (*Tracker, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, types.UsageStats](cacheSize)
	if err != nil {
		return nil, merrors.Wrap(merrors.Internal, "usage.New", err)
	}
	return &Tracker{
		cache:           cache,
		engine:          engine,
		enabled:         enabled,
		pendingWrites:   map[string]bool{},
		pendingPrefetch: map[string]bool{},
	}, nil
}

// RecordAccess is the hot path: bump the cached counter and enqueue a
// pending write. Never touches the store.
func (t *Tracker) RecordAccess(docID string) {
	if !t.enabled {
		return
	}
	existing, _ := t.cache.Get(docID)
	t.cache.Add(docID, types.UsageStats{
		DocID:          docID,
		AccessCount:    existing.AccessCount + 1,
		LastAccessedMs: types.NowMs(),
	})

	t.mu.Lock()
	t.pendingWrites[docID] = true
	t.mu.Unlock()
}

// GetUsageCached returns cached stats if present; otherwise it enqueues
// an asynchronous prefetch and returns zero stats immediately.
func (t *Tracker) GetUsageCached(docID string) types.UsageStats {
	if !t.enabled {
		return types.UsageStats{DocID: docID}
	}
	if stats, ok := t.cache.Get(docID); ok {
		return stats
	}
	t.mu.Lock()
	t.pendingPrefetch[docID] = true
	t.mu.Unlock()
	return types.UsageStats{DocID: docID}
}

// FlushWrites drains the pending write queue: for each entry, reads the
// currently persisted stats (if any), merges with the cached value, and
// writes every merged record in one atomic batch.
func (t *Tracker) FlushWrites() error {
	if !t.enabled || t.engine == nil {
		return nil
	}
	docIDs := t.drain(&t.pendingWrites)
	if len(docIDs) == 0 {
		return nil
	}

	type entry struct {
		docID string
		stats types.UsageStats
	}
	merged := make([]entry, 0, len(docIDs))
	for _, docID := range docIDs {
		cached, ok := t.cache.Get(docID)
		if !ok {
			continue
		}
		persisted, err := t.loadPersisted(docID)
		if err != nil {
			return err
		}
		merged = append(merged, entry{docID: docID, stats: persisted.Merge(cached)})
	}

	err := t.engine.Batch(func(b storage.Batch) error {
		for _, m := range merged {
			raw, err := json.Marshal(m.stats)
			if err != nil {
				return err
			}
			if err := b.Put(storage.CFUsageCounters, []byte(m.docID), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return merrors.Wrap(merrors.Storage, "usage.FlushWrites", err)
	}
	return nil
}

// ProcessPrefetch drains the prefetch queue: for each id, loads persisted
// stats (if any, else zero stats) and inserts into the cache.
func (t *Tracker) ProcessPrefetch() error {
	if !t.enabled || t.engine == nil {
		return nil
	}
	docIDs := t.drain(&t.pendingPrefetch)
	for _, docID := range docIDs {
		if _, ok := t.cache.Get(docID); ok {
			continue // a RecordAccess already populated it since the enqueue
		}
		stats, err := t.loadPersisted(docID)
		if err != nil {
			return err
		}
		t.cache.Add(docID, stats)
	}
	return nil
}

// WarmCache iterates the usage_counters column family and loads up to
// limit records into the cache, for use on daemon startup.
func (t *Tracker) WarmCache(limit int) error {
	if !t.enabled || t.engine == nil {
		return nil
	}
	count := 0
	err := t.engine.ScanPrefix(storage.CFUsageCounters, nil, func(_, value []byte) (bool, error) {
		if limit > 0 && count >= limit {
			return false, nil
		}
		var stats types.UsageStats
		if err := json.Unmarshal(value, &stats); err != nil {
			return false, merrors.Wrap(merrors.Internal, "usage.WarmCache", err)
		}
		t.cache.Add(stats.DocID, stats)
		count++
		return true, nil
	})
	if err != nil {
		return merrors.Wrap(merrors.Storage, "usage.WarmCache", err)
	}
	return nil
}

// Run drives the background flush and prefetch loops until ctx is
// cancelled, flushing once more on the way out.
func (t *Tracker) Run(ctx context.Context, flushInterval, prefetchInterval time.Duration) {
	flushTicker := time.NewTicker(flushInterval)
	prefetchTicker := time.NewTicker(prefetchInterval)
	defer flushTicker.Stop()
	defer prefetchTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := t.FlushWrites(); err != nil {
				slog.Error("usage: final flush failed", "error", err)
			}
			return
		case <-flushTicker.C:
			if err := t.FlushWrites(); err != nil {
				slog.Error("usage: flush failed", "error", err)
			}
		case <-prefetchTicker.C:
			if err := t.ProcessPrefetch(); err != nil {
				slog.Error("usage: prefetch failed", "error", err)
			}
		}
	}
}

func (t *Tracker) drain(queue *map[string]bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(*queue))
	for id := range *queue {
		ids = append(ids, id)
	}
	*queue = map[string]bool{}
	return ids
}

// loadPersisted reads stats for docID, returning zero stats (not an
// error) when the column family has nothing for it yet.
func (t *Tracker) loadPersisted(docID string) (types.UsageStats, error) {
	raw, found, err := t.engine.Get(storage.CFUsageCounters, []byte(docID))
	if err != nil {
		return types.UsageStats{}, merrors.Wrap(merrors.Storage, "usage.loadPersisted", err)
	}
	if !found {
		return types.UsageStats{DocID: docID}, nil
	}
	var stats types.UsageStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return types.UsageStats{}, merrors.Wrap(merrors.Internal, "usage.loadPersisted", err)
	}
	return stats, nil
}
