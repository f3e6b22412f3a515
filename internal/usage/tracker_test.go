package usage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentmemory/memd/internal/storage/sqlite"
	"github.com/agentmemory/memd/internal/types"
)

func newTestEngine(t *testing.T) *sqlite.Engine {
	t.Helper()
	engine, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestRecordAccessThenGetUsageCached(t *testing.T) {
	tracker, err := New(newTestEngine(t), 16, true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tracker.RecordAccess("doc-1")
	tracker.RecordAccess("doc-1")

	stats := tracker.GetUsageCached("doc-1")
	if stats.AccessCount != 2 {
		t.Fatalf("AccessCount = %d, want 2", stats.AccessCount)
	}
	if stats.LastAccessedMs == 0 {
		t.Fatalf("LastAccessedMs = 0, want nonzero")
	}
}

func TestGetUsageCachedMissReturnsZeroAndEnqueuesPrefetch(t *testing.T) {
	tracker, err := New(newTestEngine(t), 16, true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	stats := tracker.GetUsageCached("unknown-doc")
	if stats.AccessCount != 0 || stats.DocID != "unknown-doc" {
		t.Fatalf("stats = %+v, want zero stats for unknown-doc", stats)
	}

	tracker.mu.Lock()
	_, enqueued := tracker.pendingPrefetch["unknown-doc"]
	tracker.mu.Unlock()
	if !enqueued {
		t.Fatalf("expected unknown-doc to be enqueued for prefetch")
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	tracker, err := New(newTestEngine(t), 2, true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tracker.RecordAccess("a")
	tracker.RecordAccess("b")
	tracker.RecordAccess("c") // evicts "a", the least recently used

	if stats := tracker.GetUsageCached("a"); stats.AccessCount != 0 {
		t.Fatalf("expected a evicted, got AccessCount = %d", stats.AccessCount)
	}
	if stats := tracker.GetUsageCached("b"); stats.AccessCount != 1 {
		t.Fatalf("expected b retained, got AccessCount = %d", stats.AccessCount)
	}
	if stats := tracker.GetUsageCached("c"); stats.AccessCount != 1 {
		t.Fatalf("expected c retained, got AccessCount = %d", stats.AccessCount)
	}
}

func TestFlushWritesMergesWithPersistedRecord(t *testing.T) {
	engine := newTestEngine(t)
	tracker, err := New(engine, 16, true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tracker.RecordAccess("doc-1")
	tracker.RecordAccess("doc-1")
	if err := tracker.FlushWrites(); err != nil {
		t.Fatalf("FlushWrites() error = %v", err)
	}

	persisted, err := tracker.loadPersisted("doc-1")
	if err != nil {
		t.Fatalf("loadPersisted() error = %v", err)
	}
	if persisted.AccessCount != 2 {
		t.Fatalf("persisted AccessCount = %d, want 2", persisted.AccessCount)
	}

	// A second tracker instance sharing the store sees a higher count for
	// the same doc but an older timestamp; flushing from the first
	// tracker again must not regress the persisted count.
	second, err := New(engine, 16, true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	second.cache.Add("doc-1", types.UsageStats{DocID: "doc-1", AccessCount: 5, LastAccessedMs: 1})
	second.mu.Lock()
	second.pendingWrites["doc-1"] = true
	second.mu.Unlock()
	if err := second.FlushWrites(); err != nil {
		t.Fatalf("FlushWrites() error = %v", err)
	}

	tracker.RecordAccess("doc-1") // bumps to 3 with a fresh timestamp
	if err := tracker.FlushWrites(); err != nil {
		t.Fatalf("FlushWrites() error = %v", err)
	}

	final, err := tracker.loadPersisted("doc-1")
	if err != nil {
		t.Fatalf("loadPersisted() error = %v", err)
	}
	if final.AccessCount != 5 {
		t.Fatalf("final AccessCount = %d, want 5 (max of 3 and 5)", final.AccessCount)
	}
}

func TestProcessPrefetchLoadsPersistedIntoCache(t *testing.T) {
	engine := newTestEngine(t)
	writer, err := New(engine, 16, true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	writer.RecordAccess("doc-9")
	if err := writer.FlushWrites(); err != nil {
		t.Fatalf("FlushWrites() error = %v", err)
	}

	reader, err := New(engine, 16, true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	reader.GetUsageCached("doc-9") // cache miss, enqueues prefetch
	if err := reader.ProcessPrefetch(); err != nil {
		t.Fatalf("ProcessPrefetch() error = %v", err)
	}

	stats := reader.GetUsageCached("doc-9")
	if stats.AccessCount != 1 {
		t.Fatalf("AccessCount = %d, want 1 after prefetch", stats.AccessCount)
	}
}

func TestWarmCacheRespectsLimit(t *testing.T) {
	engine := newTestEngine(t)
	writer, err := New(engine, 16, true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		writer.RecordAccess(id)
	}
	if err := writer.FlushWrites(); err != nil {
		t.Fatalf("FlushWrites() error = %v", err)
	}

	fresh, err := New(engine, 16, true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := fresh.WarmCache(2); err != nil {
		t.Fatalf("WarmCache() error = %v", err)
	}
	if fresh.cache.Len() != 2 {
		t.Fatalf("cache.Len() = %d, want 2", fresh.cache.Len())
	}
}

func TestDisabledTrackerIsNoOp(t *testing.T) {
	tracker, err := New(newTestEngine(t), 16, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tracker.RecordAccess("doc-1")
	stats := tracker.GetUsageCached("doc-1")
	if stats.AccessCount != 0 {
		t.Fatalf("AccessCount = %d, want 0 when disabled", stats.AccessCount)
	}
	if err := tracker.FlushWrites(); err != nil {
		t.Fatalf("FlushWrites() error = %v", err)
	}
	if err := tracker.WarmCache(10); err != nil {
		t.Fatalf("WarmCache() error = %v", err)
	}
}

func TestGetUsageCachedAbsentColumnFamilyReturnsZero(t *testing.T) {
	tracker, err := New(newTestEngine(t), 16, true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stats := tracker.GetUsageCached("never-written")
	if stats.AccessCount != 0 {
		t.Fatalf("AccessCount = %d, want 0", stats.AccessCount)
	}
}
