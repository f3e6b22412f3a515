package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentmemory/memd/internal/storage/sqlite"
	"github.com/agentmemory/memd/internal/toc"
	"github.com/agentmemory/memd/internal/types"
)

func newTestTocStore(t *testing.T) *toc.Store {
	t.Helper()
	engine, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return toc.Open(engine)
}

func TestAgenticSearchDescendsToMatchingLeaf(t *testing.T) {
	store := newTestTocStore(t)

	year, err := store.PutTocNode(types.TocNode{ID: "Year:2025", Level: types.LevelYear, Title: "2025", Keywords: []string{"general"}})
	if err != nil {
		t.Fatal(err)
	}
	day, err := store.PutTocNode(types.TocNode{ID: "Day:2025-06-15", Level: types.LevelDay, Title: "kubernetes incident", Keywords: []string{"kubernetes", "outage"}})
	if err != nil {
		t.Fatal(err)
	}
	year.ChildIDs = []string{day.ID}
	if _, err := store.PutTocNode(year); err != nil {
		t.Fatal(err)
	}

	grip := types.Grip{ID: "grip-1", Text: "the kubernetes cluster had an outage", OwningNodeID: day.ID}
	if err := store.PutGrip(grip); err != nil {
		t.Fatal(err)
	}

	searcher := NewAgenticSearcher(store, 3, 4)
	results, err := searcher.Search(context.Background(), "kubernetes outage", nil, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].DocID != "grip-1" {
		t.Fatalf("results = %+v, want grip-1", results)
	}
	if results[0].Score <= 0 {
		t.Fatalf("Score = %v, want > 0", results[0].Score)
	}
}

func TestAgenticSearchEmptyTreeReturnsNoResults(t *testing.T) {
	store := newTestTocStore(t)
	searcher := NewAgenticSearcher(store, 3, 4)
	results, err := searcher.Search(context.Background(), "anything", nil, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %+v, want empty", results)
	}
}

// buildChain wires a Year -> Month -> Day chain three levels deep, with
// the grip living only on the Day leaf, so reaching it requires
// descending the full three levels.
func buildChain(t *testing.T, store *toc.Store) {
	t.Helper()
	day, err := store.PutTocNode(types.TocNode{ID: "Day:2025-06-15", Level: types.LevelDay, Title: "kubernetes incident", Keywords: []string{"kubernetes", "outage"}})
	if err != nil {
		t.Fatal(err)
	}
	month, err := store.PutTocNode(types.TocNode{ID: "Month:2025-06", Level: types.LevelMonth, Title: "june", ChildIDs: []string{day.ID}})
	if err != nil {
		t.Fatal(err)
	}
	year, err := store.PutTocNode(types.TocNode{ID: "Year:2025", Level: types.LevelYear, Title: "2025", ChildIDs: []string{month.ID}})
	if err != nil {
		t.Fatal(err)
	}
	_ = year

	grip := types.Grip{ID: "grip-chain", Text: "the kubernetes cluster had an outage", OwningNodeID: day.ID}
	if err := store.PutGrip(grip); err != nil {
		t.Fatal(err)
	}
}

// TestAgenticSearchMaxDepthOverrideFromContext pins the context-threaded
// max_depth override (retrieval §4.9): a searcher built with a generous
// constructor depth must still stop short of the leaf when the caller's
// Stop.MaxDepth is narrowed via withMaxDepth, and must reach
// it once the override is wide enough.
func TestAgenticSearchMaxDepthOverrideFromContext(t *testing.T) {
	store := newTestTocStore(t)
	buildChain(t, store)

	searcher := NewAgenticSearcher(store, 3, 4)

	shallow := withMaxDepth(context.Background(), 1)
	results, err := searcher.Search(shallow, "kubernetes outage", nil, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %+v, want empty: depth 1 only reaches Month, not the Day leaf holding the grip", results)
	}

	deep := withMaxDepth(context.Background(), 4)
	results, err = searcher.Search(deep, "kubernetes outage", nil, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].DocID != "grip-chain" {
		t.Fatalf("results = %+v, want grip-chain reached at depth 4", results)
	}
}

// TestAgenticSearchRPCBudgetStopsDescent pins the context-threaded
// max_rpc_calls bound: exhausting the budget mid-descent must stop the
// search cleanly (no error), just short of the leaf.
func TestAgenticSearchRPCBudgetStopsDescent(t *testing.T) {
	store := newTestTocStore(t)
	buildChain(t, store)

	searcher := NewAgenticSearcher(store, 3, 4)
	ctx := withCallBudget(context.Background(), newCallBudget(1))
	results, err := searcher.Search(ctx, "kubernetes outage", nil, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %+v, want empty: budget of 1 exhausts before the Day leaf's grips are fetched", results)
	}
}
