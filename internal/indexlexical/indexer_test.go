package indexlexical

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentmemory/memd/internal/storage/sqlite"
	"github.com/agentmemory/memd/internal/toc"
	"github.com/agentmemory/memd/internal/types"
)

func newTestIndexer(t *testing.T) (*Indexer, *toc.Store) {
	t.Helper()
	engine, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	tocStore := toc.Open(engine)

	ix, err := Open(filepath.Join(t.TempDir(), "lexical.bleve"), tocStore)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = ix.Close() })
	return ix, tocStore
}

func TestIndexDocumentAndSearch(t *testing.T) {
	ix, tocStore := newTestIndexer(t)

	tocNode, err := tocStore.PutTocNode(types.TocNode{
		ID:      "Day:2024-05-01",
		Level:   types.LevelDay,
		Title:   "Kubernetes rollout investigation",
		Bullets: []types.Bullet{{Text: "Diagnosed pod eviction storm"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := ix.IndexDocument(types.OutboxEntry{Action: types.ActionUpdateToc, DocID: tocNode.ID}); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	if err := ix.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	results, err := ix.Search("rollout", 10, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].DocID != tocNode.ID {
		t.Fatalf("Search() = %+v, want one hit for %s", results, tocNode.ID)
	}
}

func TestSearchRejectsShortQueries(t *testing.T) {
	ix, _ := newTestIndexer(t)
	results, err := ix.Search("ab", 10, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if results != nil {
		t.Fatalf("expected no results for short query, got %v", results)
	}
}

func TestIndexDocumentSkipsPlainEventEntries(t *testing.T) {
	ix, _ := newTestIndexer(t)
	if err := ix.IndexDocument(types.OutboxEntry{Action: types.ActionIndexEvent, EventID: "e1"}); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	if ix.pending.Size() != 0 {
		t.Fatalf("expected nothing staged for a plain event entry")
	}
}

func TestRemoveDocument(t *testing.T) {
	ix, tocStore := newTestIndexer(t)
	grip := types.Grip{ID: "g1", Text: "excerpt about deploy rollback"}
	if err := tocStore.PutGrip(grip); err != nil {
		t.Fatal(err)
	}

	if err := ix.IndexDocument(types.OutboxEntry{Action: types.ActionUpdateToc, DocID: grip.ID}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Commit(); err != nil {
		t.Fatal(err)
	}
	results, err := ix.Search("rollback", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one hit before removal, got %d", len(results))
	}

	if err := ix.RemoveDocument(grip.ID); err != nil {
		t.Fatal(err)
	}
	if err := ix.Commit(); err != nil {
		t.Fatal(err)
	}
	results, err = ix.Search("rollback", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no hits after removal, got %d", len(results))
	}
}
