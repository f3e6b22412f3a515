package toc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentmemory/memd/internal/storage/sqlite"
	"github.com/agentmemory/memd/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	engine, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return Open(engine)
}

func TestPutTocNodeVersioning(t *testing.T) {
	store := newTestStore(t)
	node := types.TocNode{ID: "Day:2024-05-01", Level: types.LevelDay, Title: "v1"}

	first, err := store.PutTocNode(node)
	if err != nil {
		t.Fatalf("PutTocNode() error = %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("first version = %d, want 1", first.Version)
	}

	node.Title = "v2"
	second, err := store.PutTocNode(node)
	if err != nil {
		t.Fatalf("PutTocNode() error = %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("second version = %d, want 2", second.Version)
	}

	latest, found, err := store.GetTocNode(node.ID)
	if err != nil || !found {
		t.Fatalf("GetTocNode() = (_, %v, %v)", found, err)
	}
	if latest.Version != 2 || latest.Title != "v2" {
		t.Fatalf("GetTocNode() = %+v, want version 2 / title v2", latest)
	}

	old, found, err := store.GetTocNodeVersion(node.ID, 1)
	if err != nil || !found {
		t.Fatalf("GetTocNodeVersion(1) = (_, %v, %v)", found, err)
	}
	if old.Title != "v1" {
		t.Fatalf("GetTocNodeVersion(1).Title = %q, want v1", old.Title)
	}
}

func TestGetTocNodesByLevelAndWindow(t *testing.T) {
	store := newTestStore(t)

	days := []types.TocNode{
		{ID: "Day:2024-05-01", Level: types.LevelDay, StartMs: 1000, EndMs: 2000},
		{ID: "Day:2024-05-02", Level: types.LevelDay, StartMs: 3000, EndMs: 4000},
		{ID: "Day:2024-05-03", Level: types.LevelDay, StartMs: 5000, EndMs: 6000},
	}
	for _, n := range days {
		if _, err := store.PutTocNode(n); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.PutTocNode(types.TocNode{ID: "Week:2024-W18", Level: types.LevelWeek, StartMs: 0, EndMs: 7000}); err != nil {
		t.Fatal(err)
	}

	all, err := store.GetTocNodesByLevel(types.LevelDay, nil)
	if err != nil {
		t.Fatalf("GetTocNodesByLevel() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("GetTocNodesByLevel() returned %d nodes, want 3", len(all))
	}

	windowed, err := store.GetTocNodesByLevel(types.LevelDay, &types.TimeWindow{StartMs: 2500, EndMs: 3500})
	if err != nil {
		t.Fatalf("GetTocNodesByLevel() error = %v", err)
	}
	if len(windowed) != 1 || windowed[0].ID != "Day:2024-05-02" {
		t.Fatalf("GetTocNodesByLevel(window) = %+v, want just Day:2024-05-02", windowed)
	}
}

func TestGetChildNodes(t *testing.T) {
	store := newTestStore(t)

	child1 := types.TocNode{ID: "Day:2024-05-01", Level: types.LevelDay, Title: "child1"}
	child2 := types.TocNode{ID: "Day:2024-05-02", Level: types.LevelDay, Title: "child2"}
	for _, n := range []types.TocNode{child1, child2} {
		if _, err := store.PutTocNode(n); err != nil {
			t.Fatal(err)
		}
	}

	parent := types.TocNode{ID: "Week:2024-W18", Level: types.LevelWeek, ChildIDs: []string{child1.ID, child2.ID}}
	if _, err := store.PutTocNode(parent); err != nil {
		t.Fatal(err)
	}

	children, err := store.GetChildNodes(parent.ID)
	if err != nil {
		t.Fatalf("GetChildNodes() error = %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("GetChildNodes() returned %d nodes, want 2", len(children))
	}
}

func TestGetChildNodesMissingParent(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetChildNodes("Week:does-not-exist"); err == nil {
		t.Fatalf("expected error for missing parent")
	}
}

func TestGripLifecycle(t *testing.T) {
	store := newTestStore(t)

	grip := types.Grip{ID: "g1", Text: "excerpt", OwningNodeID: "Day:2024-05-01"}
	if err := store.PutGrip(grip); err != nil {
		t.Fatalf("PutGrip() error = %v", err)
	}

	got, found, err := store.GetGrip("g1")
	if err != nil || !found {
		t.Fatalf("GetGrip() = (_, %v, %v)", found, err)
	}
	if got.Text != "excerpt" {
		t.Fatalf("GetGrip().Text = %q, want excerpt", got.Text)
	}

	grips, err := store.GetGripsForNode("Day:2024-05-01")
	if err != nil {
		t.Fatalf("GetGripsForNode() error = %v", err)
	}
	if len(grips) != 1 || grips[0].ID != "g1" {
		t.Fatalf("GetGripsForNode() = %+v, want [g1]", grips)
	}

	if err := store.DeleteGrip("g1"); err != nil {
		t.Fatalf("DeleteGrip() error = %v", err)
	}
	if _, found, _ := store.GetGrip("g1"); found {
		t.Fatalf("expected grip deleted")
	}
	grips, err = store.GetGripsForNode("Day:2024-05-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(grips) != 0 {
		t.Fatalf("expected no grips left for node, got %v", grips)
	}
}

func TestGripWithoutOwningNode(t *testing.T) {
	store := newTestStore(t)
	grip := types.Grip{ID: "g2", Text: "unlinked"}
	if err := store.PutGrip(grip); err != nil {
		t.Fatalf("PutGrip() error = %v", err)
	}
	if _, found, err := store.GetGrip("g2"); err != nil || !found {
		t.Fatalf("GetGrip() = (_, %v, %v)", found, err)
	}
}
