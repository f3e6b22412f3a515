package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentmemory/memd/internal/storage"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	e, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestPutGetDelete(t *testing.T) {
	e := openTestEngine(t)

	if err := e.Put(storage.CFEvents, []byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	v, found, err := e.Get(storage.CFEvents, []byte("k1"))
	if err != nil || !found || string(v) != "v1" {
		t.Fatalf("Get() = (%q, %v, %v), want (v1, true, nil)", v, found, err)
	}

	if err := e.Delete(storage.CFEvents, []byte("k1")); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, found, _ = e.Get(storage.CFEvents, []byte("k1"))
	if found {
		t.Fatalf("expected key absent after delete")
	}
}

func TestScanPrefix(t *testing.T) {
	e := openTestEngine(t)

	keys := [][]byte{[]byte("a:1"), []byte("a:2"), []byte("b:1")}
	for _, k := range keys {
		if err := e.Put(storage.CFGrips, k, []byte("v")); err != nil {
			t.Fatal(err)
		}
	}

	var seen []string
	err := e.ScanPrefix(storage.CFGrips, []byte("a:"), func(key, value []byte) (bool, error) {
		seen = append(seen, string(key))
		return true, nil
	})
	if err != nil {
		t.Fatalf("ScanPrefix() error = %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("ScanPrefix() visited %d keys, want 2: %v", len(seen), seen)
	}
}

func TestBatchAtomicity(t *testing.T) {
	e := openTestEngine(t)

	err := e.Batch(func(b storage.Batch) error {
		if err := b.Put(storage.CFEvents, []byte("e1"), []byte("event")); err != nil {
			return err
		}
		return b.Put(storage.CFOutbox, []byte("o1"), []byte("outbox"))
	})
	if err != nil {
		t.Fatalf("Batch() error = %v", err)
	}

	if _, found, _ := e.Get(storage.CFEvents, []byte("e1")); !found {
		t.Fatalf("expected event written by batch")
	}
	if _, found, _ := e.Get(storage.CFOutbox, []byte("o1")); !found {
		t.Fatalf("expected outbox entry written by batch")
	}
}

func TestBatchRollbackOnError(t *testing.T) {
	e := openTestEngine(t)

	err := e.Batch(func(b storage.Batch) error {
		if err := b.Put(storage.CFEvents, []byte("e2"), []byte("event")); err != nil {
			return err
		}
		return errFake
	})
	if err == nil {
		t.Fatalf("expected Batch() to return the staged error")
	}

	if _, found, _ := e.Get(storage.CFEvents, []byte("e2")); found {
		t.Fatalf("expected rolled-back write to not be visible")
	}
}

func TestLast(t *testing.T) {
	e := openTestEngine(t)

	_, _, found, err := e.Last(storage.CFOutbox)
	if err != nil || found {
		t.Fatalf("Last() on empty cf = (_, _, %v, %v), want (_, _, false, nil)", found, err)
	}

	for _, k := range []string{"seq:0001", "seq:0002", "seq:0003"} {
		if err := e.Put(storage.CFOutbox, []byte(k), []byte("v")); err != nil {
			t.Fatal(err)
		}
	}

	key, _, found, err := e.Last(storage.CFOutbox)
	if err != nil || !found {
		t.Fatalf("Last() error = %v, found = %v", err, found)
	}
	if string(key) != "seq:0003" {
		t.Errorf("Last() key = %q, want seq:0003", key)
	}
}

func TestCompact(t *testing.T) {
	e := openTestEngine(t)
	if err := e.Put(storage.CFEvents, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := e.Compact(); err != nil {
		t.Fatalf("Compact() error = %v", err)
	}
}
