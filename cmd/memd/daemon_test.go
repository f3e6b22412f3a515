package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/agentmemory/memd/internal/config"
	"github.com/agentmemory/memd/internal/daemonrunner"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestDaemon(t *testing.T) *daemonComponents {
	t.Helper()

	projectDir := t.TempDir()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	d, err := buildComponents(context.Background(), cfg, projectDir, "test", testLogger())
	if err != nil {
		t.Fatalf("buildComponents() error = %v", err)
	}
	t.Cleanup(func() { d.close(context.Background()) })
	return d
}

func TestBuildComponentsWiresEveryJob(t *testing.T) {
	d := newTestDaemon(t)

	want := []string{
		"lexical-prune", "vector-prune", "topic-lifecycle",
		"outbox-gc", "usage-flush", "importance-refresh",
	}
	for _, name := range want {
		if _, err := d.registry.StatusOne(name); err != nil {
			t.Errorf("job %q not registered: %v", name, err)
		}
	}
}

func TestBuildComponentsIndexersAreLive(t *testing.T) {
	d := newTestDaemon(t)

	if d.lexical == nil {
		t.Fatal("lexical indexer not built")
	}
	if d.vector == nil {
		t.Fatal("vector indexer not built")
	}
	if _, err := d.lexical.Search("hello", 5, nil); err != nil {
		t.Errorf("lexical.Search() on empty index error = %v", err)
	}
	vec, err := d.vectorEmbedder.Embed("hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if _, err := d.vector.Search(vec, 5); err != nil {
		t.Errorf("vector.Search() on empty index error = %v", err)
	}
}

func TestStartServerAcquiresLockOnce(t *testing.T) {
	d := newTestDaemon(t)

	if err := d.startServer(); err != nil {
		t.Fatalf("startServer() error = %v", err)
	}
	if d.server == nil {
		t.Fatal("startServer() left server nil")
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	second, err := buildComponents(context.Background(), cfg, d.projectDir, "test", testLogger())
	if err != nil {
		t.Fatalf("buildComponents() second error = %v", err)
	}
	defer second.close(context.Background())

	err = second.startServer()
	if err == nil {
		t.Fatal("expected second startServer() to fail while the first holds the lock")
	}
	if !errors.Is(err, daemonrunner.ErrAlreadyRunning) {
		t.Errorf("startServer() error = %v, want wrapping ErrAlreadyRunning", err)
	}
}
