package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendCreatesFileAndWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	id1, err := log.Append(&Entry{Command: "admin.compact"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if id1 == "" {
		t.Fatalf("expected non-empty id")
	}

	log.Record("operator", "scheduler.pause", map[string]string{"job": "lexical-prune"}, "paused", nil)

	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var second Entry
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal second entry: %v", err)
	}
	if second.Command != "scheduler.pause" || second.Result != "paused" {
		t.Errorf("unexpected second entry: %+v", second)
	}
}
