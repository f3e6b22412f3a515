// Package audit provides an append-only JSONL trail of admin and scheduler
// commands, so every mutation the daemon performs outside the normal
// ingest path is reconstructable after the fact.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentmemory/memd/internal/idgen"
)

// FileName is the JSONL file audit entries are appended to, under a
// project's var/ directory.
const FileName = "audit.log"

// Entry is one audited command invocation.
type Entry struct {
	ID          string            `json:"id"`
	TimestampMs int64             `json:"timestamp_ms"`
	Actor       string            `json:"actor,omitempty"`
	Command     string            `json:"command"`
	Args        map[string]string `json:"args,omitempty"`
	Result      string            `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Log appends entries to a single JSONL file, serialising concurrent
// writers with a mutex (the file itself is opened in append mode so
// partial writes from other processes can't interleave mid-line).
type Log struct {
	mu   sync.Mutex
	path string
}

// Open returns a Log writing to FileName under varDir, creating the
// directory if needed.
func Open(varDir string) (*Log, error) {
	if err := os.MkdirAll(varDir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: creating %s: %w", varDir, err)
	}
	return &Log{path: filepath.Join(varDir, FileName)}, nil
}

// Append writes entry as one JSON line, assigning ID and TimestampMs if
// unset, and returns the assigned ID.
func (l *Log) Append(entry *Entry) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = idgen.New()
	}
	if entry.TimestampMs == 0 {
		entry.TimestampMs = time.Now().UnixMilli()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("audit: marshalling entry: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return "", fmt.Errorf("audit: opening %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return "", fmt.Errorf("audit: writing entry: %w", err)
	}
	return entry.ID, nil
}

// Record is a convenience wrapper for the common "command ran with this
// result or error" shape used by admin/scheduler RPC handlers.
func (l *Log) Record(actor, command string, args map[string]string, result string, cmdErr error) {
	entry := &Entry{Actor: actor, Command: command, Args: args, Result: result}
	if cmdErr != nil {
		entry.Error = cmdErr.Error()
	}
	_, _ = l.Append(entry)
}
