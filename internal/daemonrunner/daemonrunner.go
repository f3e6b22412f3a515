// Package daemonrunner owns memd's daemon lifecycle: the PID file, the
// exclusive daemon.lock, and the liveness checks `status` and `stop` use.
package daemonrunner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentmemory/memd/internal/lockfile"
)

// LockInfo is the JSON metadata written into daemon.lock.
type LockInfo struct {
	PID            int       `json:"pid"`
	Database       string    `json:"database"`
	Version        string    `json:"version"`
	StartedAt      time.Time `json:"started_at"`
	CapabilityTier string    `json:"capability_tier,omitempty"`
}

// Handle is a held daemon lock plus the paths it governs.
type Handle struct {
	lock    *lockfile.Lock
	pidPath string
}

// ErrAlreadyRunning is returned by Acquire when another process holds the
// daemon lock.
var ErrAlreadyRunning = lockfile.ErrLocked

// Acquire takes the exclusive daemon lock under varDir, writes the lock
// metadata and a PID file, and returns a Handle the caller must Release on
// shutdown.
func Acquire(varDir, dbPath, version string) (*Handle, error) {
	lockPath := filepath.Join(varDir, "daemon.lock")
	pidPath := filepath.Join(varDir, "daemon.pid")

	lock, err := lockfile.TryAcquire(lockPath)
	if err != nil {
		return nil, err
	}

	info := LockInfo{
		PID:       os.Getpid(),
		Database:  dbPath,
		Version:   version,
		StartedAt: time.Now().UTC(),
	}
	f := lock.File()
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("daemonrunner: writing lock metadata: %w", err)
	}
	_ = f.Sync()

	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", info.PID)), 0o600); err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("daemonrunner: writing pid file: %w", err)
	}

	return &Handle{lock: lock, pidPath: pidPath}, nil
}

// SetCapabilityTier rewrites the lock file's metadata with tier as its
// CapabilityTier, resetting StartedAt to the current time.
func (h *Handle) SetCapabilityTier(tier string, dbPath, version string) error {
	info := LockInfo{
		PID:            os.Getpid(),
		Database:       dbPath,
		Version:        version,
		StartedAt:      time.Now().UTC(),
		CapabilityTier: tier,
	}
	f := h.lock.File()
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

// Release releases the daemon lock and removes the PID file.
func (h *Handle) Release() error {
	err := h.lock.Release()
	_ = os.Remove(h.pidPath)
	return err
}

// ReadPID reads the PID file under varDir, returning 0 if absent.
func ReadPID(varDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(varDir, "daemon.pid"))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, fmt.Errorf("daemonrunner: malformed pid file: %w", err)
	}
	return pid, nil
}

// ReadLockInfo reads and decodes daemon.lock under varDir without taking
// the lock, for `status` reporting while the daemon may still be running.
func ReadLockInfo(varDir string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(varDir, "daemon.lock"))
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("daemonrunner: malformed lock file: %w", err)
	}
	return &info, nil
}

