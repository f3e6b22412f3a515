package daemonrunner

import (
	"os"
	"testing"
)

func TestAcquireWritesLockAndPID(t *testing.T) {
	dir := t.TempDir()

	h, err := Acquire(dir, "memory.db", "test-version")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer h.Release()

	pid, err := ReadPID(dir)
	if err != nil {
		t.Fatalf("ReadPID() error = %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPID() = %d, want %d", pid, os.Getpid())
	}

	info, err := ReadLockInfo(dir)
	if err != nil {
		t.Fatalf("ReadLockInfo() error = %v", err)
	}
	if info.Database != "memory.db" || info.Version != "test-version" {
		t.Errorf("unexpected lock info: %+v", info)
	}
}

func TestAcquireTwiceFails(t *testing.T) {
	dir := t.TempDir()

	h, err := Acquire(dir, "memory.db", "v1")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer h.Release()

	if _, err := Acquire(dir, "memory.db", "v1"); err == nil {
		t.Fatalf("second Acquire() should fail while daemon lock is held")
	}
}

func TestReadPIDMissing(t *testing.T) {
	dir := t.TempDir()
	pid, err := ReadPID(dir)
	if err != nil {
		t.Fatalf("ReadPID(missing) error = %v", err)
	}
	if pid != 0 {
		t.Errorf("ReadPID(missing) = %d, want 0", pid)
	}
}

func TestIsRunningSelf(t *testing.T) {
	if !IsRunning(os.Getpid()) {
		t.Errorf("IsRunning(self) = false, want true")
	}
}
