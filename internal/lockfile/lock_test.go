package lockfile

import (
	"path/filepath"
	"testing"
)

func TestTryAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.lock")

	lock, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}

	_, err = TryAcquire(path)
	if err == nil {
		t.Fatalf("second TryAcquire() should fail while first is held")
	}
	if !IsLocked(err) {
		t.Errorf("expected IsLocked(err) true, got err=%v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	lock2, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("TryAcquire() after release error = %v", err)
	}
	_ = lock2.Release()
}
