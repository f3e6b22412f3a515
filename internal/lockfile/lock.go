// Package lockfile wraps the platform-specific advisory-lock primitive
// (flock on unix, LockFileEx on windows) behind a single non-blocking API.
package lockfile

import "os"

// ErrLocked is returned when a lock cannot be acquired because another
// process already holds it.
var ErrLocked = errFileLocked

// IsLocked reports whether err indicates the lock is held elsewhere.
func IsLocked(err error) bool {
	return err == errFileLocked
}

// Lock is a held advisory lock on a single file.
type Lock struct {
	f *os.File
}

// TryAcquire opens (creating if needed) and non-blockingly locks path.
// On contention it returns ErrLocked and closes the file it opened.
func TryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := flockExclusiveNonBlocking(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Lock{f: f}, nil
}

// File exposes the underlying file so callers can truncate/write metadata
// into it while holding the lock.
func (l *Lock) File() *os.File { return l.f }

// Release unlocks and closes the file.
func (l *Lock) Release() error {
	if l.f == nil {
		return nil
	}
	_ = flockUnlock(l.f)
	err := l.f.Close()
	l.f = nil
	return err
}
