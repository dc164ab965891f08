// Package lockfile implements the single-writer guarantee described in
// section 4.1 of the design specification: a non-blocking advisory exclusive
// file lock used to ensure at most one monitor-mode Orchestrator runs at a
// time on a given host.
package lockfile

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrHeld is returned by Acquire when another process already holds the
// lock. Callers in monitor mode treat this as a clean exit(0): the external
// scheduler will retry on its own cadence.
var ErrHeld = fmt.Errorf("lock is held by another process")

// Lock represents an acquired advisory file lock. The zero value is not
// valid; obtain one via Acquire.
type Lock struct {
	file *os.File
}

// Acquire opens the lock file read-write, creating and truncating it only
// if it does not already exist (so re-entry after a clean release preserves
// nothing, but a stale diagnostic line from a prior crash is left in place
// until the next successful acquire overwrites it). It then attempts a
// non-blocking exclusive flock on the descriptor.
//
// On success, a short diagnostic line (acquisition time and PID) is written
// to the file. On contention, Acquire returns ErrHeld; the OS releases the
// lock automatically if the holding process crashes, so no stale-lock
// cleanup is required here.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
		return nil, fmt.Errorf("failed to truncate lock file %s: %w", path, err)
	}

	diagnostic := fmt.Sprintf("acquired %s pid=%d\n", time.Now().UTC().Format(time.RFC3339), os.Getpid())
	if _, err := f.WriteAt([]byte(diagnostic), 0); err != nil {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
		return nil, fmt.Errorf("failed to write lock diagnostic to %s: %w", path, err)
	}

	return &Lock{file: f}, nil
}

// Release truncates the lock file, releases the advisory lock, and closes
// the descriptor. It is a no-op if the Lock is nil or already released.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	_ = l.file.Truncate(0)
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("failed to unlock: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close lock file: %w", closeErr)
	}
	return nil
}
