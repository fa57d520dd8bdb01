package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the run lock for a ledger.
var ErrLocked = errors.New("another cuebatch run is using this ledger")

// RunLock is an advisory file lock guarding one ledger against concurrent runners.
type RunLock struct {
	path string
	lock *flock.Flock
}

// LockPath returns the lock file location for a ledger.
func LockPath(ledgerPath string) string {
	return ledgerPath + ".lock"
}

// AcquireRunLock takes the run lock without blocking.
func AcquireRunLock(ledgerPath string) (*RunLock, error) {
	path := LockPath(ledgerPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, path)
	}
	return &RunLock{path: path, lock: lock}, nil
}

// Path returns the lock file location.
func (l *RunLock) Path() string { return l.path }

// Release drops the lock. Safe to call on a nil lock.
func (l *RunLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

// Held reports whether some process currently holds the run lock.
func Held(ledgerPath string) (bool, error) {
	if _, err := os.Stat(LockPath(ledgerPath)); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	lock, err := AcquireRunLock(ledgerPath)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			return true, nil
		}
		return false, err
	}
	return false, lock.Release()
}
