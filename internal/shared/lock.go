package shared

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// InstanceLock guards the ledger and backup directory against a second concurrent process.
type InstanceLock struct {
	lock *flock.Flock
}

// AcquireLock takes a non-blocking exclusive lock at path.
//
// Returns [ErrLocked] when another process already holds it.
func AcquireLock(path string) (*InstanceLock, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create lock directory: %w", err)
		}
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &InstanceLock{lock: lock}, nil
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.lock.Path()
}

// Release unlocks the file. Safe to call more than once.
func (l *InstanceLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
