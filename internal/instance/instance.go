// Package instance enforces single-instance execution via an advisory
// file lock.
package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning indicates another process holds the instance lock.
var ErrAlreadyRunning = errors.New("another podscribe instance is already running")

// Guard holds the instance lock for the lifetime of the process.
type Guard struct {
	path string
	lock *flock.Flock
}

// Acquire takes the instance lock at path without blocking. It returns
// ErrAlreadyRunning when another process already holds the lock.
func Acquire(path string) (*Guard, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("lock file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock file %s)", ErrAlreadyRunning, path)
	}
	return &Guard{path: path, lock: lock}, nil
}

// Path returns the lock file location.
func (g *Guard) Path() string {
	return g.path
}

// Release drops the lock. Safe to call on a nil guard.
func (g *Guard) Release() error {
	if g == nil || g.lock == nil {
		return nil
	}
	if err := g.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", g.path, err)
	}
	return nil
}
