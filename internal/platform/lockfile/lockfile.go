// internal/platform/lockfile/lockfile.go
// Package lockfile provides mutual exclusion between pipeline runs of
// the same pipeline identity.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// ErrHeld is returned by TryLock when the lock is already held, whether
// by another process or by this instance.
var ErrHeld = errors.New("lock is held")

// Lock is a file-based lock keyed by pipeline name.
type Lock struct {
	path string

	mu   sync.Mutex
	held bool
}

// New creates a lock rooted in dir for the given pipeline name.
func New(dir, name string) *Lock {
	return &Lock{path: filepath.Join(dir, name+".lock")}
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// TryLock attempts to acquire the lock without blocking. Acquiring an
// already-held lock fails with ErrHeld, including on the holding
// instance itself. Stale locks left by dead processes are broken and
// re-acquired.
func (l *Lock) TryLock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return fmt.Errorf("%w: %s", ErrHeld, l.path)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			l.held = true
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}
		if !l.isStale() {
			return fmt.Errorf("%w: %s", ErrHeld, l.path)
		}
		// Holder is gone; break the lock and retry once.
		if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("failed to break stale lock: %w", rmErr)
		}
	}
	return fmt.Errorf("%w: %s", ErrHeld, l.path)
}

// Unlock releases the lock. Safe to call when not held.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// isStale reports whether the lock file's recorded process no longer
// exists.
func (l *Lock) isStale() bool {
	data, err := os.ReadFile(l.path)
	if err != nil {
		// Racing holder removed it; treat as stale and retry.
		return os.IsNotExist(err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	// Signal 0 probes process existence without delivering a signal.
	return proc.Signal(syscall.Signal(0)) != nil
}
