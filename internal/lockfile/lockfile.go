// Package lockfile implements the advisory lock the engine acquires in
// the mirror's target directory before starting a sync pass, so two
// concurrent invocations against the same directory don't race each
// other's downloads and deletes (§5, §6). The original's do_lock is
// not among the retrieved source files; Acquire's non-blocking,
// fail-immediately-if-held contract follows the same shape as
// kalbasit-ncps's lock.Locker.TryLock (pkg/lock/lock.go) — "acquire now
// or report it's already held", never wait. That package's concrete
// implementations are in-process (sync.Mutex) or Redis-backed; neither
// fits a single-process CLI that needs to exclude a second *process*
// from the same directory, which is why the mechanism here is
// os.OpenFile's O_EXCL create instead, matching §6's "presence of a
// file aborts a second run" contract directly.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const lockFileName = ".drwebmirror.lock"

// Lock represents an acquired advisory lock. Release removes the
// underlying file.
type Lock struct {
	path string
}

// Acquire creates the lock file in dir, failing if one already exists.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("another instance is already running in %s (lock file %s exists)", dir, path)
		}
		return nil, fmt.Errorf("creating lock file %s: %w", path, err)
	}
	_, writeErr := fmt.Fprintf(f, "%d\n", os.Getpid())
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if writeErr != nil {
			return nil, fmt.Errorf("writing lock file %s: %w", path, writeErr)
		}
		return nil, fmt.Errorf("closing lock file %s: %w", path, closeErr)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. Safe to call multiple times.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing lock file %s: %w", l.path, err)
	}
	return nil
}
