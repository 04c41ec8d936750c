//go:build !windows

package nativedeps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// RunLock holds an exclusive flock on the work directory's lock file. The
// kernel drops it when the process exits, so a crashed run never wedges the
// next one.
type RunLock struct {
	file *os.File
}

// AcquireRunLock takes the lock without blocking; a concurrent run in the
// same work directory gets errRunLocked.
func AcquireRunLock(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", errRunLocked, path)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &RunLock{file: f}, nil
}

// Release unlocks and closes the lock file. Calling it twice is a no-op.
func (l *RunLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}
