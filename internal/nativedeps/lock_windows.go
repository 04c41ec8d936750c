//go:build windows

package nativedeps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// RunLock holds an exclusive LockFileEx lock on the work directory's lock
// file. Windows releases it when the handle closes, including on crash.
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
	ol := new(windows.Overlapped)
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	if err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 1, 0, ol); err != nil {
		f.Close()
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return nil, fmt.Errorf("%w: %s", errRunLocked, path)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &RunLock{file: f}, nil
}

// Release unlocks and closes the lock file. Calling it twice is a no-op.
func (l *RunLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, new(windows.Overlapped))
	_ = l.file.Close()
	l.file = nil
}
