//go:build windows

package filelock

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

type fileLock struct {
	path string
	f    *os.File
}

func newFileLock(lockPath string) *fileLock {
	return &fileLock{path: lockPath}
}

func (l *fileLock) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	l.f = f
	return nil
}

// Lock blocks until the exclusive LockFileEx lock on the first byte is held.
func (l *fileLock) Lock() error {
	err := windows.LockFileEx(
		windows.Handle(l.f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK,
		0,
		1, 0,
		&windows.Overlapped{},
	)
	if err != nil {
		return fmt.Errorf("LockFileEx: %w", err)
	}
	return nil
}

func (l *fileLock) Unlock() error {
	if l.f == nil {
		return nil
	}

	unlockErr := windows.UnlockFileEx(
		windows.Handle(l.f.Fd()),
		0,
		1, 0,
		&windows.Overlapped{},
	)

	// Always close even if unlock fails.
	errClose := l.f.Close()
	l.f = nil

	if unlockErr != nil {
		return fmt.Errorf("UnlockFileEx: %w", unlockErr)
	}
	return errClose
}
