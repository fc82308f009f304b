//go:build !windows

package filelock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
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

// Lock blocks until the exclusive flock is held. flock locks belong to the open
// file description, so two handles in the same process contend like two processes.
func (l *fileLock) Lock() error {
	for {
		err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX)
		if err == nil {
			return nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return fmt.Errorf("flock: %w", err)
	}
}

func (l *fileLock) Unlock() error {
	if l.f == nil {
		return nil
	}
	// Best-effort unlock + close; closing the descriptor drops the lock anyway.
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
