// Package filelock serialises operations on a named resource through an exclusive
// advisory lock on <lockDir>/<base name>.lock. The lock is visible to every process
// on the host, so concurrent workers touching the same file never interleave.
package filelock

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/skycode/skypanel/config"
	"github.com/skycode/skypanel/internal"
	"github.com/skycode/skypanel/types"
)

const lockSuffix = ".lock"

var errInvalidResource = errors.New("resource name has no usable base name")

type Serializer struct {
	lockDir string
	logger  *zap.SugaredLogger
	metrics *internal.Metrics
}

func New(cfg config.Config) *Serializer {
	return &Serializer{
		lockDir: cfg.LockDir,
		logger:  zap.NewNop().Sugar(),
	}
}

func (s *Serializer) WithLogger(l *zap.SugaredLogger) *Serializer {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *Serializer) WithMetrics(m *internal.Metrics) *Serializer {
	s.metrics = m
	return s
}

// LockPath returns the lock file guarding resourcePath. Only the base name takes
// part, so /a/index.html and /b/index.html share one lock.
func (s *Serializer) LockPath(resourcePath string) (string, error) {
	name := filepath.Base(resourcePath)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", errInvalidResource
	}
	return filepath.Join(s.lockDir, name+lockSuffix), nil
}

// Do runs op while holding the exclusive lock for resourcePath.
func (s *Serializer) Do(resourcePath string, op func() error) error {
	_, err := WithExclusiveLock(s, resourcePath, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// WithExclusiveLock blocks until the lock for resourcePath is held, runs op and
// releases the lock on every exit path, panics included. op's result and error
// are returned unchanged. There is no timeout.
func WithExclusiveLock[T any](s *Serializer, resourcePath string, op func() (T, error)) (T, error) {
	var zero T

	lock, err := s.acquire(resourcePath)
	if err != nil {
		s.metrics.IncLockFailures()
		return zero, err
	}

	heldSince := time.Now()
	defer s.release(lock, heldSince)

	return op()
}

func (s *Serializer) acquire(resourcePath string) (*fileLock, error) {
	lockPath, err := s.LockPath(resourcePath)
	if err != nil {
		return nil, &types.ResourceUnavailableError{Resource: resourcePath, Err: err}
	}

	if err := os.MkdirAll(s.lockDir, 0o755); err != nil {
		return nil, &types.ResourceUnavailableError{Resource: s.lockDir, Err: err}
	}

	lock := newFileLock(lockPath)
	if err := lock.open(); err != nil {
		return nil, &types.ResourceUnavailableError{Resource: lockPath, Err: err}
	}

	start := time.Now()
	if err := lock.Lock(); err != nil {
		_ = lock.Unlock()
		return nil, &types.ResourceUnavailableError{Resource: lockPath, Err: err}
	}

	waited := time.Since(start)
	s.metrics.ObserveLockWait(waited)
	s.logger.Debugw("lock acquired", "lock", lockPath, "waited", waited)

	return lock, nil
}

func (s *Serializer) release(lock *fileLock, heldSince time.Time) {
	path := lock.path
	if err := lock.Unlock(); err != nil {
		s.logger.Warnw("lock release failed", "lock", path, "error", err)
	}

	held := time.Since(heldSince)
	s.metrics.ObserveLockHeld(held)
	s.logger.Debugw("lock released", "lock", path, "held", held)
}
