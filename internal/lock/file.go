package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// FileLocker guards a file with OS advisory locks (flock on POSIX,
// LockFileEx ranges on Windows — the flock package abstracts both).
// The lock is taken on a sibling guard file rather than the log itself
// so readers and writers agree on the lock target regardless of how
// they open the log.
type FileLocker struct {
	path       string
	timeout    time.Duration
	retryDelay time.Duration
}

// NewFileLocker creates a locker for the guard file at path. timeout
// bounds each Acquire call; zero or negative falls back to 5s.
func NewFileLocker(path string, timeout time.Duration) *FileLocker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FileLocker{
		path:       path,
		timeout:    timeout,
		retryDelay: defaultRetryDelay,
	}
}

// Acquire polls the OS lock until held or the retry window expires.
// A fresh flock handle is created per call: guards from concurrent
// Acquire calls must not share file-descriptor state.
func (l *FileLocker) Acquire(ctx context.Context, exclusive bool) (*Guard, error) {
	fl := flock.New(l.path)

	acquireCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = fl.TryLockContext(acquireCtx, l.retryDelay)
	} else {
		ok, err = fl.TryRLockContext(acquireCtx, l.retryDelay)
	}
	if err != nil {
		// Distinguish our retry window expiring from the caller's own
		// context being cancelled.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("lock: %s: %w", l.path, ErrAcquireTimeout)
		}
		return nil, fmt.Errorf("lock: %s: %w", l.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock: %s: %w", l.path, ErrAcquireTimeout)
	}

	return newGuard(fl.Unlock), nil
}
