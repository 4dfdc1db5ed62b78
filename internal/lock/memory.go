package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemLocker is an in-process reader/writer lock honoring the Locker
// timeout contract. It exists for tests that need to simulate lock
// contention without real files, and deliberately polls the same way
// FileLocker does so timing behavior matches.
type MemLocker struct {
	timeout    time.Duration
	retryDelay time.Duration

	mu      sync.Mutex
	readers int
	writer  bool
}

// NewMemLocker creates an in-memory locker with the given acquire
// timeout.
func NewMemLocker(timeout time.Duration) *MemLocker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MemLocker{
		timeout:    timeout,
		retryDelay: time.Millisecond,
	}
}

// Acquire implements Locker.
func (l *MemLocker) Acquire(ctx context.Context, exclusive bool) (*Guard, error) {
	deadline := time.Now().Add(l.timeout)
	for {
		if l.tryAcquire(exclusive) {
			return newGuard(func() error {
				l.release(exclusive)
				return nil
			}), nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock: memory: %w", ErrAcquireTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock: memory: %w", ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *MemLocker) tryAcquire(exclusive bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if exclusive {
		if l.writer || l.readers > 0 {
			return false
		}
		l.writer = true
		return true
	}
	if l.writer {
		return false
	}
	l.readers++
	return true
}

func (l *MemLocker) release(exclusive bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if exclusive {
		l.writer = false
		return
	}
	l.readers--
}
