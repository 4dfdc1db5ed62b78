// Package lock provides cross-process mutual exclusion for the record
// log. The file backend uses OS advisory locks so independent processes
// appending to the same log never interleave partial writes; an
// in-memory backend with the same timeout contract exists for tests.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAcquireTimeout is returned when a lock cannot be acquired within
// the configured retry window. Recoverable: callers may retry or fall
// back to an unbuffered write.
var ErrAcquireTimeout = errors.New("lock: acquire timed out")

const defaultRetryDelay = 25 * time.Millisecond

// Guard represents a held lock. Release is idempotent, so it is safe
// to both defer it and call it early on the happy path.
type Guard struct {
	once    sync.Once
	release func() error
}

func newGuard(release func() error) *Guard {
	return &Guard{release: release}
}

// Release unlocks. Subsequent calls are no-ops.
func (g *Guard) Release() error {
	var err error
	g.once.Do(func() { err = g.release() })
	return err
}

// Locker acquires a shared or exclusive lock on one underlying
// resource. Implementations must be safe for concurrent use.
type Locker interface {
	// Acquire blocks until the lock is held, the retry window expires
	// (ErrAcquireTimeout), or ctx is cancelled. Exclusive locks block
	// readers and writers; shared locks allow concurrent readers.
	Acquire(ctx context.Context, exclusive bool) (*Guard, error)
}
