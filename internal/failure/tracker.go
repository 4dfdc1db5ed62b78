// Package failure tracks consecutive failures of named operations and
// raises a single escalation signal per episode.
//
// Counters are keyed on (isolation key, operation name). The isolation
// key is an explicit caller-chosen identifier (goroutine id, worker
// name, execution context) so unrelated operation sequences never
// cross-talk — there is no hidden thread-local state.
package failure

import (
	"sync"
	"time"

	"github.com/ashita-ai/kiroku/internal/model"
)

// DefaultMaxAllowed is the consecutive-failure threshold when none is
// configured.
const DefaultMaxAllowed = 3

type counterKey struct {
	isolationKey string
	operation    string
}

type counter struct {
	consecutive int
	escalated   bool // one escalation per episode
}

// Tracker counts consecutive failures per (isolation key, operation).
// Safe for concurrent use.
type Tracker struct {
	maxAllowed int

	mu       sync.Mutex
	counters map[counterKey]*counter
}

// NewTracker creates a tracker. maxAllowed <= 0 uses DefaultMaxAllowed.
func NewTracker(maxAllowed int) *Tracker {
	if maxAllowed <= 0 {
		maxAllowed = DefaultMaxAllowed
	}
	return &Tracker{
		maxAllowed: maxAllowed,
		counters:   make(map[counterKey]*counter),
	}
}

// RecordFailure increments the counter for the keyed operation. It
// returns an EscalationSignal exactly when the count reaches the
// threshold for the first time in the current episode; failures past
// the threshold keep counting but stay silent until a success resets
// the episode. The signal is returned to exactly one caller — the one
// whose failure crossed the threshold.
func (t *Tracker) RecordFailure(isolationKey, operation string) *model.EscalationSignal {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := counterKey{isolationKey, operation}
	c, ok := t.counters[key]
	if !ok {
		c = &counter{}
		t.counters[key] = c
	}
	c.consecutive++

	if c.consecutive >= t.maxAllowed && !c.escalated {
		c.escalated = true
		return &model.EscalationSignal{
			IsolationKey: isolationKey,
			Operation:    operation,
			Failures:     c.consecutive,
			OccurredAt:   time.Now().UTC(),
		}
	}
	return nil
}

// RecordSuccess resets the counter for the keyed operation. If the
// prior count was at least one, a RecoveredEvent is returned for
// observability; a success on a clean counter is a no-op (nil) to
// avoid log noise.
func (t *Tracker) RecordSuccess(isolationKey, operation string) *model.RecoveredEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := counterKey{isolationKey, operation}
	c, ok := t.counters[key]
	if !ok || c.consecutive == 0 {
		return nil
	}
	prior := c.consecutive
	c.consecutive = 0
	c.escalated = false
	return &model.RecoveredEvent{
		IsolationKey: isolationKey,
		Operation:    operation,
		PriorCount:   prior,
		OccurredAt:   time.Now().UTC(),
	}
}

// Consecutive returns the current count for the keyed operation.
func (t *Tracker) Consecutive(isolationKey, operation string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.counters[counterKey{isolationKey, operation}]; ok {
		return c.consecutive
	}
	return 0
}
