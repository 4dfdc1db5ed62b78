// Package watchdog enforces wall-clock budgets on long-running tasks.
//
// Enforcement is cooperative: the watchdog never kills work. Callers
// (or the Monitor helper goroutine) poll Check and are responsible for
// aborting the protected task when enforcement is signalled. Elapsed
// time is measured against the monotonic clock so wall-clock
// adjustments mid-task cannot skew a budget.
package watchdog

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Session defaults.
const (
	DefaultLimit           = time.Hour
	DefaultWarningFraction = 0.8
)

// State is the lifecycle state of a timeout session.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateWarned   State = "warned"
	StateEnforced State = "enforced"
	StateStopped  State = "stopped"
)

// SessionOptions configures one monitored task.
type SessionOptions struct {
	Limit           time.Duration // wall-clock budget; DefaultLimit if <= 0
	WarningFraction float64       // fraction of the budget that triggers the one-shot warning; DefaultWarningFraction if out of (0,1]
	Exempt          bool          // exempt sessions warn but never enforce
}

type session struct {
	contextID string
	label     string
	limit     time.Duration
	warnFrac  float64
	exempt    bool
	startedAt time.Time // monotonic reading
	warned    bool
	state     State
}

// Watchdog tracks at most one running session per context id.
// Safe for concurrent use; Check never blocks on I/O.
type Watchdog struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	now func() time.Time // swappable for tests
}

// New creates a watchdog.
func New(logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		logger:   logger,
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Start begins (or restarts) monitoring for contextID. Starting while
// a session is already running replaces it; last start wins.
func (w *Watchdog) Start(contextID, label string, opts SessionOptions) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.WarningFraction <= 0 || opts.WarningFraction > 1 {
		opts.WarningFraction = DefaultWarningFraction
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.sessions[contextID]; ok && prev.state != StateStopped {
		w.logger.Warn("watchdog: restarting context with active session",
			"context_id", contextID, "previous_label", prev.label)
	}
	w.sessions[contextID] = &session{
		contextID: contextID,
		label:     label,
		limit:     opts.Limit,
		warnFrac:  opts.WarningFraction,
		exempt:    opts.Exempt,
		startedAt: w.now(),
		state:     StateRunning,
	}
}

// Check reports whether the session for contextID has exceeded its
// budget. The boolean is advisory — the caller must abort the work
// itself. The message is non-empty for the one-shot warning and for
// every check at or beyond the budget on a non-exempt session.
// Unknown or stopped contexts return (false, "").
func (w *Watchdog) Check(contextID string) (bool, string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.sessions[contextID]
	if !ok || s.state == StateStopped {
		return false, ""
	}

	elapsed := w.now().Sub(s.startedAt)

	if elapsed >= s.limit && !s.exempt {
		s.warned = true // warning is subsumed by enforcement
		s.state = StateEnforced
		return true, fmt.Sprintf("task %q exceeded its %s budget (elapsed %s)",
			s.label, s.limit, elapsed.Round(time.Millisecond))
	}

	if !s.warned && elapsed >= time.Duration(float64(s.limit)*s.warnFrac) {
		s.warned = true
		if s.state == StateRunning {
			s.state = StateWarned
		}
		return false, fmt.Sprintf("task %q has used %.0f%% of its %s budget",
			s.label, 100*elapsed.Seconds()/s.limit.Seconds(), s.limit)
	}

	return false, ""
}

// Stop ends monitoring for contextID. Idempotent: stopping a stopped
// or unknown context is a no-op.
func (w *Watchdog) Stop(contextID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.sessions[contextID]; ok {
		s.state = StateStopped
	}
}

// Status returns the current state for contextID, or StateIdle when no
// session exists.
func (w *Watchdog) Status(contextID string) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.sessions[contextID]; ok {
		return s.state
	}
	return StateIdle
}

// Elapsed returns monotonic time since the session started, or zero
// for unknown contexts.
func (w *Watchdog) Elapsed(contextID string) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.sessions[contextID]; ok {
		return w.now().Sub(s.startedAt)
	}
	return 0
}
