package kiroku

import "time"

// Outcome is the lifecycle state of a task execution attempt.
type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Record is the public representation of one row in the record log.
// It is a curated view of the internal timing record — no internal
// package imports, safe for external consumers.
type Record struct {
	Timestamp time.Time
	ContextID string
	TaskID    string
	StartTime *time.Time
	EndTime   *time.Time
	// DurationSeconds is set only on terminal records with both
	// timestamps present.
	DurationSeconds *float64
	Label           string
	Outcome         Outcome
}

// Escalation is the advisory signal that an operation has failed the
// configured number of consecutive times. The host decides how to act
// on it (alert, stop retrying, abort).
type Escalation struct {
	IsolationKey string
	Operation    string
	Failures     int
	OccurredAt   time.Time
}

// Recovered is the observability event emitted when an operation
// succeeds after one or more consecutive failures.
type Recovered struct {
	IsolationKey string
	Operation    string
	PriorCount   int
	OccurredAt   time.Time
}

// Advisory is a warning or enforcement notification delivered by a
// monitor loop. Enforce=true means the task's budget is exhausted; the
// receiver owns aborting the work.
type Advisory struct {
	ContextID string
	Enforce   bool
	Message   string
}

// TaskOptions configures a single monitored task.
type TaskOptions struct {
	// TaskID identifies the execution attempt; generated when empty.
	TaskID string
	// Limit is the wall-clock budget. Zero uses the runtime default.
	Limit time.Duration
	// WarningFraction overrides the runtime default when in (0, 1].
	WarningFraction float64
	// Exempt tasks receive the one-shot warning but are never enforced.
	Exempt bool
}
