package model

import "time"

// EscalationSignal is emitted when an operation's consecutive-failure
// count reaches the configured threshold. It is an advisory value, not
// an error: the host decides whether to alert or abort.
type EscalationSignal struct {
	IsolationKey string    `json:"isolation_key"`
	Operation    string    `json:"operation"`
	Failures     int       `json:"failures"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// RecoveredEvent is emitted when an operation succeeds after one or
// more consecutive failures.
type RecoveredEvent struct {
	IsolationKey string    `json:"isolation_key"`
	Operation    string    `json:"operation"`
	PriorCount   int       `json:"prior_count"`
	OccurredAt   time.Time `json:"occurred_at"`
}
