// Package model defines the core domain types for the timing runtime.
//
// Records are append-only: a task produces a started record and later
// exactly one terminal record. Terminal records are never rewritten.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Outcome represents the lifecycle state of a task execution attempt.
type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Terminal reports whether o is a final outcome.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeCompleted, OutcomeFailed, OutcomeTimedOut:
		return true
	}
	return false
}

// TimingRecord is one logical row in the record log.
type TimingRecord struct {
	Timestamp time.Time  `json:"timestamp"`
	ContextID string     `json:"context_id"`
	TaskID    string     `json:"task_id"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Label     string     `json:"label"`
	Outcome   Outcome    `json:"outcome"`
}

// NewStartedRecord creates the initial record for a task attempt.
// TaskID is generated when taskID is empty.
func NewStartedRecord(contextID, taskID, label string) TimingRecord {
	now := time.Now().UTC()
	if taskID == "" {
		taskID = uuid.NewString()
	}
	start := now
	return TimingRecord{
		Timestamp: now,
		ContextID: contextID,
		TaskID:    taskID,
		StartTime: &start,
		Label:     label,
		Outcome:   OutcomeStarted,
	}
}

// Terminate derives the terminal record for r with the given outcome.
// The original record is not modified.
func (r TimingRecord) Terminate(outcome Outcome, at time.Time) TimingRecord {
	at = at.UTC()
	term := r
	term.Timestamp = at
	term.EndTime = &at
	term.Outcome = outcome
	return term
}

// DurationSeconds returns the elapsed seconds between StartTime and
// EndTime. Defined only for terminal records with both timestamps set;
// otherwise returns 0 and false.
func (r TimingRecord) DurationSeconds() (float64, bool) {
	if !r.Outcome.Terminal() || r.StartTime == nil || r.EndTime == nil {
		return 0, false
	}
	return r.EndTime.Sub(*r.StartTime).Seconds(), true
}
