package model

import (
	"testing"
	"time"
)

func TestNewStartedRecordGeneratesTaskID(t *testing.T) {
	rec := NewStartedRecord("build", "", "compile target")
	if rec.TaskID == "" {
		t.Fatal("expected a generated task id")
	}
	if rec.Outcome != OutcomeStarted {
		t.Fatalf("outcome = %q, want %q", rec.Outcome, OutcomeStarted)
	}
	if rec.StartTime == nil {
		t.Fatal("expected StartTime to be set")
	}
	if rec.EndTime != nil {
		t.Fatal("EndTime must be nil while in flight")
	}
}

func TestNewStartedRecordKeepsCallerTaskID(t *testing.T) {
	rec := NewStartedRecord("build", "attempt-7", "compile target")
	if rec.TaskID != "attempt-7" {
		t.Fatalf("TaskID = %q, want attempt-7", rec.TaskID)
	}
}

func TestTerminateDerivesDuration(t *testing.T) {
	rec := NewStartedRecord("build", "", "compile")
	end := rec.StartTime.Add(1500 * time.Millisecond)

	term := rec.Terminate(OutcomeCompleted, end)

	d, ok := term.DurationSeconds()
	if !ok {
		t.Fatal("expected duration to be defined on terminal record")
	}
	if d != 1.5 {
		t.Fatalf("duration = %v, want 1.5", d)
	}

	// The original record must be untouched.
	if rec.EndTime != nil || rec.Outcome != OutcomeStarted {
		t.Fatal("Terminate mutated the source record")
	}
}

func TestDurationUndefinedForStartedRecord(t *testing.T) {
	rec := NewStartedRecord("build", "", "compile")
	if _, ok := rec.DurationSeconds(); ok {
		t.Fatal("duration must be undefined while in flight")
	}
}

func TestOutcomeTerminal(t *testing.T) {
	cases := map[Outcome]bool{
		OutcomeStarted:   false,
		OutcomeCompleted: true,
		OutcomeFailed:    true,
		OutcomeTimedOut:  true,
		Outcome("bogus"): false,
	}
	for o, want := range cases {
		if got := o.Terminal(); got != want {
			t.Errorf("Terminal(%q) = %v, want %v", o, got, want)
		}
	}
}
