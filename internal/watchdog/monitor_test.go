package watchdog

import (
	"context"
	"testing"
	"time"
)

func TestMonitorDeliversWarningThenEnforcement(t *testing.T) {
	w := New(nil)
	w.Start("job", "short work", SessionOptions{
		Limit:           200 * time.Millisecond,
		WarningFraction: 0.5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := w.Monitor(ctx, "job", 20*time.Millisecond)

	var advisories []Advisory
	for a := range ch {
		advisories = append(advisories, a)
	}

	if len(advisories) == 0 {
		t.Fatal("expected at least the enforcement advisory")
	}
	last := advisories[len(advisories)-1]
	if !last.Enforce {
		t.Fatalf("final advisory = %+v, want enforcement", last)
	}
	for _, a := range advisories[:len(advisories)-1] {
		if a.Enforce {
			t.Fatalf("enforcement delivered before the final advisory: %+v", advisories)
		}
	}
}

func TestMonitorExitsWhenSessionStops(t *testing.T) {
	w := New(nil)
	w.Start("job", "quick work", SessionOptions{Limit: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := w.Monitor(ctx, "job", 10*time.Millisecond)
	w.Stop("job")

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected channel close without advisories")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not exit after Stop")
	}
}

func TestMonitorExitsOnContextCancel(t *testing.T) {
	w := New(nil)
	w.Start("job", "work", SessionOptions{Limit: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	ch := w.Monitor(ctx, "job", 10*time.Millisecond)
	cancel()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not exit after context cancellation")
	}
}
