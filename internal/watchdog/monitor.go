package watchdog

import (
	"context"
	"time"
)

// Advisory is a warning or enforcement notification from a monitor
// loop. Enforce=true means the budget is exhausted; the receiver owns
// aborting the work.
type Advisory struct {
	ContextID string
	Enforce   bool
	Message   string
}

// Monitor polls Check for contextID on the given interval and delivers
// advisories on the returned channel. The loop exits and closes the
// channel after enforcement is delivered, when the session stops, or
// when ctx is cancelled. It runs alongside the protected work and
// never interrupts it.
func (w *Watchdog) Monitor(ctx context.Context, contextID string, interval time.Duration) <-chan Advisory {
	if interval <= 0 {
		interval = time.Second
	}
	ch := make(chan Advisory, 1)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if w.Status(contextID) == StateStopped {
				return
			}
			enforce, msg := w.Check(contextID)
			if msg == "" {
				continue
			}
			select {
			case ch <- Advisory{ContextID: contextID, Enforce: enforce, Message: msg}:
			case <-ctx.Done():
				return
			}
			if enforce {
				return
			}
		}
	}()

	return ch
}
