package failure

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscalationFiresExactlyOnceAtThreshold(t *testing.T) {
	tr := NewTracker(3)

	assert.Nil(t, tr.RecordFailure("build", "compile")) // F1
	assert.Nil(t, tr.RecordFailure("build", "compile")) // F2

	sig := tr.RecordFailure("build", "compile") // F3 crosses the threshold
	require.NotNil(t, sig)
	assert.Equal(t, "build", sig.IsolationKey)
	assert.Equal(t, "compile", sig.Operation)
	assert.Equal(t, 3, sig.Failures)

	// Failures past the threshold keep counting but stay silent.
	assert.Nil(t, tr.RecordFailure("build", "compile"))
	assert.Nil(t, tr.RecordFailure("build", "compile"))
	assert.Equal(t, 5, tr.Consecutive("build", "compile"))
}

func TestSuccessResetsAndEmitsRecovered(t *testing.T) {
	tr := NewTracker(3)

	tr.RecordFailure("build", "compile")
	tr.RecordFailure("build", "compile")
	tr.RecordFailure("build", "compile")

	ev := tr.RecordSuccess("build", "compile")
	require.NotNil(t, ev)
	assert.Equal(t, 3, ev.PriorCount)
	assert.Equal(t, 0, tr.Consecutive("build", "compile"))

	// A single failure after recovery does not escalate again.
	assert.Nil(t, tr.RecordFailure("build", "compile"))

	// A new full run of failures opens a fresh episode.
	tr.RecordFailure("build", "compile")
	sig := tr.RecordFailure("build", "compile")
	require.NotNil(t, sig)
}

func TestSuccessOnCleanCounterIsNoop(t *testing.T) {
	tr := NewTracker(3)
	assert.Nil(t, tr.RecordSuccess("build", "compile"))
	assert.Nil(t, tr.RecordSuccess("build", "unknown-op"))
}

func TestCountersIsolatedPerKey(t *testing.T) {
	tr := NewTracker(2)

	tr.RecordFailure("worker-1", "fetch")
	tr.RecordFailure("worker-2", "fetch")

	// Neither key has reached the threshold on its own.
	assert.Equal(t, 1, tr.Consecutive("worker-1", "fetch"))
	assert.Equal(t, 1, tr.Consecutive("worker-2", "fetch"))

	sig := tr.RecordFailure("worker-1", "fetch")
	require.NotNil(t, sig)
	assert.Equal(t, "worker-1", sig.IsolationKey)

	// worker-2 is unaffected by worker-1's escalation.
	assert.Equal(t, 1, tr.Consecutive("worker-2", "fetch"))
}

func TestOperationsIsolatedWithinKey(t *testing.T) {
	tr := NewTracker(2)
	tr.RecordFailure("build", "compile")
	tr.RecordFailure("build", "link")
	assert.Equal(t, 1, tr.Consecutive("build", "compile"))
	assert.Equal(t, 1, tr.Consecutive("build", "link"))
}

func TestEscalationDeliveredToExactlyOneCaller(t *testing.T) {
	tr := NewTracker(50)

	var wg sync.WaitGroup
	signals := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sig := tr.RecordFailure("shared", "op"); sig != nil {
				signals <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(signals)

	var count int
	for range signals {
		count++
	}
	assert.Equal(t, 1, count, "exactly one concurrent caller must receive the signal")
	assert.Equal(t, 100, tr.Consecutive("shared", "op"))
}

func TestZeroThresholdUsesDefault(t *testing.T) {
	tr := NewTracker(0)
	tr.RecordFailure("k", "op")
	tr.RecordFailure("k", "op")
	sig := tr.RecordFailure("k", "op")
	require.NotNil(t, sig)
	assert.Equal(t, DefaultMaxAllowed, sig.Failures)
}
