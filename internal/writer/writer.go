// Package writer decouples record submission from log I/O: callers
// enqueue into per-isolation-key bounded queues with sub-millisecond
// latency, and a single background worker drains the queues into the
// journal in locked batches.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashita-ai/kiroku/internal/journal"
	"github.com/ashita-ai/kiroku/internal/model"
)

// Queue and flush defaults.
const (
	DefaultQueueCapacity  = 10_000
	DefaultFlushThreshold = 10
	DefaultFlushInterval  = 100 * time.Millisecond

	// maxWriteAttempts bounds retries of a failed journal append before
	// the batch is requeued and the failure reported.
	maxWriteAttempts = 3
	writeBackoffBase = 50 * time.Millisecond

	// reporterKey is the isolation key the flush worker reports its own
	// failures under.
	reporterKey = "writer"
	opAppend    = "journal.append"
)

// FailureReporter is the channel write failures are escalated through.
// Satisfied by the failure tracker.
type FailureReporter interface {
	RecordFailure(isolationKey, operation string) *model.EscalationSignal
	RecordSuccess(isolationKey, operation string) *model.RecoveredEvent
}

// Config holds queue sizing and flush cadence.
type Config struct {
	QueueCapacity  int           // bounded FIFO size per isolation key
	FlushThreshold int           // queue length that wakes the worker early
	FlushInterval  time.Duration // worker wake interval
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = DefaultFlushThreshold
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	return c
}

// queue is the bounded FIFO for one isolation key. Queues are created
// lazily on first enqueue and live for the process lifetime.
type queue struct {
	mu      sync.Mutex
	records []model.TimingRecord
}

// Writer is the buffered record writer. Construct with New, call Start
// once, and Drain before process exit.
type Writer struct {
	journal  *journal.Journal
	logger   *slog.Logger
	reporter FailureReporter // may be nil
	cfg      Config

	mu     sync.Mutex
	queues map[string]*queue

	// flushMu makes flushes single-flight so batches from one queue can
	// never be reordered by concurrent drains.
	flushMu sync.Mutex

	dropped atomic.Int64 // records dropped after requeue overflow
	flushed atomic.Int64 // records durably written

	started    atomic.Bool
	flushCh    chan struct{}
	done       chan struct{}
	cancelLoop context.CancelFunc
	drainCtx   context.Context // set by Drain so the final flush respects the caller's deadline
}

// New creates a writer draining into j. reporter may be nil.
func New(j *journal.Journal, logger *slog.Logger, reporter FailureReporter, cfg Config) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		journal:  j,
		logger:   logger,
		reporter: reporter,
		cfg:      cfg.withDefaults(),
		queues:   make(map[string]*queue),
		flushCh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start begins the background flush loop and registers metrics.
// Idempotent — a second call logs a warning and returns.
func (w *Writer) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		w.logger.Warn("writer: Start called twice, ignoring")
		return
	}
	w.registerMetrics()
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancelLoop = cancel
	go w.flushLoop(loopCtx)
}

// Enqueue pushes rec onto key's queue without blocking. When the queue
// is at capacity the record is written synchronously through the
// journal instead of being dropped; only an exhausted fallback write
// surfaces an error.
func (w *Writer) Enqueue(ctx context.Context, key string, rec model.TimingRecord) error {
	q := w.queue(key)

	q.mu.Lock()
	if len(q.records) >= w.cfg.QueueCapacity {
		q.mu.Unlock()
		w.logger.Warn("writer: queue full, writing record synchronously",
			"isolation_key", key, "capacity", w.cfg.QueueCapacity)
		return w.fallbackWrite(ctx, rec)
	}
	q.records = append(q.records, rec)
	depth := len(q.records)
	q.mu.Unlock()

	if depth >= w.cfg.FlushThreshold {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush drains every queue synchronously. Used by the facade's
// flush_now operation and by tests; the background worker calls the
// same path.
func (w *Writer) Flush(ctx context.Context) {
	w.flush(ctx)
}

// Drain signals the flush loop to stop, waits for its final flush, and
// reports any records that could not be persisted. Records still
// queued after the drain window are a data-loss event and are logged
// loudly, never silently discarded.
func (w *Writer) Drain(ctx context.Context) {
	w.drainCtx = ctx
	if w.cancelLoop != nil {
		w.cancelLoop()
	}
	select {
	case <-w.done:
	case <-ctx.Done():
		w.logger.Warn("writer: drain timed out waiting for flush loop")
	}

	if n := w.Len(); n > 0 {
		w.logger.Error("writer: records lost at shutdown", "count", n)
	}
}

func (w *Writer) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush with the drain context; ctx itself is done.
			if w.drainCtx != nil {
				w.flush(w.drainCtx)
			} else {
				fallbackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				w.flush(fallbackCtx)
				cancel()
			}
			close(w.done)
			return
		case <-ticker.C:
			w.flush(ctx)
		case <-w.flushCh:
			w.flush(ctx)
		}
	}
}

func (w *Writer) flush(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	for key, q := range w.snapshot() {
		q.mu.Lock()
		if len(q.records) == 0 {
			q.mu.Unlock()
			continue
		}
		batch := q.records
		q.records = nil
		q.mu.Unlock()

		start := time.Now()
		err := w.appendWithRetry(ctx, batch)
		if err != nil {
			w.reportWriteFailure(err, len(batch))
			w.requeue(q, key, batch)
			continue
		}

		w.flushed.Add(int64(len(batch)))
		w.reportWriteSuccess()
		w.logger.Debug("writer: batch flushed",
			"isolation_key", key,
			"batch_size", len(batch),
			"flush_duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// fallbackWrite is the synchronous overflow path: lock, append one
// record, release. Durability wins over back-pressure transparency.
func (w *Writer) fallbackWrite(ctx context.Context, rec model.TimingRecord) error {
	if err := w.appendWithRetry(ctx, []model.TimingRecord{rec}); err != nil {
		w.reportWriteFailure(err, 1)
		return fmt.Errorf("writer: fallback write: %w", err)
	}
	w.flushed.Add(1)
	w.reportWriteSuccess()
	return nil
}

// appendWithRetry retries transient journal failures (lock timeouts,
// disk hiccups) with jittered exponential backoff.
func (w *Writer) appendWithRetry(ctx context.Context, batch []model.TimingRecord) error {
	delay := writeBackoffBase
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = w.journal.Append(ctx, batch)
		if err == nil {
			return nil
		}
		if attempt == maxWriteAttempts {
			break
		}
		w.logger.Warn("writer: journal append failed, retrying",
			"attempt", attempt, "batch_size", len(batch), "error", err)
		jitter := time.Duration(rand.Int63n(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return err
}

// requeue puts a failed batch back at the front of its queue so order
// is preserved for the next attempt. If the combined length exceeds
// capacity the oldest entries are dropped and counted.
func (w *Writer) requeue(q *queue, key string, batch []model.TimingRecord) {
	q.mu.Lock()
	combined := append(batch, q.records...) //nolint:gocritic // batch is owned by this goroutine after the swap
	if overflow := len(combined) - w.cfg.QueueCapacity; overflow > 0 {
		combined = combined[overflow:]
		w.dropped.Add(int64(overflow))
		w.logger.Error("writer: dropping oldest records, queue at capacity after write failure",
			"isolation_key", key, "dropped", overflow)
	}
	q.records = combined
	q.mu.Unlock()
}

func (w *Writer) reportWriteFailure(err error, batchSize int) {
	w.logger.Error("writer: journal write failed after retries",
		"batch_size", batchSize, "error", err)
	if w.reporter == nil {
		return
	}
	if sig := w.reporter.RecordFailure(reporterKey, opAppend); sig != nil {
		w.logger.Error("writer: escalating repeated write failures",
			"operation", sig.Operation, "failures", sig.Failures)
	}
}

func (w *Writer) reportWriteSuccess() {
	if w.reporter == nil {
		return
	}
	if ev := w.reporter.RecordSuccess(reporterKey, opAppend); ev != nil {
		w.logger.Info("writer: journal writes recovered", "prior_failures", ev.PriorCount)
	}
}

func (w *Writer) queue(key string) *queue {
	w.mu.Lock()
	defer w.mu.Unlock()
	q, ok := w.queues[key]
	if !ok {
		q = &queue{}
		w.queues[key] = q
	}
	return q
}

// snapshot copies the queue map so flush iterates without holding the
// registry mutex. Queues themselves are never deleted.
func (w *Writer) snapshot() map[string]*queue {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]*queue, len(w.queues))
	for k, q := range w.queues {
		out[k] = q
	}
	return out
}

// Len returns the total number of records currently queued.
func (w *Writer) Len() int {
	var n int
	for _, q := range w.snapshot() {
		q.mu.Lock()
		n += len(q.records)
		q.mu.Unlock()
	}
	return n
}

// Dropped returns the total records dropped after requeue overflow.
// Non-zero indicates data loss.
func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// Flushed returns the total records durably written.
func (w *Writer) Flushed() int64 {
	return w.flushed.Load()
}
