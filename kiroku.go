// Package kiroku is the public API for the task timing and reliability
// runtime: wall-clock budgets on long-running tasks, buffered durable
// persistence of timing records, and consecutive-failure escalation.
//
// Host processes embed it directly:
//
//	rt, err := kiroku.New(
//	    kiroku.WithLogPath("/var/log/app/timings.log"),
//	    kiroku.WithLogger(logger),
//	)
//	if err != nil { ... }
//	defer rt.Shutdown(ctx)
//
//	taskID, _ := rt.StartTask(ctx, "build", "compile target", kiroku.TaskOptions{})
//	// ... do the work, polling rt.CheckTimeout("build") ...
//	_ = rt.StopTask(ctx, "build", kiroku.OutcomeCompleted)
//
// The import graph enforces a strict no-cycle rule: kiroku (root)
// imports internal/*, but internal/* never imports kiroku (root).
// Public types (Record, Escalation, ...) are standalone structs;
// conversion helpers live here because this is the only file that sees
// both sides of the boundary.
package kiroku

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/kiroku/internal/config"
	"github.com/ashita-ai/kiroku/internal/failure"
	"github.com/ashita-ai/kiroku/internal/journal"
	"github.com/ashita-ai/kiroku/internal/lock"
	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/telemetry"
	"github.com/ashita-ai/kiroku/internal/watchdog"
	"github.com/ashita-ai/kiroku/internal/writer"
)

// Runtime is the timing runtime lifecycle. Construct with New, release
// with Shutdown. Runtime has no public fields — use New options to
// configure it. All methods are safe for concurrent use.
type Runtime struct {
	cfg          config.Config
	logger       *slog.Logger
	journal      *journal.Journal
	writer       *writer.Writer
	watchdog     *watchdog.Watchdog
	tracker      *failure.Tracker
	otelShutdown telemetry.Shutdown

	mu     sync.Mutex
	active map[string]model.TimingRecord // started record per context id

	shutdownOnce sync.Once
	shutdownErr  error
}

// New initialises the runtime: loads configuration, opens telemetry,
// and starts the single background flush worker.
func New(opts ...Option) (*Runtime, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logPath != "" {
		cfg.LogPath = o.logPath
	}
	if o.flushInterval > 0 {
		cfg.FlushInterval = o.flushInterval
	}
	if o.flushThreshold > 0 {
		cfg.FlushThreshold = o.flushThreshold
	}
	if o.queueCapacity > 0 {
		cfg.QueueCapacity = o.queueCapacity
	}
	if o.defaultLimit > 0 {
		cfg.LimitSeconds = o.defaultLimit.Seconds()
	}
	if o.warningFraction > 0 {
		cfg.WarningFraction = o.warningFraction
	}
	if o.maxConsecutiveFail > 0 {
		cfg.MaxConsecutiveFailures = o.maxConsecutiveFail
	}
	if o.lockTimeout > 0 {
		cfg.LockAcquireTimeout = o.lockTimeout
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: parseLevel(cfg.LogLevel),
		}))
	}

	version := o.version
	if version == "" {
		version = "dev"
	}
	logger.Info("kiroku starting", "version", version, "log_path", cfg.LogPath)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	locker := lock.NewFileLocker(cfg.LogPath+".lock", cfg.LockAcquireTimeout)
	j := journal.New(cfg.LogPath, locker, logger)
	tracker := failure.NewTracker(cfg.MaxConsecutiveFailures)
	w := writer.New(j, logger, tracker, writer.Config{
		QueueCapacity:  cfg.QueueCapacity,
		FlushThreshold: cfg.FlushThreshold,
		FlushInterval:  cfg.FlushInterval,
	})
	w.Start(context.Background())

	return &Runtime{
		cfg:          cfg,
		logger:       logger,
		journal:      j,
		writer:       w,
		watchdog:     watchdog.New(logger),
		tracker:      tracker,
		otelShutdown: otelShutdown,
		active:       make(map[string]model.TimingRecord),
	}, nil
}

// StartTask begins a monitored task for contextID: a started record is
// enqueued and a timeout session opens. Starting a context that is
// already running replaces its session (last start wins) and the
// previous in-flight record is abandoned with a warning. Returns the
// task id of this attempt.
func (r *Runtime) StartTask(ctx context.Context, contextID, label string, opts TaskOptions) (string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = time.Duration(r.cfg.LimitSeconds * float64(time.Second))
	}
	frac := opts.WarningFraction
	if frac <= 0 || frac > 1 {
		frac = r.cfg.WarningFraction
	}

	rec := model.NewStartedRecord(contextID, opts.TaskID, label)

	r.mu.Lock()
	if prev, ok := r.active[contextID]; ok {
		r.logger.Warn("kiroku: starting task over an unfinished one",
			"context_id", contextID, "abandoned_task_id", prev.TaskID)
	}
	r.active[contextID] = rec
	r.mu.Unlock()

	r.watchdog.Start(contextID, label, watchdog.SessionOptions{
		Limit:           limit,
		WarningFraction: frac,
		Exempt:          opts.Exempt,
	})

	if err := r.writer.Enqueue(ctx, contextID, rec); err != nil {
		return rec.TaskID, fmt.Errorf("kiroku: enqueue start record: %w", err)
	}
	return rec.TaskID, nil
}

// CheckTimeout polls the budget for contextID. The boolean is advisory:
// true means the budget is exhausted and the caller should abort the
// work itself — the runtime never kills anything. The message carries
// the one-shot warning or the enforcement reason.
func (r *Runtime) CheckTimeout(contextID string) (bool, string) {
	return r.watchdog.Check(contextID)
}

// StopTask ends the task for contextID with the given outcome and
// enqueues the terminal record. An empty or non-terminal outcome is
// recorded as completed. Stopping an unknown or already-stopped
// context is a no-op.
func (r *Runtime) StopTask(ctx context.Context, contextID string, outcome Outcome) error {
	r.watchdog.Stop(contextID)

	r.mu.Lock()
	rec, ok := r.active[contextID]
	if ok {
		delete(r.active, contextID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	out := model.Outcome(outcome)
	if !out.Terminal() {
		out = model.OutcomeCompleted
	}
	term := rec.Terminate(out, time.Now())
	if err := r.writer.Enqueue(ctx, contextID, term); err != nil {
		return fmt.Errorf("kiroku: enqueue terminal record: %w", err)
	}
	return nil
}

// MonitorTask runs a lightweight polling loop for contextID alongside
// the protected work, delivering warning and enforcement advisories on
// the returned channel. The channel closes after enforcement, when the
// task stops, or when ctx is cancelled.
func (r *Runtime) MonitorTask(ctx context.Context, contextID string, interval time.Duration) <-chan Advisory {
	in := r.watchdog.Monitor(ctx, contextID, interval)
	out := make(chan Advisory, 1)
	go func() {
		defer close(out)
		for a := range in {
			select {
			case out <- Advisory{ContextID: a.ContextID, Enforce: a.Enforce, Message: a.Message}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// EnqueueRecord buffers an externally built record under isolationKey.
// Records from one isolation key reach the log in enqueue order.
func (r *Runtime) EnqueueRecord(ctx context.Context, isolationKey string, rec Record) error {
	if err := r.writer.Enqueue(ctx, isolationKey, toInternalRecord(rec)); err != nil {
		return fmt.Errorf("kiroku: enqueue record: %w", err)
	}
	return nil
}

// RecordFailure counts one failure of operation under isolationKey.
// The returned Escalation is non-nil exactly when this failure crossed
// the configured threshold.
func (r *Runtime) RecordFailure(isolationKey, operation string) *Escalation {
	sig := r.tracker.RecordFailure(isolationKey, operation)
	if sig == nil {
		return nil
	}
	r.logger.Warn("kiroku: operation escalated",
		"isolation_key", sig.IsolationKey, "operation", sig.Operation, "failures", sig.Failures)
	return &Escalation{
		IsolationKey: sig.IsolationKey,
		Operation:    sig.Operation,
		Failures:     sig.Failures,
		OccurredAt:   sig.OccurredAt,
	}
}

// RecordSuccess resets the failure counter for operation under
// isolationKey. The returned Recovered event is non-nil when the
// success ends a failure streak.
func (r *Runtime) RecordSuccess(isolationKey, operation string) *Recovered {
	ev := r.tracker.RecordSuccess(isolationKey, operation)
	if ev == nil {
		return nil
	}
	r.logger.Info("kiroku: operation recovered",
		"isolation_key", ev.IsolationKey, "operation", ev.Operation, "prior_failures", ev.PriorCount)
	return &Recovered{
		IsolationKey: ev.IsolationKey,
		Operation:    ev.Operation,
		PriorCount:   ev.PriorCount,
		OccurredAt:   ev.OccurredAt,
	}
}

// FlushNow forces an out-of-band drain of every buffered queue.
func (r *Runtime) FlushNow(ctx context.Context) {
	r.writer.Flush(ctx)
}

// ReadLog returns every well-formed record currently in the log, for
// reporting collaborators that prefer not to parse the file themselves.
func (r *Runtime) ReadLog(ctx context.Context) ([]Record, error) {
	recs, err := r.journal.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("kiroku: read log: %w", err)
	}
	out := make([]Record, len(recs))
	for i := range recs {
		out[i] = toPublicRecord(recs[i])
	}
	return out, nil
}

// LogPath returns the record log file path.
func (r *Runtime) LogPath() string { return r.journal.Path() }

// Shutdown drains the buffered writer and stops background work. Safe
// to call more than once; the first result is sticky. Records that
// cannot be flushed within ctx are logged as a data-loss event.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() {
		r.writer.Drain(ctx)
		if err := r.otelShutdown(ctx); err != nil {
			r.shutdownErr = fmt.Errorf("kiroku: telemetry shutdown: %w", err)
		}
		r.logger.Info("kiroku stopped", "flushed_total", r.writer.Flushed(), "dropped_total", r.writer.Dropped())
	})
	return r.shutdownErr
}

func toInternalRecord(rec Record) model.TimingRecord {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return model.TimingRecord{
		Timestamp: ts,
		ContextID: rec.ContextID,
		TaskID:    rec.TaskID,
		StartTime: rec.StartTime,
		EndTime:   rec.EndTime,
		Label:     rec.Label,
		Outcome:   model.Outcome(rec.Outcome),
	}
}

func toPublicRecord(rec model.TimingRecord) Record {
	out := Record{
		Timestamp: rec.Timestamp,
		ContextID: rec.ContextID,
		TaskID:    rec.TaskID,
		StartTime: rec.StartTime,
		EndTime:   rec.EndTime,
		Label:     rec.Label,
		Outcome:   Outcome(rec.Outcome),
	}
	if d, ok := rec.DurationSeconds(); ok {
		out.DurationSeconds = &d
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
