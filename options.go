package kiroku

import (
	"log/slog"
	"time"
)

// Option configures a Runtime.
type Option func(*resolvedOptions)

// resolvedOptions holds overrides applied on top of env configuration.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger *slog.Logger

	logPath            string
	version            string
	flushInterval      time.Duration
	flushThreshold     int
	queueCapacity      int
	defaultLimit       time.Duration
	warningFraction    float64
	maxConsecutiveFail int
	lockTimeout        time.Duration
}

// WithLogger sets the structured logger for the Runtime.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithLogPath overrides the record log path from config (KIROKU_LOG_PATH env var).
func WithLogPath(path string) Option {
	return func(o *resolvedOptions) { o.logPath = path }
}

// WithVersion sets the version string reported in logs and metrics.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithFlushInterval overrides the background flush interval (KIROKU_FLUSH_INTERVAL).
func WithFlushInterval(d time.Duration) Option {
	return func(o *resolvedOptions) { o.flushInterval = d }
}

// WithFlushThreshold overrides the queue length that wakes the flush
// worker early (KIROKU_FLUSH_THRESHOLD).
func WithFlushThreshold(n int) Option {
	return func(o *resolvedOptions) { o.flushThreshold = n }
}

// WithQueueCapacity overrides the per-key bounded queue size (KIROKU_QUEUE_CAPACITY).
func WithQueueCapacity(n int) Option {
	return func(o *resolvedOptions) { o.queueCapacity = n }
}

// WithDefaultLimit overrides the default per-task wall-clock budget (KIROKU_LIMIT_SECONDS).
func WithDefaultLimit(d time.Duration) Option {
	return func(o *resolvedOptions) { o.defaultLimit = d }
}

// WithWarningFraction overrides the budget fraction that triggers the
// one-shot warning (KIROKU_WARNING_FRACTION).
func WithWarningFraction(f float64) Option {
	return func(o *resolvedOptions) { o.warningFraction = f }
}

// WithMaxConsecutiveFailures overrides the escalation threshold (KIROKU_MAX_CONSECUTIVE_FAILURES).
func WithMaxConsecutiveFailures(n int) Option {
	return func(o *resolvedOptions) { o.maxConsecutiveFail = n }
}

// WithLockTimeout overrides the bounded window for acquiring the
// cross-process log lock (KIROKU_LOCK_ACQUIRE_TIMEOUT).
func WithLockTimeout(d time.Duration) Option {
	return func(o *resolvedOptions) { o.lockTimeout = d }
}
