// Package config loads and validates runtime configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration.
type Config struct {
	// Record log settings.
	LogPath            string
	LockAcquireTimeout time.Duration

	// Buffered writer settings.
	FlushInterval  time.Duration
	FlushThreshold int
	QueueCapacity  int

	// Timeout enforcement settings.
	LimitSeconds    float64 // default per-task wall-clock budget
	WarningFraction float64 // fraction of the budget that triggers the one-shot warning

	// Failure tracking settings.
	MaxConsecutiveFailures int

	// Operational settings.
	LogLevel     string
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		LogPath:                envStr("KIROKU_LOG_PATH", "kiroku.log"),
		LockAcquireTimeout:     envDuration("KIROKU_LOCK_ACQUIRE_TIMEOUT", 5*time.Second),
		FlushInterval:          envDuration("KIROKU_FLUSH_INTERVAL", 100*time.Millisecond),
		FlushThreshold:         envInt("KIROKU_FLUSH_THRESHOLD", 10),
		QueueCapacity:          envInt("KIROKU_QUEUE_CAPACITY", 10_000),
		LimitSeconds:           envFloat("KIROKU_LIMIT_SECONDS", 3600),
		WarningFraction:        envFloat("KIROKU_WARNING_FRACTION", 0.8),
		MaxConsecutiveFailures: envInt("KIROKU_MAX_CONSECUTIVE_FAILURES", 3),
		LogLevel:               envStr("KIROKU_LOG_LEVEL", "info"),
		OTELEndpoint:           envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:           envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:            envStr("OTEL_SERVICE_NAME", "kiroku"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c Config) Validate() error {
	if c.LogPath == "" {
		return fmt.Errorf("config: KIROKU_LOG_PATH is required")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("config: KIROKU_QUEUE_CAPACITY must be positive")
	}
	if c.FlushThreshold <= 0 {
		return fmt.Errorf("config: KIROKU_FLUSH_THRESHOLD must be positive")
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("config: KIROKU_FLUSH_INTERVAL must be positive")
	}
	if c.LimitSeconds <= 0 {
		return fmt.Errorf("config: KIROKU_LIMIT_SECONDS must be positive")
	}
	if c.WarningFraction <= 0 || c.WarningFraction > 1 {
		return fmt.Errorf("config: KIROKU_WARNING_FRACTION must be in (0, 1]")
	}
	if c.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("config: KIROKU_MAX_CONSECUTIVE_FAILURES must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
