// Package testutil provides shared test infrastructure.
package testutil

import (
	"log/slog"
	"os"
)

// Logger returns a logger that stays quiet unless something goes wrong,
// keeping test output readable while still surfacing real errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
