// Package telemetry provides observability for naginator runs: structured
// logging, run identifiers, and Prometheus metrics.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewLogger creates a structured logger. When jsonFormat is true the
// output is one JSON object per record, otherwise logfmt-style text.
func NewLogger(w io.Writer, level slog.Level, jsonFormat bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewRunID returns a lexicographically sortable identifier for one
// compilation/deployment run.
func NewRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy()).String()
}

// RunLogger returns a logger with run-scoped fields attached.
func RunLogger(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With(slog.String("run_id", runID))
}
