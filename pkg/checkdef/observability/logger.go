// Package observability provides structured logging helpers, OpenTelemetry
// metrics and OpenTelemetry tracing for checklist runs.
//
// All features are opt-in and have no-op implementations when disabled.
// The logging helpers accept a nil logger and then do nothing.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns a logger carrying the run and checklist.
func EnrichLogger(logger *slog.Logger, runID, checklist string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("checklist", checklist),
	)
}

// LogRunStart logs the start of a checklist run.
func LogRunStart(logger *slog.Logger, runID, checklist string, checks int) {
	if logger == nil {
		return
	}
	logger.Info("checklist run starting",
		slog.String("run_id", runID),
		slog.String("checklist", checklist),
		slog.Int("checks", checks),
	)
}

// LogRunComplete logs the end of a run that was evaluated to completion,
// whether or not every check passed.
func LogRunComplete(logger *slog.Logger, runID string, duration time.Duration, passed, failed int) {
	if logger == nil {
		return
	}
	logger.Info("checklist run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", ms(duration)),
		slog.Int("passed", passed),
		slog.Int("failed", failed),
	)
}

// LogRunError logs a run aborted by a fatal error.
func LogRunError(logger *slog.Logger, runID string, err error, duration time.Duration) {
	if logger == nil {
		return
	}
	logger.Error("checklist run aborted",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", ms(duration)),
	)
}

// LogCheckStart logs the start of a check evaluation.
func LogCheckStart(logger *slog.Logger, check, kind, fingerprint string) {
	if logger == nil {
		return
	}
	logger.Debug("check starting",
		slog.String("check", check),
		slog.String("kind", kind),
		slog.String("fingerprint", fingerprint),
	)
}

// LogCheckComplete logs a passing check.
func LogCheckComplete(logger *slog.Logger, check, status string, duration time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("check completed",
		slog.String("check", check),
		slog.String("status", status),
		slog.Float64("duration_ms", ms(duration)),
	)
}

// LogCheckError logs a failed check. Failures are part of normal reporting,
// so they are logged at warn level.
func LogCheckError(logger *slog.Logger, check string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("check failed",
		slog.String("check", check),
		slog.String("error", err.Error()),
	)
}

// LogCacheHit logs a fingerprint found in the store.
func LogCacheHit(logger *slog.Logger, check, fingerprint string, original time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("cache hit",
		slog.String("check", check),
		slog.String("fingerprint", fingerprint),
		slog.Float64("original_ms", ms(original)),
	)
}

// LogCacheRecord logs a new store entry. inserted is false when another
// process recorded the fingerprint first.
func LogCacheRecord(logger *slog.Logger, check, fingerprint string, inserted bool) {
	if logger == nil {
		return
	}
	logger.Debug("cache record",
		slog.String("check", check),
		slog.String("fingerprint", fingerprint),
		slog.Bool("inserted", inserted),
	)
}

// LogStoreDegraded logs the switch to an in-memory store after the
// configured store could not be opened.
func LogStoreDegraded(logger *slog.Logger, backend string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("result store unavailable, rebuilding without cache",
		slog.String("backend", backend),
		slog.String("error", err.Error()),
	)
}

// LogTransition logs a check state change.
func LogTransition(logger *slog.Logger, check, from, to string) {
	if logger == nil {
		return
	}
	logger.Debug("check state",
		slog.String("check", check),
		slog.String("from", from),
		slog.String("to", to),
	)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
