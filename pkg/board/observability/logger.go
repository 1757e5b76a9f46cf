// Package observability provides structured logging, metrics, and tracing
// for the board engine.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds board context to a logger.
// Returns a new logger with graph_id, node_id, and node_kind fields.
func EnrichLogger(logger *slog.Logger, graphID, nodeID, nodeKind string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("graph_id", graphID),
		slog.String("node_id", nodeID),
		slog.String("node_kind", nodeKind),
	)
}

// LogGenerationStart logs the start of a generation attempt.
func LogGenerationStart(logger *slog.Logger, nodeID string, attempt int64) {
	if logger == nil {
		return
	}
	logger.Info("generation starting",
		slog.String("node_id", nodeID),
		slog.Int64("attempt", attempt),
	)
}

// LogGenerationSettled logs a completed generation.
func LogGenerationSettled(logger *slog.Logger, nodeID string, durationMs float64, characters int) {
	if logger == nil {
		return
	}
	logger.Info("generation settled",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("characters_received", characters),
	)
}

// LogGenerationError logs a failed generation.
func LogGenerationError(logger *slog.Logger, nodeID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("generation failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeMutation logs a structural board change.
func LogNodeMutation(logger *slog.Logger, op, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("board mutation",
		slog.String("operation", op),
		slog.String("node_id", nodeID),
	)
}

// LogSnapshot logs a local snapshot write.
func LogSnapshot(logger *slog.Logger, graphID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("snapshot saved",
		slog.String("graph_id", graphID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogSnapshotError logs snapshot failure (non-fatal).
func LogSnapshotError(logger *slog.Logger, graphID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("snapshot failed",
		slog.String("graph_id", graphID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
