// Package observability provides production observability for convoy:
// structured logging, metrics, and distributed tracing.
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

// EnrichLogger adds turn context to a logger.
// Returns a new logger with thread_id, node_id, and attempt fields.
// A nil logger enriches slog.Default, so callers always get a usable
// logger back.
//
// Example:
//
//	enriched := EnrichLogger(logger, "thread-42", "offer", 1)
//	enriched.Info("doing work") // includes thread_id, node_id, attempt
func EnrichLogger(logger *slog.Logger, threadID, nodeID string, attempt int) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
		slog.Int("attempt", attempt),
	)
}

// LogTurnStart logs the start of a turn.
func LogTurnStart(logger *slog.Logger, threadID, intent string) {
	if logger == nil {
		return
	}
	logger.Info("turn starting",
		slog.String("thread_id", threadID),
		slog.String("intent", intent),
	)
}

// LogTurnComplete logs successful turn completion.
func LogTurnComplete(logger *slog.Logger, threadID string, durationMs float64, nodeCount int, phase string) {
	if logger == nil {
		return
	}
	logger.Info("turn completed",
		slog.String("thread_id", threadID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", nodeCount),
		slog.String("phase", phase),
	)
}

// LogTurnSuspended logs a turn suspended at a gated node.
func LogTurnSuspended(logger *slog.Logger, threadID, nodeID, approvalID string) {
	if logger == nil {
		return
	}
	logger.Info("turn suspended awaiting approval",
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
		slog.String("approval_id", approvalID),
	)
}

// LogTurnEscalated logs a turn that ended in escalation.
func LogTurnEscalated(logger *slog.Logger, threadID, reason, errorClass string) {
	if logger == nil {
		return
	}
	logger.Warn("turn escalated",
		slog.String("thread_id", threadID),
		slog.String("reason", reason),
		slog.String("error_class", errorClass),
	)
}

// LogTurnError logs a turn that could not complete at all.
func LogTurnError(logger *slog.Logger, threadID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("turn failed",
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64, signal string) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
		slog.String("signal", signal),
	)
}

// LogNodeError logs node execution error with the attempt context
// required for telemetry: error class, attempt number, node identity.
func LogNodeError(logger *slog.Logger, nodeID string, err error, errorClass string, attempts int) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
		slog.String("error_class", errorClass),
		slog.Int("attempts", attempts),
	)
}

// LogRoute logs a routing decision.
func LogRoute(logger *slog.Logger, phase, intent, node, targetPhase string) {
	if logger == nil {
		return
	}
	logger.Debug("routed",
		slog.String("phase", phase),
		slog.String("intent", intent),
		slog.String("node", node),
		slog.String("target_phase", targetPhase),
	)
}

// LogRoutingDefect logs an undefined (phase, intent) lookup. The table
// is supposed to be total, so this is a programmer error, never a
// normal event.
func LogRoutingDefect(logger *slog.Logger, phase, intent string) {
	if logger == nil {
		return
	}
	logger.Error("undefined transition, routing to escalation (defect)",
		slog.String("phase", phase),
		slog.String("intent", intent),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, threadID string, sequence int, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("thread_id", threadID),
		slog.Int("sequence", sequence),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs checkpoint failure. Persistence failures are
// fatal for the turn, so this pairs with an error returned to the caller.
func LogCheckpointError(logger *slog.Logger, threadID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Error("checkpoint failed",
		slog.String("thread_id", threadID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogClientConstructed logs explicit construction of an external
// service client. Network-resource creation is never hidden behind an
// unmarked accessor.
func LogClientConstructed(logger *slog.Logger, client string) {
	if logger == nil {
		return
	}
	logger.Info("service client constructed",
		slog.String("client", client),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
