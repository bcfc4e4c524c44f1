package logging

import (
	"context"
	"log/slog"

	"drowsy/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSessionID is the standardized key for detection session identifiers.
	FieldSessionID = "session_id"
	// FieldPhase is the standardized key for session lifecycle phases.
	FieldPhase = "phase"
	// FieldEventType classifies a record for filtering (session_started, poll_failed, ...).
	FieldEventType = "event_type"
	// FieldErrorHint carries an operator-facing next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldDevice names the capture device involved in a record.
	FieldDevice = "device"
	// FieldCorrelationID is the standardized key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}

// WithSession returns a logger tagged with the given detection session identifier.
func WithSession(logger *slog.Logger, sessionID string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if sessionID == "" {
		return logger
	}
	return logger.With(String(FieldSessionID, sessionID))
}
