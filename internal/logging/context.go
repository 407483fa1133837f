package logging

import (
	"context"
	"log/slog"

	"recflow/internal/services"
)

const (
	// FieldComponent names the subsystem that emitted the record.
	FieldComponent = "component"
	// FieldItemKey is the pending item's source key (relative path).
	FieldItemKey = "item"
	// FieldStage is the pending item's conversation stage.
	FieldStage = "stage"
	// FieldCorrelationID identifies one workflow tick.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a record for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if key, ok := services.ItemKeyFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldItemKey, key))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
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
	return logger.With(attrsToArgs(fields)...)
}
