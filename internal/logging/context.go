package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType names the kind of event a line records.
	FieldEventType = "event_type"
	// FieldErrorHint tells an operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType labels policy decisions.
	FieldDecisionType = "decision_type"
	// FieldDevice is the device node a line concerns.
	FieldDevice = "device"
	// FieldRunID correlates every line of one device run.
	FieldRunID = "run_id"
	// FieldState is an orchestrator state name.
	FieldState = "state"
)

type contextKey int

const (
	deviceKey contextKey = iota
	runIDKey
)

// WithDevice stores the device node on ctx.
func WithDevice(ctx context.Context, devnode string) context.Context {
	return context.WithValue(ctx, deviceKey, devnode)
}

// WithRunID stores the device run identifier on ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if dev, ok := ctx.Value(deviceKey).(string); ok && dev != "" {
		fields = append(fields, slog.String(FieldDevice, dev))
	}
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldRunID, id))
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
