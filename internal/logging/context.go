package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldReleaseID is the structured logging key for release identifiers.
	FieldReleaseID = "release_id"
	// FieldTaskID is the structured logging key for task identifiers.
	FieldTaskID = "task_id"
	// FieldDeveloperID is the structured logging key for developer identifiers.
	FieldDeveloperID = "developer_id"
	// FieldEventKind is the structured logging key for published event kinds.
	FieldEventKind = "event_kind"
	// FieldCorrelationID is the structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering (e.g. "stale_scan_skipped").
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey string

const (
	releaseIDKey   contextKey = "release_id"
	taskIDKey      contextKey = "task_id"
	developerIDKey contextKey = "developer_id"
	requestIDKey   contextKey = "request_id"
)

// WithReleaseID annotates ctx with a release identifier.
func WithReleaseID(ctx context.Context, id string) context.Context {
	return withString(ctx, releaseIDKey, id)
}

// WithTaskID annotates ctx with a task identifier.
func WithTaskID(ctx context.Context, id string) context.Context {
	return withString(ctx, taskIDKey, id)
}

// WithDeveloperID annotates ctx with a developer identifier.
func WithDeveloperID(ctx context.Context, id string) context.Context {
	return withString(ctx, developerIDKey, id)
}

// WithRequestID annotates ctx with a request correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	for _, entry := range []struct {
		key   contextKey
		field string
	}{
		{releaseIDKey, FieldReleaseID},
		{taskIDKey, FieldTaskID},
		{developerIDKey, FieldDeveloperID},
		{requestIDKey, FieldCorrelationID},
	} {
		if v, ok := stringFrom(ctx, entry.key); ok {
			fields = append(fields, slog.String(entry.field, v))
		}
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
