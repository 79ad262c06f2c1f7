package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRequestID is the standardized structured logging key for request identifiers.
	FieldRequestID = "request_id"
	// FieldRequestNumber is the human-facing request number (SOL-YYYYMMDD-NNNN).
	FieldRequestNumber = "request_number"
	// FieldNeedID is the standardized structured logging key for need identifiers.
	FieldNeedID = "need_id"
	// FieldActor identifies the user on whose behalf an operation runs.
	FieldActor = "actor"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to an operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

type (
	correlationKey struct{}
	actorKey       struct{}
)

// WithCorrelationID stores id on the context. An empty id generates a new one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the correlation id stored on ctx.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, correlationKey{})
}

// WithActor records the user on whose behalf ctx runs.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored on ctx.
func ActorFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, actorKey{})
}

func stringValue(ctx context.Context, key any) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithContext adds the correlation id and actor carried by ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	var args []any
	if id, ok := CorrelationIDFromContext(ctx); ok {
		args = append(args, String(FieldCorrelationID, id))
	}
	if actor, ok := ActorFromContext(ctx); ok {
		args = append(args, String(FieldActor, actor))
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
