package logger

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	// TraceIDKey is the context key for the request trace ID.
	TraceIDKey contextKey = "trace_id"
	// UserIDKey is the context key for the authenticated caller.
	UserIDKey contextKey = "user_id"
)

// WithTraceID stores traceID in ctx, generating a UUID when it is empty.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

// WithUserID records the acting user so log lines can be correlated with it.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

func NewTraceID() string {
	return uuid.NewString()
}
