// Package context carries request correlation values across layers.
package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorUserIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithActorUserID records the user on whose behalf a request mutates data.
func WithActorUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorUserIDKey, strings.TrimSpace(userID))
}

func ActorUserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(actorUserIDKey).(string)
	return value
}
