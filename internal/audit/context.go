package audit

import (
	"context"
	"strings"
)

type requestIDContextKey struct{}
type actorContextKey struct{}

// Actor is the principal snapshot stamped onto log entries. It is captured
// once at resolution time; entries are write-once and never read back.
type Actor struct {
	ID        string
	Role      string
	Anonymous bool
}

// WithRequestID attaches the request identifier for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext extracts the request id, if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return v
	}
	return ""
}

// WithActor attaches the acting principal snapshot.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting principal snapshot, if present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	v, ok := ctx.Value(actorContextKey{}).(Actor)
	return v, ok
}
