package httpapi

import (
	"context"

	"mindhaven.org/internal/session"
)

type sessionContextKey struct{}
type ratePolicyContextKey struct{}

// contextWithSession stores the session fetched by the participant gate so
// downstream handlers avoid a second directory fetch.
func contextWithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the session attached by the participant gate.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return s, ok && s != nil
}

func contextWithRatePolicy(ctx context.Context, p RatePolicy) context.Context {
	return context.WithValue(ctx, ratePolicyContextKey{}, p)
}

// RatePolicyFromContext exposes the role-derived rate-limit configuration
// for outer limiters.
func RatePolicyFromContext(ctx context.Context) (RatePolicy, bool) {
	if ctx == nil {
		return RatePolicy{}, false
	}
	p, ok := ctx.Value(ratePolicyContextKey{}).(RatePolicy)
	return p, ok
}
