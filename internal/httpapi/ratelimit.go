package httpapi

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mindhaven.org/internal/apperr"
	"mindhaven.org/internal/auth"
)

// RatePolicy describes how aggressively a caller may hit the API within a
// sliding window. Policies are resolved per role before the handler runs so
// downstream code can inspect them.
type RatePolicy struct {
	Window      time.Duration
	MaxRequests int
}

// PolicyForRole maps a role to its throttle tier. Principal-less requests
// fall through to the strictest tier; anonymous principals carry the patient
// role and rate as patients.
func PolicyForRole(role auth.Role) RatePolicy {
	switch role {
	case auth.RoleAdmin:
		return RatePolicy{Window: time.Minute, MaxRequests: 300}
	case auth.RoleCounselor:
		return RatePolicy{Window: time.Minute, MaxRequests: 180}
	case auth.RolePeer:
		return RatePolicy{Window: time.Minute, MaxRequests: 120}
	case auth.RolePatient:
		return RatePolicy{Window: time.Minute, MaxRequests: 60}
	default:
		return RatePolicy{Window: time.Minute, MaxRequests: 30}
	}
}

// withRatePolicy resolves the caller's throttle tier and attaches it to the
// request context. It does not enforce; enforceRatePolicy (or any outer
// limiter) consumes the attached policy.
func (a *API) withRatePolicy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var role auth.Role
		if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
			role = principal.Role
		}
		policy := PolicyForRole(role)
		next.ServeHTTP(w, r.WithContext(contextWithRatePolicy(r.Context(), policy)))
	})
}

// enforceRatePolicy applies the context-attached policy against the caller's
// token bucket, keyed by principal id when resolved and client address
// otherwise. Requests with no attached policy pass through.
func (a *API) enforceRatePolicy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		policy, ok := RatePolicyFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		key := clientAddr(r)
		if principal, ok := auth.PrincipalFromContext(r.Context()); ok {
			key = principal.ID
		}
		if !a.limiter.Allow(key, policy) {
			e := apperr.RateLimited("too many requests, please slow down").
				WithField("retryAfterSeconds", int(policy.Window.Seconds()))
			a.deny(w, r, e)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimiter keeps a token bucket per caller. Buckets idle past the TTL are
// dropped on the next sweep to bound memory.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	ttl     time.Duration
	sweepAt time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		ttl:     10 * time.Minute,
		sweepAt: time.Now().Add(10 * time.Minute),
	}
}

func (l *rateLimiter) Allow(key string, policy RatePolicy) bool {
	if policy.MaxRequests <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.After(l.sweepAt) {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.sweepAt = now.Add(l.ttl)
	}

	b, ok := l.buckets[key]
	if !ok {
		limit := rate.Limit(float64(policy.MaxRequests) / policy.Window.Seconds())
		b = &bucket{lim: rate.NewLimiter(limit, policy.MaxRequests)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.Allow()
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
