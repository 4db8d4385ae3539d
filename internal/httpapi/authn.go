package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"mindhaven.org/internal/audit"
	"mindhaven.org/internal/auth"
	"mindhaven.org/internal/obs"
)

const (
	authHeader      = "Authorization"
	anonymousHeader = "X-Anonymous-Id"
	bearerPrefix    = "Bearer "
)

func credentialsFromRequest(r *http.Request) auth.Credentials {
	creds := auth.Credentials{
		AnonymousToken: strings.TrimSpace(r.Header.Get(anonymousHeader)),
	}
	if token, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
		creds.BearerToken = token
	}
	return creds
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerPrefix)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// requireAuth resolves the principal in required-auth mode and short-circuits
// with the resolver's 401 on failure.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.resolver.Resolve(r.Context(), credentialsFromRequest(r))
		if err != nil {
			obs.RecordAuthOutcome(err.Code)
			a.respondError(w, r, err)
			return
		}
		obs.RecordAuthOutcome("success")
		next.ServeHTTP(w, r.WithContext(a.principalContext(r, principal)))
	})
}

// optionalAuth degrades every resolution failure to "no principal".
func (a *API) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := a.resolver.ResolveOptional(r.Context(), credentialsFromRequest(r))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		obs.RecordAuthOutcome("success")
		next.ServeHTTP(w, r.WithContext(a.principalContext(r, principal)))
	})
}

// allowAnonymous accepts a well-formed anonymous-identity token, lazily
// creating the anonymous principal, and otherwise behaves like requireAuth.
func (a *API) allowAnonymous(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.resolver.ResolveAllowAnonymous(r.Context(), credentialsFromRequest(r))
		if err != nil {
			obs.RecordAuthOutcome(err.Code)
			a.respondError(w, r, err)
			return
		}
		obs.RecordAuthOutcome("success")
		next.ServeHTTP(w, r.WithContext(a.principalContext(r, principal)))
	})
}

func (a *API) principalContext(r *http.Request, principal auth.Principal) context.Context {
	ctx := auth.ContextWithPrincipal(r.Context(), principal)
	return audit.WithActor(ctx, audit.Actor{
		ID:        principal.ID,
		Role:      string(principal.Role),
		Anonymous: principal.IsAnonymous,
	})
}
