package auth

import (
	"context"
	"errors"
	"time"

	"mindhaven.org/internal/apperr"
	"mindhaven.org/internal/audit"
)

// Credentials are the raw identity inputs extracted from a request.
type Credentials struct {
	BearerToken    string
	AnonymousToken string
}

// Resolver turns request credentials into a Principal. It re-resolves on
// every request; nothing is cached across requests.
type Resolver struct {
	verifier   *Verifier
	directory  Directory
	log        *audit.Logger
	touchAfter time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTouchTimeout bounds the detached last-active write.
func WithTouchTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.touchAfter = d
		}
	}
}

// NewResolver constructs a Resolver. The audit logger records authentication
// outcomes on its security channel.
func NewResolver(verifier *Verifier, directory Directory, log *audit.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		verifier:   verifier,
		directory:  directory,
		log:        log,
		touchAfter: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve implements required-auth mode: a valid bearer token naming an
// active account, or a well-defined 401.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) (Principal, *apperr.Error) {
	if creds.BearerToken == "" {
		r.security(ctx, audit.SecurityLoginFailure, "", map[string]any{"reason": "missing token"})
		return Principal{}, apperr.Authentication(apperr.CodeNoToken, "authentication token is required")
	}
	claims, err := r.verifier.Verify(creds.BearerToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired):
			r.security(ctx, audit.SecurityLoginFailure, "", map[string]any{"reason": "expired token"})
			return Principal{}, apperr.Authentication(apperr.CodeExpiredToken, "authentication token has expired")
		default:
			r.security(ctx, audit.SecurityTokenManipulation, "", map[string]any{"reason": "malformed token"})
			return Principal{}, apperr.Authentication(apperr.CodeInvalidToken, "authentication token is invalid")
		}
	}
	principal, dirErr := r.directory.FindByID(ctx, claims.Subject)
	if dirErr != nil {
		if errors.Is(dirErr, ErrNotFound) {
			r.security(ctx, audit.SecurityLoginFailure, claims.Subject, map[string]any{"reason": "subject not found"})
			return Principal{}, apperr.Authentication(apperr.CodeUserNotFound, "account no longer exists")
		}
		return Principal{}, apperr.From(dirErr)
	}
	if !principal.IsActive {
		r.security(ctx, audit.SecurityLoginFailure, principal.ID, map[string]any{"reason": "account deactivated"})
		return Principal{}, apperr.Authentication(apperr.CodeAccountDeactivated, "account has been deactivated")
	}

	// Best effort, off the request's critical path. A dropped write only
	// stales the last-active timestamp.
	r.touchLastActive(ctx, principal.ID)
	return *principal, nil
}

// ResolveOptional runs the same verification but degrades every failure to
// "no principal" so the request continues unauthenticated.
func (r *Resolver) ResolveOptional(ctx context.Context, creds Credentials) (Principal, bool) {
	if creds.BearerToken == "" {
		return Principal{}, false
	}
	principal, err := r.Resolve(ctx, creds)
	if err != nil {
		return Principal{}, false
	}
	return principal, true
}

// ResolveAllowAnonymous prefers a well-formed anonymous-identity token,
// lazily creating the anonymous principal on first sight. Without one it
// falls back to required-auth mode; with no credentials at all the failure is
// AUTH_REQUIRED.
func (r *Resolver) ResolveAllowAnonymous(ctx context.Context, creds Credentials) (Principal, *apperr.Error) {
	if anonID, ok := ParseAnonymousToken(creds.AnonymousToken); ok {
		principal, err := r.directory.CreateAnonymous(ctx, anonID)
		if err != nil {
			return Principal{}, apperr.From(err)
		}
		r.touchLastActive(ctx, principal.ID)
		return *principal, nil
	}
	if creds.BearerToken == "" {
		r.security(ctx, audit.SecurityLoginFailure, "", map[string]any{"reason": "no credentials"})
		return Principal{}, apperr.Authentication(apperr.CodeAuthRequired, "authentication or anonymous identity is required")
	}
	return r.Resolve(ctx, creds)
}

func (r *Resolver) touchLastActive(ctx context.Context, id string) {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.touchAfter)
	go func() {
		defer cancel()
		// Swallowed on purpose: eventual consistency is acceptable here.
		_ = r.directory.TouchLastActive(detached, id)
	}()
}

func (r *Resolver) security(ctx context.Context, event string, principalID string, fields map[string]any) {
	if r.log == nil {
		return
	}
	if principalID != "" {
		if fields == nil {
			fields = map[string]any{}
		}
		fields["principal_id"] = principalID
	}
	r.log.Security(ctx, event, fields)
}
