package auth

import "context"

// Directory is the external user store the resolver consults on every
// request. Implementations must make CreateAnonymous atomic: two concurrent
// first-contact requests with the same anonymous id must resolve to a single
// record (unique constraint at the storage boundary, not a lock here).
type Directory interface {
	FindByID(ctx context.Context, id string) (*Principal, error)
	FindByAnonymousID(ctx context.Context, anonymousID string) (*Principal, error)

	// CreateAnonymous finds or creates the anonymous principal keyed by
	// anonymousID. Idempotent under arbitrary concurrency.
	CreateAnonymous(ctx context.Context, anonymousID string) (*Principal, error)

	// TouchLastActive is best effort; callers swallow its error.
	TouchLastActive(ctx context.Context, id string) error
}
