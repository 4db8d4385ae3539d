package auth

import "time"

// Principal is the resolved identity attached to a request: an authenticated
// user, a lazily created anonymous user, or absent entirely.
type Principal struct {
	ID             string
	Role           Role
	IsActive       bool
	IsAnonymous    bool
	AnonymousID    string
	SuspendedUntil *time.Time
	CreatedAt      time.Time
	LastActiveAt   time.Time
}

// Suspended reports whether the account is currently under suspension.
func (p Principal) Suspended(now time.Time) bool {
	return p.SuspendedUntil != nil && p.SuspendedUntil.After(now)
}
