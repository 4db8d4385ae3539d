package auth

import "errors"

var (
	ErrNotFound = errors.New("auth: not found")

	// ErrTokenMalformed and ErrTokenExpired discriminate verifier failures so
	// the resolver can map them onto distinct error codes.
	ErrTokenMalformed = errors.New("auth: malformed token")
	ErrTokenExpired   = errors.New("auth: expired token")
)
