// Package apperr defines the closed failure taxonomy every request-level
// error is mapped onto before it leaves the service. An Error is constructed
// at the point of failure and flows upward unchanged until the HTTP error
// pipeline consumes it exactly once.
package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind discriminates the closed set of failure categories. The HTTP pipeline
// switches over Kind exhaustively; adding a member means extending that switch.
type Kind int

const (
	KindValidation Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindRateLimit
	KindInternal
	// KindCrisis is deliberately not an HTTP failure: it is answered with a
	// 200 carrying supportive resources, never an error screen.
	KindCrisis
)

// Class separates failures the caller may learn about from failures whose
// detail must stay server-side in production.
type Class int

const (
	// ClassOperational marks anticipated failures intentionally raised by
	// business logic; their message is safe to return to the caller.
	ClassOperational Class = iota
	// ClassProgramming marks unexpected failures (panics, unclassified
	// errors); the caller only ever sees a generic message in production.
	ClassProgramming
)

// Machine-readable error codes. Closed set; the pipeline never emits a code
// outside of this list.
const (
	CodeNoToken                = "NO_TOKEN"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeExpiredToken           = "EXPIRED_TOKEN"
	CodeUserNotFound           = "USER_NOT_FOUND"
	CodeAccountDeactivated     = "ACCOUNT_DEACTIVATED"
	CodeAccountSuspended       = "ACCOUNT_SUSPENDED"
	CodeAuthRequired           = "AUTH_REQUIRED"
	CodeNotAuthenticated       = "NOT_AUTHENTICATED"
	CodeInsufficientRole       = "INSUFFICIENT_ROLE"
	CodeInsufficientPermission = "INSUFFICIENT_PERMISSION"
	CodeOwnershipCheckFailed   = "OWNERSHIP_CHECK_FAILED"
	CodeOwnershipRequired      = "OWNERSHIP_REQUIRED"
	CodeSessionNotFound        = "SESSION_NOT_FOUND"
	CodeSessionAccessDenied    = "SESSION_ACCESS_DENIED"
	CodeCrisisAccessDenied     = "CRISIS_ACCESS_DENIED"
	CodeValidation             = "VALIDATION_ERROR"
	CodeNotFound               = "NOT_FOUND"
	CodeConflict               = "CONFLICT"
	CodeRateLimited            = "RATE_LIMITED"
	CodeInternal               = "INTERNAL_ERROR"
	CodeCrisisDetected         = "CRISIS_DETECTED"
)

// Error is the tagged union carried across handler layers. Fields holds
// non-sensitive context echoed back to the caller (acting role, required
// roles, suspension end time and the like).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	Class   Class
	Fields  map[string]any

	// Severity is only meaningful for KindCrisis.
	Severity string

	cause error
	stack string
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// IsCrisis reports whether the error takes the crisis escalation path.
func (e *Error) IsCrisis() bool { return e.Kind == KindCrisis }

// Stack returns the captured stack trace, if any. Programming errors capture
// one at construction so verbose mode can expose it.
func (e *Error) Stack() string { return e.stack }

// Cause returns the wrapped underlying error, if any.
func (e *Error) Cause() error { return e.cause }

// WithField returns a shallow copy carrying one extra context field. The
// original error is never mutated in transit.
func (e *Error) WithField(key string, value any) *Error {
	clone := *e
	clone.Fields = make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		clone.Fields[k] = v
	}
	clone.Fields[key] = value
	return &clone
}

func statusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindCrisis:
		return http.StatusOK
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, code, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Status:  statusFor(kind),
		Class:   ClassOperational,
	}
}

// Validation builds a 400 operational error.
func Validation(message string) *Error {
	return newError(KindValidation, CodeValidation, message)
}

// Authentication builds a 401 operational error with the given code.
func Authentication(code, message string) *Error {
	return newError(KindAuthentication, code, message)
}

// Authorization builds a 403 operational error with the given code.
func Authorization(code, message string) *Error {
	return newError(KindAuthorization, code, message)
}

// NotFound builds a 404 operational error.
func NotFound(code, message string) *Error {
	return newError(KindNotFound, code, message)
}

// Conflict builds a 409 operational error.
func Conflict(message string) *Error {
	return newError(KindConflict, CodeConflict, message)
}

// RateLimited builds a 429 operational error.
func RateLimited(message string) *Error {
	return newError(KindRateLimit, CodeRateLimited, message)
}

// Internal builds a 500 error. Operational by construction; use From for
// unexpected failures so they are classified as programming errors.
func Internal(code, message string) *Error {
	return newError(KindInternal, code, message)
}

// Crisis builds the distinguished crisis classification. It is not a failure:
// the pipeline answers it with HTTP 200 plus crisis resources.
func Crisis(severity, message string) *Error {
	e := newError(KindCrisis, CodeCrisisDetected, message)
	e.Severity = severity
	return e
}

// Wrap attaches a cause to an existing taxonomy member without changing its
// classification.
func Wrap(e *Error, cause error) *Error {
	clone := *e
	clone.cause = cause
	return &clone
}

// pgUniqueViolation is the Postgres SQLSTATE for a unique constraint hit.
const pgUniqueViolation = "23505"

// From maps an arbitrary error onto the taxonomy. Taxonomy members pass
// through untouched and a few well-known upstream shapes are normalized
// onto their operational members; anything unrecognized becomes a
// programming-classified internal error with a captured stack trace, so raw
// failures never leave the pipeline.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return Wrap(Conflict("resource already exists"), err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Wrap(NotFound(CodeNotFound, "resource not found"), err)
	}
	e := newError(KindInternal, CodeInternal, "Something went wrong!")
	e.Class = ClassProgramming
	e.cause = err
	e.stack = captureStack(3)
	return e
}

// FromPanic converts a recovered panic value into a programming error.
func FromPanic(v any) *Error {
	var cause error
	switch t := v.(type) {
	case error:
		cause = t
	default:
		cause = fmt.Errorf("panic: %v", v)
	}
	e := newError(KindInternal, CodeInternal, "Something went wrong!")
	e.Class = ClassProgramming
	e.cause = cause
	e.stack = captureStack(4)
	return e
}

func captureStack(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
