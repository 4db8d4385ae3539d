package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"mindhaven.org/internal/apperr"
	"mindhaven.org/internal/audit"
	"mindhaven.org/internal/auth"
	"mindhaven.org/internal/obs"
	"mindhaven.org/internal/session"
)

// ownerResolver extracts the owning user id of the target resource from the
// request. It runs only after identity resolution succeeded.
type ownerResolver func(r *http.Request) (string, error)

// requireRole passes when the principal's rank reaches any of the required
// roles. Denials echo the acting role and the required set.
func (a *API) requireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				a.deny(w, r, apperr.Authentication(apperr.CodeNotAuthenticated, "authentication is required"))
				return
			}
			if !principal.HasRole(roles...) {
				e := apperr.Authorization(apperr.CodeInsufficientRole, "your role does not allow this action").
					WithField("userRole", string(principal.Role)).
					WithField("requiredRoles", roleStrings(roles))
				a.deny(w, r, e)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requirePermission checks exact/wildcard membership in the role's static
// permission set. Set based, not rank based.
func (a *API) requirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				a.deny(w, r, apperr.Authentication(apperr.CodeNotAuthenticated, "authentication is required"))
				return
			}
			if !principal.HasPermission(permission) {
				e := apperr.Authorization(apperr.CodeInsufficientPermission, "you do not have permission for this action").
					WithField("userRole", string(principal.Role)).
					WithField("requiredPermission", permission)
				a.deny(w, r, e)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireOwnershipOrRole passes when the principal owns the target resource
// or holds one of the elevated roles.
func (a *API) requireOwnershipOrRole(resolve ownerResolver, elevated ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				a.deny(w, r, apperr.Authentication(apperr.CodeNotAuthenticated, "authentication is required"))
				return
			}
			ownerID, err := resolve(r)
			if err != nil {
				a.respondError(w, r, apperr.Wrap(
					apperr.Internal(apperr.CodeOwnershipCheckFailed, "could not verify resource ownership"), err))
				return
			}
			if ownerID == principal.ID || principal.HasRole(elevated...) {
				if ownerID != principal.ID && principal.Role == auth.RoleAdmin {
					a.log.Security(r.Context(), audit.SecurityAdminDataAccess, map[string]any{
						"owner_id": ownerID,
						"path":     r.URL.Path,
					})
				}
				next.ServeHTTP(w, r)
				return
			}
			e := apperr.Authorization(apperr.CodeOwnershipRequired, "you can only access your own resources").
				WithField("userRole", string(principal.Role))
			a.deny(w, r, e)
		})
	}
}

// requireSessionParticipant fetches the target session and passes for its
// patient, its helper, or an elevated role. The fetched session is attached
// to context for downstream handlers.
func (a *API) requireSessionParticipant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			a.deny(w, r, apperr.Authentication(apperr.CodeNotAuthenticated, "authentication is required"))
			return
		}
		sessionID := sessionIDFromPath(r.URL.Path)
		if sessionID == "" {
			a.respondError(w, r, apperr.NotFound(apperr.CodeSessionNotFound, "session not found"))
			return
		}
		s, err := a.sessions.FindByID(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				a.respondError(w, r, apperr.NotFound(apperr.CodeSessionNotFound, "session not found"))
				return
			}
			a.respondError(w, r, err)
			return
		}
		if !s.Participant(principal.ID) && !principal.HasRole(auth.RoleCounselor, auth.RoleAdmin) {
			e := apperr.Authorization(apperr.CodeSessionAccessDenied, "you are not a participant of this session").
				WithField("userRole", string(principal.Role))
			a.deny(w, r, e)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithSession(r.Context(), s)))
	})
}

// requireCrisisAccess restricts crisis tooling to counselors and admins.
func (a *API) requireCrisisAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			a.deny(w, r, apperr.Authentication(apperr.CodeNotAuthenticated, "authentication is required"))
			return
		}
		if !principal.HasRole(auth.RoleCounselor, auth.RoleAdmin) {
			e := apperr.Authorization(apperr.CodeCrisisAccessDenied, "crisis tools require a counselor or admin role").
				WithField("userRole", string(principal.Role))
			a.deny(w, r, e)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireGoodStanding denies deactivated or currently suspended accounts.
func (a *API) requireGoodStanding(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			a.deny(w, r, apperr.Authentication(apperr.CodeNotAuthenticated, "authentication is required"))
			return
		}
		if !principal.IsActive {
			a.deny(w, r, apperr.Authorization(apperr.CodeAccountDeactivated, "account has been deactivated"))
			return
		}
		if principal.Suspended(time.Now()) {
			e := apperr.Authorization(apperr.CodeAccountSuspended, "account is suspended").
				WithField("suspendedUntil", principal.SuspendedUntil.UTC().Format(time.RFC3339))
			a.deny(w, r, e)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// deny logs the denied access on the security channel and writes the error.
func (a *API) deny(w http.ResponseWriter, r *http.Request, e *apperr.Error) {
	obs.RecordGateDenial(e.Code)
	if a.log != nil {
		a.log.Security(r.Context(), audit.SecurityUnauthorizedAccess, map[string]any{
			"code":   e.Code,
			"path":   r.URL.Path,
			"method": r.Method,
		})
	}
	a.respondError(w, r, e)
}

func roleStrings(roles []auth.Role) []string {
	out := make([]string, len(roles))
	for i, role := range roles {
		out[i] = string(role)
	}
	return out
}

// sessionIDFromPath extracts the id segment of /v1/sessions/{id}[/...].
func sessionIDFromPath(path string) string {
	path = strings.TrimPrefix(path, "/v1/sessions/")
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		path = path[:idx]
	}
	return strings.TrimSpace(path)
}
