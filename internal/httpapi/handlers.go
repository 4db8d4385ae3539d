package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"mindhaven.org/internal/apperr"
	"mindhaven.org/internal/auth"
)

const tokenTTL = 24 * time.Hour

// Healthz reports process liveness.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": a.version})
}

// Ready reports whether dependencies are reachable.
func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// Info exposes build metadata.
func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "mindhaven-api",
		"version": a.version,
		"mode":    string(a.mode),
	})
}

// handleAuthToken mints a bearer token for a known user. In deployment the
// upstream identity provider calls this after verifying credentials.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		User string `json:"user"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}
	if req.User == "" {
		a.respondError(w, r, apperr.Validation("user is required"))
		return
	}
	principal, err := a.users.FindByID(r.Context(), req.User)
	if err != nil {
		a.respondError(w, r, apperr.Wrap(
			apperr.Authentication(apperr.CodeUserNotFound, "no account matches this user"), err))
		return
	}
	token, expires, err := a.verifier.Generate(principal.ID, tokenTTL)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"token":      token,
		"expires_at": expires.UTC().Format(time.RFC3339),
		"role":       string(principal.Role),
	})
}

// handleAnonymousToken hands out an opaque anonymous credential. The
// matching principal is created lazily on first gated request.
func (a *API) handleAnonymousToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.methodNotAllowed(w, r, http.MethodPost)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"anonymous_token": auth.NewAnonymousToken(),
		"header":          anonymousHeader,
	})
}

// handlePermissionTable exposes the static role permission sets for admin
// tooling.
func (a *API) handlePermissionTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.methodNotAllowed(w, r, http.MethodGet)
		return
	}
	table := make(map[string][]string, len(auth.Roles()))
	for _, role := range auth.Roles() {
		table[string(role)] = auth.PermissionsForRole(role)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "permissions": table})
}

// profileOwnerID resolves the owner of /v1/users/{id}/profile.
func profileOwnerID(r *http.Request) (string, error) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/v1/users/")
	if !ok {
		return "", fmt.Errorf("unexpected path %q", r.URL.Path)
	}
	id, ok := strings.CutSuffix(rest, "/profile")
	if !ok || id == "" {
		return "", fmt.Errorf("no user id in path %q", r.URL.Path)
	}
	return id, nil
}
