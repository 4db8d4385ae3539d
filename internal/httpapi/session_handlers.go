package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mindhaven.org/internal/apperr"
	"mindhaven.org/internal/auth"
	"mindhaven.org/internal/ids"
	"mindhaven.org/internal/session"
)

// handleSessionsCollection creates a new support session for the caller.
func (a *API) handleSessionsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.methodNotAllowed(w, r, http.MethodPost)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())

	var req struct {
		HelperID string `json:"helperId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}
	now := time.Now().UTC()
	s := &session.Session{
		ID:        ids.New(),
		PatientID: principal.ID,
		HelperID:  req.HelperID,
		Status:    session.StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.HelperID != "" {
		s.Status = session.StatusActive
	}
	if err := a.sessions.Create(r.Context(), s); err != nil {
		a.respondError(w, r, err)
		return
	}
	if a.log != nil {
		a.log.Event(r.Context(), "session_created", map[string]any{
			"session_id": s.ID,
			"helper_id":  s.HelperID,
			"status":     s.Status,
		})
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "session": s})
}

// handleSessionResource serves a single session and its message intake. The
// participant gate has already fetched the session into context.
func (a *API) handleSessionResource(w http.ResponseWriter, r *http.Request) {
	s, ok := SessionFromContext(r.Context())
	if !ok {
		a.respondError(w, r, apperr.NotFound(apperr.CodeSessionNotFound, "session not found"))
		return
	}
	if strings.HasSuffix(r.URL.Path, "/messages") {
		a.handleSessionMessage(w, r, s)
		return
	}
	if r.Method != http.MethodGet {
		a.methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session": s})
}

// handleSessionMessage accepts a message into a session, running every
// message through crisis classification first. A crisis verdict short
// circuits into the escalation path and still returns 200.
func (a *API) handleSessionMessage(w http.ResponseWriter, r *http.Request, s *session.Session) {
	if r.Method != http.MethodPost {
		a.methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		a.respondError(w, r, apperr.Validation("message content is required"))
		return
	}

	detection, err := a.classifier.Classify(r.Context(), req.Content)
	if err != nil {
		// Classification must never block support messages. Log and
		// deliver; a human reviews the queue out of band.
		if a.log != nil {
			a.log.Error(r.Context(), "classifier_failed", map[string]any{
				"session_id": s.ID,
				"cause":      err.Error(),
			})
		}
	}
	if detection.Crisis {
		a.respondError(w, r, apperr.Crisis(detection.Severity, "We're concerned about you and want to help."))
		return
	}

	if a.log != nil {
		a.log.Event(r.Context(), "message_accepted", map[string]any{
			"session_id": s.ID,
			"length":     len(req.Content),
		})
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"messageId": ids.New(),
		"sessionId": s.ID,
	})
}

// handleUserResource serves /v1/users/{id}/profile. The ownership gate has
// already established the caller may see this profile.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, err := profileOwnerID(r)
	if err != nil {
		a.respondError(w, r, apperr.NotFound(apperr.CodeNotFound, "profile not found"))
		return
	}
	user, err := a.users.FindByID(r.Context(), id)
	if err != nil {
		a.respondError(w, r, apperr.Wrap(
			apperr.NotFound(apperr.CodeNotFound, "profile not found"), err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"profile": map[string]any{
			"id":           user.ID,
			"role":         string(user.Role),
			"anonymous":    user.IsAnonymous,
			"createdAt":    user.CreatedAt.UTC().Format(time.RFC3339),
			"lastActiveAt": user.LastActiveAt.UTC().Format(time.RFC3339),
		},
	})
}

// handleCrisisStream streams live escalations to responder dashboards over
// server-sent events.
func (a *API) handleCrisisStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.feed == nil {
		a.respondError(w, r, apperr.NotFound(apperr.CodeNotFound, "live alert feed is not enabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.respondError(w, r, apperr.Internal(apperr.CodeInternal, "streaming unsupported"))
		return
	}

	alerts, cancel := a.feed.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case alert, ok := <-alerts:
			if !ok {
				return
			}
			fmt.Fprint(w, "event: crisis\ndata: ")
			if err := enc.Encode(alert); err != nil {
				return
			}
			fmt.Fprint(w, "\n")
			flusher.Flush()
		}
	}
}

// handleCrisisAlerts lists the static escalation resources for responder
// tooling. Alert history lives in the crisis audit channel.
func (a *API) handleCrisisAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"resources": a.dispatcher.Resources(),
	})
}
