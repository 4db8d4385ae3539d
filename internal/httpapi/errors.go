package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mindhaven.org/internal/apperr"
	"mindhaven.org/internal/audit"
	"mindhaven.org/internal/auth"
	"mindhaven.org/internal/crisis"
	"mindhaven.org/internal/obs"
	"mindhaven.org/internal/session"
)

// errorBody is the envelope every failed request produces.
type errorBody struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	ErrorCode string         `json:"error,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Fields    map[string]any `json:"-"`
	Stack     string         `json:"stack,omitempty"`
	Cause     string         `json:"cause,omitempty"`
}

// MarshalJSON flattens contextual fields into the top-level object so
// clients see e.g. userRole and requiredRoles next to the code.
func (b errorBody) MarshalJSON() ([]byte, error) {
	type alias errorBody
	raw, err := json.Marshal(alias(b))
	if err != nil {
		return nil, err
	}
	if len(b.Fields) == 0 {
		return raw, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k, v := range b.Fields {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// respondError is the single exit point for failed requests. Crisis
// classifications are not failures: they route through the escalation
// dispatcher and come back as a supportive 200.
func (a *API) respondError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(normalizeUpstream(err))

	if e.IsCrisis() {
		severity := e.Severity
		if severity == "" {
			severity = crisis.SeverityDefault
		}
		obs.RecordCrisisEscalation(severity)
		var sessionID string
		if s, ok := SessionFromContext(r.Context()); ok {
			sessionID = s.ID
		}
		resp := a.dispatcher.Dispatch(r.Context(), e, sessionID)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if e.Class == apperr.ClassProgramming && a.log != nil {
		a.log.Error(r.Context(), "unhandled_error", map[string]any{
			"code":    e.Code,
			"message": e.Message,
			"path":    r.URL.Path,
			"method":  r.Method,
			"cause":   causeString(e),
			"stack":   e.Stack(),
		})
	}

	body := errorBody{
		Message:   e.Message,
		ErrorCode: e.Code,
		RequestID: audit.RequestIDFromContext(r.Context()),
		Fields:    e.Fields,
	}

	if a.mode == ModeProduction && e.Class == apperr.ClassProgramming {
		// Unexpected failures never leak internals to clients.
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success":   false,
			"message":   "Something went wrong!",
			"errorCode": apperr.CodeInternal,
		})
		return
	}
	if a.mode == ModeDevelopment {
		body.Stack = e.Stack()
		body.Cause = causeString(e)
	}

	writeJSON(w, e.Status, body)
}

// normalizeUpstream maps storage sentinels a handler may leak onto their
// operational taxonomy members before classification, so a missing row or
// bad input never gets reported as a programming failure.
func normalizeUpstream(err error) error {
	switch {
	case errors.Is(err, auth.ErrNotFound):
		return apperr.Wrap(apperr.NotFound(apperr.CodeNotFound, "resource not found"), err)
	case errors.Is(err, session.ErrNotFound):
		return apperr.Wrap(apperr.NotFound(apperr.CodeSessionNotFound, "session not found"), err)
	case errors.Is(err, session.ErrInvalidInput):
		return apperr.Wrap(apperr.Validation("invalid input"), err)
	}
	return err
}

func causeString(e *apperr.Error) string {
	if c := e.Cause(); c != nil {
		return c.Error()
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads one strict JSON object from the request body.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return apperr.Validation("request body is required")
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			return apperr.Validation(fmt.Sprintf("unexpected field %s", strings.TrimPrefix(err.Error(), "json: unknown field ")))
		default:
			return apperr.Wrap(apperr.Validation("request body is not valid JSON"), err)
		}
	}
	if dec.More() {
		return apperr.Validation("request body must contain a single JSON object")
	}
	return nil
}

// methodNotAllowed rejects verbs a route does not serve.
func (a *API) methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	e := apperr.Validation(fmt.Sprintf("method %s is not allowed", r.Method))
	e.Status = http.StatusMethodNotAllowed
	a.respondError(w, r, e)
}
