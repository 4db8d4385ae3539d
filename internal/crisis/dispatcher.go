// Package crisis turns a detected mental-health crisis into an out-of-band
// alert plus a supportive, non-error HTTP response. Detecting a crisis must
// never surface as a user-facing error.
package crisis

import (
	"context"
	"time"

	"mindhaven.org/internal/apperr"
	"mindhaven.org/internal/audit"
)

// EventCrisisDetected is the alert event name pushed to the notifier.
const EventCrisisDetected = "crisis.detected"

// SeverityDefault is assumed when a classifier reports no severity. The
// metric recorder and the audit trail both apply it, so they always agree.
const SeverityDefault = "high"

// defaultResources is the hotline table returned with every crisis response.
var defaultResources = map[string]string{
	"suicide_crisis_lifeline": "988",
	"crisis_text_line":        "text HOME to 741741",
	"emergency":               "911",
}

// Response is the body the pipeline writes for a crisis classification:
// HTTP 200, success true, so client UIs render supportive content.
type Response struct {
	Success           bool              `json:"success"`
	Message           string            `json:"message"`
	ErrorCode         string            `json:"errorCode"`
	CrisisResources   map[string]string `json:"crisisResources"`
	RequiresImmediate bool              `json:"requiresImmediate"`
}

// Dispatcher performs the crisis escalation: a synchronous crisis-channel
// audit write, then a detached alert to the notification service. Both the
// notifier and logger are injected at construction; there is no process-wide
// registry.
type Dispatcher struct {
	notifier    Notifier
	log         *audit.Logger
	feed        *Feed
	resources   map[string]string
	emitTimeout time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithResources overrides the hotline table.
func WithResources(resources map[string]string) DispatcherOption {
	return func(d *Dispatcher) {
		if len(resources) > 0 {
			d.resources = resources
		}
	}
}

// WithFeed publishes every escalation to the live responder feed.
func WithFeed(feed *Feed) DispatcherOption {
	return func(d *Dispatcher) {
		d.feed = feed
	}
}

// WithEmitTimeout bounds the detached notifier call.
func WithEmitTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.emitTimeout = timeout
		}
	}
}

// NewDispatcher constructs a Dispatcher. A nil notifier degrades to no-op.
func NewDispatcher(notifier Notifier, log *audit.Logger, opts ...DispatcherOption) *Dispatcher {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	d := &Dispatcher{
		notifier:    notifier,
		log:         log,
		resources:   defaultResources,
		emitTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resources returns a copy of the hotline table.
func (d *Dispatcher) Resources() map[string]string {
	out := make(map[string]string, len(d.resources))
	for k, v := range d.resources {
		out[k] = v
	}
	return out
}

// Dispatch handles a crisis-classified error. The audit write happens before
// the response; the notifier emit is fire-and-forget off the critical path,
// and a delivery failure never changes the response.
func (d *Dispatcher) Dispatch(ctx context.Context, e *apperr.Error, sessionID string) Response {
	severity := e.Severity
	if severity == "" {
		severity = SeverityDefault
	}
	fields := map[string]any{
		"severity":  severity,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if sessionID != "" {
		fields["session_id"] = sessionID
	}
	if d.log != nil {
		d.log.Crisis(ctx, "crisis.escalated", fields)
	}

	payload := map[string]any{"severity": severity}
	if sessionID != "" {
		payload["session_id"] = sessionID
	}
	if actor, ok := audit.ActorFromContext(ctx); ok {
		payload["principal_id"] = actor.ID
	}

	if d.feed != nil {
		alert := Alert{Severity: severity, SessionID: sessionID, Timestamp: time.Now().UTC()}
		if actor, ok := audit.ActorFromContext(ctx); ok {
			alert.PrincipalID = actor.ID
		}
		d.feed.Publish(alert)
	}

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.emitTimeout)
	go func() {
		defer cancel()
		if err := d.notifier.Emit(detached, EventCrisisDetected, payload); err != nil && d.log != nil {
			// Logged, never retried, never escalated into a second error.
			d.log.Error(detached, "crisis.notify_failed", map[string]any{"cause": err.Error()})
		}
	}()

	resources := make(map[string]string, len(d.resources))
	for k, v := range d.resources {
		resources[k] = v
	}
	return Response{
		Success:           true,
		Message:           "We're here for you. Please reach out to one of these resources right now.",
		ErrorCode:         apperr.CodeCrisisDetected,
		CrisisResources:   resources,
		RequiresImmediate: true,
	}
}
