// Package audit provides the structured, multi-channel security logger the
// whole pipeline writes to: access (request/response pairs), audit (named
// intentional actions), security (authentication outcomes and denials) and
// crisis (escalations only, longest retention). Every entry is redacted
// before serialization; logging is a pure side effect and never feeds back
// into control flow.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Channel names a logical log stream.
type Channel string

const (
	ChannelAccess   Channel = "access"
	ChannelAudit    Channel = "audit"
	ChannelSecurity Channel = "security"
	ChannelCrisis   Channel = "crisis"
)

// Security event types. The escalated set is additionally mirrored to the
// access channel at error level so operational alerting does not need to scan
// the security channel separately.
const (
	SecurityLoginFailure       = "login_failure"
	SecurityUnauthorizedAccess = "unauthorized_access"
	SecurityTokenManipulation  = "token_manipulation"
	SecuritySuspiciousActivity = "suspicious_activity"
	SecurityAdminDataAccess    = "admin_data_access"
)

var escalatedSecurityEvents = map[string]struct{}{
	SecurityLoginFailure:       {},
	SecurityUnauthorizedAccess: {},
	SecurityTokenManipulation:  {},
	SecuritySuspiciousActivity: {},
}

// Logger is the injected logging service. Constructed once at process start,
// passed explicitly to every component, closed on shutdown.
type Logger struct {
	mu      sync.Mutex
	writers map[Channel]io.Writer
	now     func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithWriter routes one channel to the given writer.
func WithWriter(channel Channel, w io.Writer) Option {
	return func(l *Logger) {
		if w != nil {
			l.writers[channel] = w
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) Option {
	return func(l *Logger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New constructs a Logger. All channels default to stdout; the crisis channel
// is usually routed elsewhere for retention.
func New(opts ...Option) *Logger {
	l := &Logger{
		writers: map[Channel]io.Writer{
			ChannelAccess:   os.Stdout,
			ChannelAudit:    os.Stdout,
			ChannelSecurity: os.Stdout,
			ChannelCrisis:   os.Stdout,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Access records a request/response observation.
func (l *Logger) Access(ctx context.Context, event string, fields map[string]any) {
	l.write(ctx, ChannelAccess, "info", event, fields)
}

// Error records an operational error on the access channel.
func (l *Logger) Error(ctx context.Context, event string, fields map[string]any) {
	l.write(ctx, ChannelAccess, "error", event, fields)
}

// Event records a named, intentional action on the audit channel.
func (l *Logger) Event(ctx context.Context, event string, fields map[string]any) {
	l.write(ctx, ChannelAudit, "info", event, fields)
}

// Security records an authentication or access-denial event. Escalated event
// types are dual-written to the access channel at error level.
func (l *Logger) Security(ctx context.Context, event string, fields map[string]any) {
	l.write(ctx, ChannelSecurity, "warn", event, fields)
	if _, ok := escalatedSecurityEvents[event]; ok {
		l.write(ctx, ChannelAccess, "error", event, fields)
	}
}

// Crisis records an escalation on the crisis channel.
func (l *Logger) Crisis(ctx context.Context, event string, fields map[string]any) {
	l.write(ctx, ChannelCrisis, "error", event, fields)
}

// Close flushes underlying writers that support it.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.writers {
		if s, ok := w.(interface{ Sync() error }); ok {
			_ = s.Sync()
		}
	}
	return nil
}

func (l *Logger) write(ctx context.Context, channel Channel, level, event string, fields map[string]any) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	entry := map[string]any{
		"ts":      l.now().UTC().Format(time.RFC3339Nano),
		"level":   level,
		"channel": string(channel),
		"event":   event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if actor, ok := ActorFromContext(ctx); ok {
		entry["actor"] = map[string]any{
			"id":        actor.ID,
			"role":      actor.Role,
			"anonymous": actor.Anonymous,
		}
	}
	if len(fields) > 0 {
		entry["fields"] = Redact(fields)
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		data = []byte(`{"level":"error","event":"audit_marshal_failed"}`)
	}
	line := append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.writers[channel]
	if !ok {
		return
	}
	// Single write per entry keeps each append atomic even when a request is
	// aborted mid-flight.
	_, _ = w.Write(line)
}
