package crisis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"mindhaven.org/internal/apperr"
	"mindhaven.org/internal/audit"
)

type captureNotifier struct {
	events chan map[string]any
	err    error
}

func (n *captureNotifier) Emit(ctx context.Context, event string, payload map[string]any) error {
	if n.err != nil {
		return n.err
	}
	n.events <- map[string]any{"event": event, "payload": payload}
	return nil
}

func (n *captureNotifier) Close() error { return nil }

func newCrisisLogger(crisisBuf, accessBuf *bytes.Buffer) *audit.Logger {
	return audit.New(
		audit.WithWriter(audit.ChannelCrisis, crisisBuf),
		audit.WithWriter(audit.ChannelAccess, accessBuf),
	)
}

func TestDispatchWritesCrisisAuditBeforeReturning(t *testing.T) {
	var crisisBuf, accessBuf bytes.Buffer
	notifier := &captureNotifier{events: make(chan map[string]any, 1)}
	d := NewDispatcher(notifier, newCrisisLogger(&crisisBuf, &accessBuf))

	resp := d.Dispatch(context.Background(), apperr.Crisis("critical", "crisis detected"), "sess-1")

	if !resp.Success {
		t.Fatal("crisis response must carry success=true")
	}
	if resp.ErrorCode != apperr.CodeCrisisDetected {
		t.Fatalf("unexpected error code: %s", resp.ErrorCode)
	}
	if !resp.RequiresImmediate {
		t.Fatal("expected requiresImmediate")
	}
	if len(resp.CrisisResources) == 0 {
		t.Fatal("crisis resources must not be empty")
	}

	line := strings.TrimSpace(crisisBuf.String())
	if line == "" {
		t.Fatal("expected synchronous crisis audit write")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("invalid crisis log: %v", err)
	}
	if entry["channel"] != "crisis" {
		t.Fatalf("unexpected channel: %v", entry["channel"])
	}
	fields := entry["fields"].(map[string]any)
	if fields["severity"] != "critical" || fields["session_id"] != "sess-1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestDispatchNotifiesAsynchronously(t *testing.T) {
	var crisisBuf, accessBuf bytes.Buffer
	notifier := &captureNotifier{events: make(chan map[string]any, 1)}
	d := NewDispatcher(notifier, newCrisisLogger(&crisisBuf, &accessBuf))

	ctx := audit.WithActor(context.Background(), audit.Actor{ID: "u-9", Role: "patient"})
	d.Dispatch(ctx, apperr.Crisis("high", "crisis detected"), "")

	select {
	case got := <-notifier.events:
		if got["event"] != EventCrisisDetected {
			t.Fatalf("unexpected event: %v", got["event"])
		}
		payload := got["payload"].(map[string]any)
		if payload["principal_id"] != "u-9" {
			t.Fatalf("expected principal id in payload: %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was never invoked")
	}
}

func TestNotifierFailureDoesNotChangeResponse(t *testing.T) {
	var crisisBuf, accessBuf bytes.Buffer
	notifier := &captureNotifier{err: errors.New("broker unreachable")}
	d := NewDispatcher(notifier, newCrisisLogger(&crisisBuf, &accessBuf))

	resp := d.Dispatch(context.Background(), apperr.Crisis("high", "crisis detected"), "sess-2")
	if !resp.Success || resp.ErrorCode != apperr.CodeCrisisDetected {
		t.Fatalf("delivery failure leaked into response: %+v", resp)
	}
}

func TestNilNotifierDegradesToNoOp(t *testing.T) {
	var crisisBuf, accessBuf bytes.Buffer
	d := NewDispatcher(nil, newCrisisLogger(&crisisBuf, &accessBuf))

	resp := d.Dispatch(context.Background(), apperr.Crisis("", "crisis detected"), "")
	if !resp.Success {
		t.Fatal("expected supportive response with no notifier configured")
	}
}
