package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mindhaven.org/internal/audit"
)

func newAccessLogAPI(t *testing.T, threshold time.Duration) (*API, *bytes.Buffer) {
	t.Helper()
	auditCh := &bytes.Buffer{}
	log := audit.New(
		audit.WithWriter(audit.ChannelAccess, io.Discard),
		audit.WithWriter(audit.ChannelAudit, auditCh),
		audit.WithWriter(audit.ChannelSecurity, io.Discard),
		audit.WithWriter(audit.ChannelCrisis, io.Discard),
	)
	return New(Config{Mode: ModeDevelopment, Log: log, SlowThreshold: threshold}), auditCh
}

func TestSlowOperationPastThresholdIsLogged(t *testing.T) {
	api, auditCh := newAccessLogAPI(t, time.Nanosecond)

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(auditCh.String()), "\n") {
		if !strings.Contains(line, "slow_operation") {
			continue
		}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("slow_operation line is not valid JSON: %v", err)
		}
	}
	if entry == nil {
		t.Fatalf("audit channel missing slow_operation entry: %s", auditCh.String())
	}
	if entry["event"] != "slow_operation" {
		t.Fatalf("event = %v, want slow_operation", entry["event"])
	}
	if _, ok := entry["threshold_ms"]; !ok {
		t.Fatalf("threshold_ms missing: %v", entry)
	}
	if _, ok := entry["heap_alloc_delta"]; !ok {
		t.Fatalf("heap_alloc_delta missing: %v", entry)
	}
	if entry["path"] != "/healthz" {
		t.Fatalf("path = %v, want /healthz", entry["path"])
	}
}

func TestFastRequestBelowThresholdIsNotFlagged(t *testing.T) {
	api, auditCh := newAccessLogAPI(t, time.Hour)

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if strings.Contains(auditCh.String(), "slow_operation") {
		t.Fatalf("fast request flagged as slow: %s", auditCh.String())
	}
}
