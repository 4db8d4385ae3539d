package auth

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"mindhaven.org/internal/audit"
)

func newTestResolver(t *testing.T) (*Resolver, *Verifier, *MemoryDirectory, *bytes.Buffer) {
	t.Helper()
	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	dir := NewMemoryDirectory()
	security := &bytes.Buffer{}
	log := audit.New(audit.WithWriter(audit.ChannelSecurity, security))
	return NewResolver(v, dir, log), v, dir, security
}

func activeUser(id string, role Role) Principal {
	now := time.Now().UTC()
	return Principal{ID: id, Role: role, IsActive: true, CreatedAt: now, LastActiveAt: now}
}

func TestResolveRequiredSuccess(t *testing.T) {
	r, v, dir, _ := newTestResolver(t)
	dir.Put(activeUser("user-1", RolePatient))
	token, _, err := v.Generate("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	p, appErr := r.Resolve(context.Background(), Credentials{BearerToken: token})
	if appErr != nil {
		t.Fatalf("Resolve: %v", appErr)
	}
	if p.ID != "user-1" || p.Role != RolePatient {
		t.Fatalf("principal = %+v", p)
	}
}

func TestResolveRequiredFailures(t *testing.T) {
	r, v, dir, _ := newTestResolver(t)
	dir.Put(Principal{ID: "inactive", Role: RolePatient, IsActive: false})

	ghost, _, err := v.Generate("ghost", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	inactive, _, err := v.Generate("inactive", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	cases := []struct {
		name  string
		creds Credentials
		code  string
	}{
		{"no token", Credentials{}, "NO_TOKEN"},
		{"malformed token", Credentials{BearerToken: "not.a.jwt"}, "INVALID_TOKEN"},
		{"unknown subject", Credentials{BearerToken: ghost}, "USER_NOT_FOUND"},
		{"deactivated account", Credentials{BearerToken: inactive}, "ACCOUNT_DEACTIVATED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, appErr := r.Resolve(context.Background(), tc.creds)
			if appErr == nil {
				t.Fatal("Resolve succeeded, want failure")
			}
			if appErr.Code != tc.code {
				t.Fatalf("code = %s, want %s", appErr.Code, tc.code)
			}
			if appErr.Status != 401 {
				t.Fatalf("status = %d, want 401", appErr.Status)
			}
		})
	}
}

func TestResolveExpiredToken(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Put(activeUser("user-1", RolePatient))

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	issuer, _ := NewVerifier(testSecret, WithVerifierClock(func() time.Time { return base }))
	token, _, err := issuer.Generate("user-1", time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	current, _ := NewVerifier(testSecret, WithVerifierClock(func() time.Time { return base.Add(time.Hour) }))
	r := NewResolver(current, dir, nil)
	_, appErr := r.Resolve(context.Background(), Credentials{BearerToken: token})
	if appErr == nil || appErr.Code != "EXPIRED_TOKEN" {
		t.Fatalf("appErr = %v, want EXPIRED_TOKEN", appErr)
	}
}

func TestResolveFailuresHitSecurityChannel(t *testing.T) {
	r, _, _, security := newTestResolver(t)
	_, _ = r.Resolve(context.Background(), Credentials{BearerToken: "tampered.token.here"})
	if !strings.Contains(security.String(), audit.SecurityTokenManipulation) {
		t.Fatalf("security channel missing token_manipulation entry: %s", security.String())
	}
}

func TestResolveOptional(t *testing.T) {
	r, v, dir, _ := newTestResolver(t)
	dir.Put(activeUser("user-1", RolePeer))
	token, _, err := v.Generate("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if _, ok := r.ResolveOptional(context.Background(), Credentials{}); ok {
		t.Fatal("no credentials should resolve to no principal")
	}
	if _, ok := r.ResolveOptional(context.Background(), Credentials{BearerToken: "junk"}); ok {
		t.Fatal("a bad token should degrade to no principal, not an error")
	}
	p, ok := r.ResolveOptional(context.Background(), Credentials{BearerToken: token})
	if !ok || p.ID != "user-1" {
		t.Fatalf("ResolveOptional = %+v, %v", p, ok)
	}
}

func TestResolveAllowAnonymous(t *testing.T) {
	r, _, _, _ := newTestResolver(t)
	token := NewAnonymousToken()

	first, appErr := r.ResolveAllowAnonymous(context.Background(), Credentials{AnonymousToken: token})
	if appErr != nil {
		t.Fatalf("ResolveAllowAnonymous: %v", appErr)
	}
	if !first.IsAnonymous || first.Role != RolePatient {
		t.Fatalf("anonymous principal = %+v", first)
	}

	second, appErr := r.ResolveAllowAnonymous(context.Background(), Credentials{AnonymousToken: token})
	if appErr != nil {
		t.Fatalf("second resolve: %v", appErr)
	}
	if first.ID != second.ID {
		t.Fatalf("same anonymous token resolved to %s then %s", first.ID, second.ID)
	}

	_, appErr = r.ResolveAllowAnonymous(context.Background(), Credentials{})
	if appErr == nil || appErr.Code != "AUTH_REQUIRED" {
		t.Fatalf("no credentials = %v, want AUTH_REQUIRED", appErr)
	}
}

func TestCreateAnonymousConcurrentIdempotence(t *testing.T) {
	dir := NewMemoryDirectory()
	anonID := strings.TrimPrefix(NewAnonymousToken(), "anon_")

	const workers = 32
	out := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := dir.CreateAnonymous(context.Background(), anonID)
			if err != nil {
				t.Errorf("CreateAnonymous: %v", err)
				return
			}
			out <- p.ID
		}()
	}
	wg.Wait()
	close(out)

	distinct := map[string]struct{}{}
	for id := range out {
		distinct[id] = struct{}{}
	}
	if len(distinct) != 1 {
		t.Fatalf("concurrent CreateAnonymous produced %d distinct principals", len(distinct))
	}
}

func TestTouchLastActiveIsDetached(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.Put(activeUser("user-1", RolePatient))
	v, _ := NewVerifier(testSecret)
	r := NewResolver(v, dir, nil, WithTouchTimeout(time.Second))
	token, _, err := v.Generate("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	before, _ := dir.FindByID(context.Background(), "user-1")

	// Even with a canceled request context the touch still lands.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, appErr := r.Resolve(ctx, Credentials{BearerToken: token}); appErr != nil {
		t.Fatalf("Resolve: %v", appErr)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		after, _ := dir.FindByID(context.Background(), "user-1")
		if after.LastActiveAt.After(before.LastActiveAt) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("last-active timestamp never advanced")
}
