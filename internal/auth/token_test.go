package auth

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "unit-test-secret-0123456789abcdef"

func TestGenerateVerifyRoundTrip(t *testing.T) {
	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	token, expires, err := v.Generate("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !expires.After(time.Now()) {
		t.Fatalf("expires = %v, want future", expires)
	}
	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("subject = %q, want user-1", claims.Subject)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	issued, err := NewVerifier(testSecret, WithVerifierClock(func() time.Time { return base }))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	token, _, err := issued.Generate("user-1", time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	later, err := NewVerifier(testSecret, WithVerifierClock(func() time.Time { return base.Add(2 * time.Minute) }))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	if _, err := later.Verify(token); err != ErrTokenExpired {
		t.Fatalf("Verify = %v, want ErrTokenExpired", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, _ := NewVerifier(testSecret)
	b, _ := NewVerifier("another-secret-entirely-different")
	token, _, err := a.Generate("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := b.Verify(token); err != ErrTokenMalformed {
		t.Fatalf("Verify = %v, want ErrTokenMalformed", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v, _ := NewVerifier(testSecret)
	for _, tok := range []string{"", "  ", "not.a.jwt", "a.b"} {
		if _, err := v.Verify(tok); err != ErrTokenMalformed {
			t.Errorf("Verify(%q) = %v, want ErrTokenMalformed", tok, err)
		}
	}
}

func TestGenerateValidation(t *testing.T) {
	v, _ := NewVerifier(testSecret)
	if _, _, err := v.Generate("", time.Hour); err == nil {
		t.Fatal("Generate accepted an empty subject")
	}
	if _, _, err := v.Generate("user-1", 0); err == nil {
		t.Fatal("Generate accepted a zero ttl")
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier("  "); err == nil {
		t.Fatal("NewVerifier accepted a blank secret")
	}
}

func TestAnonymousTokenRoundTrip(t *testing.T) {
	token := NewAnonymousToken()
	if !strings.HasPrefix(token, "anon_") {
		t.Fatalf("token = %q, want anon_ prefix", token)
	}
	id, ok := ParseAnonymousToken(token)
	if !ok || id == "" {
		t.Fatalf("ParseAnonymousToken(%q) = %q, %v", token, id, ok)
	}
}

func TestParseAnonymousTokenRejectsMalformed(t *testing.T) {
	for _, tok := range []string{"", "anon_", "anon_not-a-uuid", "bearer_123", "anonXYZ"} {
		if _, ok := ParseAnonymousToken(tok); ok {
			t.Errorf("ParseAnonymousToken(%q) accepted malformed input", tok)
		}
	}
}
