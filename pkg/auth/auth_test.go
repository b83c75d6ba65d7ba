package auth

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestSession_ResolutionRules(t *testing.T) {
	ctx := context.Background()
	s := NewSession(zerolog.Nop())

	// No identity: no header.
	if v, ok, err := s.AuthorizationHeader(ctx); err != nil || ok || v != "" {
		t.Fatalf("empty session = (%q, %v, %v), want no header", v, ok, err)
	}

	// Identity without token: serialized identity.
	s.Set(&Identity{Username: "ada", UID: "u1", Email: "ada@example.com", Role: "creator"})
	v, ok, err := s.AuthorizationHeader(ctx)
	if err != nil || !ok {
		t.Fatalf("AuthorizationHeader() = (%q, %v, %v)", v, ok, err)
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(v), &decoded); err != nil {
		t.Fatalf("header is not JSON: %q", v)
	}
	if decoded["uid"] != "u1" || decoded["role"] != "creator" {
		t.Errorf("decoded identity = %v", decoded)
	}

	// Identity with token: the token.
	s.Set(&Identity{UID: "u1", Token: "opaque-token"})
	if v, _, _ := s.AuthorizationHeader(ctx); v != "opaque-token" {
		t.Errorf("header = %q, want opaque-token", v)
	}

	// Cleared.
	s.Set(nil)
	if _, ok, _ := s.AuthorizationHeader(ctx); ok {
		t.Error("cleared session should not produce a header")
	}
}

func TestSession_SetCopiesIdentity(t *testing.T) {
	s := NewSession(zerolog.Nop())
	id := &Identity{UID: "u1", Token: "first"}
	s.Set(id)

	id.Token = "mutated"
	if got := s.Current().Token; got != "first" {
		t.Errorf("Current().Token = %q, want first", got)
	}
}

func TestSession_LatestSetWins(t *testing.T) {
	s := NewSession(zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set(&Identity{UID: "racer", Token: "t"})
		}()
	}
	wg.Wait()

	s.Set(&Identity{UID: "final", Token: "final-token"})
	if v, _, _ := s.AuthorizationHeader(context.Background()); v != "final-token" {
		t.Errorf("header = %q, want final-token", v)
	}
}

func TestWithIdentity_OverridesSession(t *testing.T) {
	s := NewSession(zerolog.Nop())
	s.Set(&Identity{UID: "session", Token: "session-token"})

	ctx := WithIdentity(context.Background(), &Identity{UID: "req", Token: "request-token"})
	if v, _, _ := s.AuthorizationHeader(ctx); v != "request-token" {
		t.Errorf("header = %q, want request-token", v)
	}

	anon := WithIdentity(context.Background(), nil)
	if _, ok, _ := s.AuthorizationHeader(anon); ok {
		t.Error("nil per-request identity should force an unauthenticated request")
	}
}

func TestStaticAndAnonymous(t *testing.T) {
	ctx := context.Background()

	if v, ok, _ := Static("abc").AuthorizationHeader(ctx); !ok || v != "abc" {
		t.Errorf("Static = (%q, %v)", v, ok)
	}
	if _, ok, _ := Static("").AuthorizationHeader(ctx); ok {
		t.Error("Static(\"\") should not set a header")
	}
	if _, ok, _ := Anonymous().AuthorizationHeader(ctx); ok {
		t.Error("Anonymous should not set a header")
	}
}

func TestIdentity_Claims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	id := &Identity{Token: signedToken(t, "user-42", exp)}

	c, err := id.Claims()
	if err != nil {
		t.Fatalf("Claims() error = %v", err)
	}
	if c.Subject != "user-42" {
		t.Errorf("Subject = %q", c.Subject)
	}
	if !c.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", c.ExpiresAt, exp)
	}

	bearer := &Identity{Token: "Bearer " + id.Token}
	if c, err := bearer.Claims(); err != nil || c.Subject != "user-42" {
		t.Errorf("Bearer-prefixed token claims = %+v, %v", c, err)
	}

	if _, err := (&Identity{}).Claims(); err != ErrNoToken {
		t.Errorf("Claims() without token error = %v, want ErrNoToken", err)
	}
}

func TestIdentity_Expired(t *testing.T) {
	now := time.Now()

	expired := &Identity{Token: signedToken(t, "u", now.Add(-time.Minute))}
	if !expired.Expired(now) {
		t.Error("token with past exp should be expired")
	}

	valid := &Identity{Token: signedToken(t, "u", now.Add(time.Minute))}
	if valid.Expired(now) {
		t.Error("token with future exp should not be expired")
	}

	opaque := &Identity{Token: "not-a-jwt"}
	if opaque.Expired(now) {
		t.Error("opaque token should never be reported expired")
	}
}

func TestIdentity_CacheScope(t *testing.T) {
	jwtA := signedToken(t, "creator-a", time.Now().Add(time.Hour))

	tests := []struct {
		name string
		id   *Identity
		want string
	}{
		{"nil identity", nil, ""},
		{"anonymous", &Identity{}, ""},
		{"uid wins", &Identity{UID: "u1", Token: jwtA}, "u1"},
		{"jwt subject", &Identity{Token: jwtA}, "sub:creator-a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.CacheScope(); got != tt.want {
				t.Errorf("CacheScope() = %q, want %q", got, tt.want)
			}
		})
	}

	a := (&Identity{Token: "token-of-creator-A"}).CacheScope()
	b := (&Identity{Token: "token-of-creator-B"}).CacheScope()
	if a == "" || b == "" || a == b {
		t.Errorf("opaque tokens must get distinct non-empty scopes, got %q and %q", a, b)
	}
	if a != (&Identity{Token: "token-of-creator-A"}).CacheScope() {
		t.Error("CacheScope() is not stable for the same token")
	}
	if strings.Contains(a, "token-of-creator-A") {
		t.Errorf("CacheScope() leaks the token: %q", a)
	}
}
