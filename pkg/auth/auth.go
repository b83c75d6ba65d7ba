// Package auth resolves the Authorization header for outgoing backend calls.
//
// There is no process-wide request interceptor. A client is configured with
// one HeaderResolver, and every request asks it for the header value at send
// time. Session is the usual resolver: it holds the identity installed by the
// most recent Set call and is safe for concurrent use.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// HeaderName is the request header carrying the authorization value.
const HeaderName = "Authorization"

// ErrNoToken is returned by Identity.Claims when the identity carries no token.
var ErrNoToken = errors.New("identity has no token")

// Identity is the signed-in user as known to the backend.
type Identity struct {
	Username string `json:"username,omitempty"`
	UID      string `json:"uid,omitempty"`
	Email    string `json:"email,omitempty"`
	PhotoURL string `json:"photoURL,omitempty"`
	Role     string `json:"role,omitempty"`

	// Token is the backend-issued token. Until the backend has issued one the
	// identity itself is sent, JSON encoded.
	Token string `json:"-"`
}

// HeaderValue returns the Authorization value for this identity: the token
// when present, the JSON encoded identity otherwise.
func (id *Identity) HeaderValue() (string, error) {
	if id.Token != "" {
		return id.Token, nil
	}
	b, err := json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("encode identity: %w", err)
	}
	return string(b), nil
}

// TokenClaims is the subset of token claims the client cares about.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// Claims decodes the token without verifying it. Verification is the
// backend's job; the client only uses the claims for logging and expiry hints.
func (id *Identity) Claims() (TokenClaims, error) {
	if id.Token == "" {
		return TokenClaims{}, ErrNoToken
	}
	raw := strings.TrimSpace(strings.TrimPrefix(id.Token, "Bearer "))

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return TokenClaims{}, fmt.Errorf("parse token: %w", err)
	}

	var out TokenClaims
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// CacheScope names the user whose cached lists this identity may see: the
// uid, else the token subject, else a digest of the token. It is empty only
// for an identity with neither uid nor token.
func (id *Identity) CacheScope() string {
	if id == nil {
		return ""
	}
	if id.UID != "" {
		return id.UID
	}
	if id.Token == "" {
		return ""
	}
	if c, err := id.Claims(); err == nil && c.Subject != "" {
		return "sub:" + c.Subject
	}
	sum := sha256.Sum256([]byte(id.Token))
	return "tok:" + hex.EncodeToString(sum[:12])
}

// Expired reports whether the token carries an expiry before now. Opaque
// (non-JWT) tokens and tokens without exp never expire from our point of view.
func (id *Identity) Expired(now time.Time) bool {
	c, err := id.Claims()
	if err != nil || c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt)
}

// HeaderResolver produces the Authorization header for one request.
// ok=false means the request goes out without the header.
type HeaderResolver interface {
	AuthorizationHeader(ctx context.Context) (value string, ok bool, err error)
}

// ResolverFunc adapts a function to HeaderResolver.
type ResolverFunc func(ctx context.Context) (string, bool, error)

// AuthorizationHeader implements HeaderResolver.
func (f ResolverFunc) AuthorizationHeader(ctx context.Context) (string, bool, error) {
	return f(ctx)
}

// Anonymous never sets the header.
func Anonymous() HeaderResolver {
	return ResolverFunc(func(ctx context.Context) (string, bool, error) {
		if id, ok := identityFromContext(ctx); ok {
			return resolveIdentity(id)
		}
		return "", false, nil
	})
}

// Static always sends the given token. An empty token behaves like Anonymous.
func Static(token string) HeaderResolver {
	if token == "" {
		return Anonymous()
	}
	return ResolverFunc(func(ctx context.Context) (string, bool, error) {
		if id, ok := identityFromContext(ctx); ok {
			return resolveIdentity(id)
		}
		return token, true, nil
	})
}

type ctxKey struct{}

// WithIdentity overrides the resolver's identity for requests made with ctx.
// A nil identity forces an unauthenticated request.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func identityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	id, ok := ctx.Value(ctxKey{}).(*Identity)
	return id, ok
}

func resolveIdentity(id *Identity) (string, bool, error) {
	if id == nil {
		return "", false, nil
	}
	v, err := id.HeaderValue()
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Session holds the current identity. Set replaces it wholesale.
type Session struct {
	current atomic.Pointer[Identity]
	logger  zerolog.Logger
	now     func() time.Time
}

// NewSession creates an empty (unauthenticated) session.
func NewSession(logger zerolog.Logger) *Session {
	return &Session{logger: logger, now: time.Now}
}

// Set installs id as the current identity; nil clears it. The identity is
// copied so later mutation by the caller has no effect.
func (s *Session) Set(id *Identity) {
	if id == nil {
		s.current.Store(nil)
		s.logger.Info().Msg("Session cleared")
		return
	}

	cp := *id
	s.current.Store(&cp)

	event := s.logger.Info().Str("uid", cp.UID).Str("role", cp.Role).Bool("has_token", cp.Token != "")
	if c, err := cp.Claims(); err == nil {
		event = event.Str("subject", c.Subject)
		if !c.ExpiresAt.IsZero() && s.clock().After(c.ExpiresAt) {
			s.logger.Warn().Str("uid", cp.UID).Time("expires_at", c.ExpiresAt).Msg("Installed token is already expired")
		}
	}
	event.Msg("Session identity installed")
}

func (s *Session) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Current returns a copy of the current identity, or nil.
func (s *Session) Current() *Identity {
	id := s.current.Load()
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}

// AuthorizationHeader implements HeaderResolver.
func (s *Session) AuthorizationHeader(ctx context.Context) (string, bool, error) {
	if id, ok := identityFromContext(ctx); ok {
		return resolveIdentity(id)
	}
	return resolveIdentity(s.current.Load())
}
