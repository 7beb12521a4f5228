// Package auth provides the bearer-token accessor used by the REST client and
// the WebSocket handshake.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource exposes the current access token.
type TokenSource interface {
	// AccessToken returns the raw token, or "" if none is held.
	AccessToken() string

	// TokenExpired reports whether the held token is unusable.
	// A missing token counts as expired.
	TokenExpired() bool
}

// ErrEmptyToken is returned when a token file has no content.
var ErrEmptyToken = errors.New("token is empty")

// Store is an in-memory TokenSource. Expiry is read from the JWT exp claim
// without verifying the signature; only the server can do that. Opaque
// tokens never expire client-side.
type Store struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time // Zero if unknown
	skew      time.Duration
	now       func() time.Time
}

// NewStore creates a Store. Tokens are treated as expired skew before their exp claim.
func NewStore(skew time.Duration) *Store {
	return &Store{skew: skew, now: time.Now}
}

// Set replaces the held token.
func (s *Store) Set(token string) {
	token = strings.TrimSpace(token)
	exp := expiryOf(token)

	s.mu.Lock()
	s.token = token
	s.expiresAt = exp
	s.mu.Unlock()
}

// Clear drops the held token.
func (s *Store) Clear() {
	s.Set("")
}

// LoadFile reads a token from path.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return fmt.Errorf("%s: %w", path, ErrEmptyToken)
	}
	s.Set(token)
	return nil
}

// AccessToken returns the raw token.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// TokenExpired reports whether the token is missing or past its exp claim.
func (s *Store) TokenExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return true
	}
	if s.expiresAt.IsZero() {
		return false
	}
	return !s.now().Add(s.skew).Before(s.expiresAt)
}

// ExpiresAt returns the exp claim, or the zero time if unknown.
func (s *Store) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// expiryOf extracts the exp claim from a JWT. Non-JWT tokens yield the zero time.
func expiryOf(token string) time.Time {
	if strings.Count(token, ".") != 2 {
		return time.Time{}
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// BearerHeader returns the Authorization header value for ts, or "" when
// there is no usable token.
func BearerHeader(ts TokenSource) string {
	if ts == nil || ts.TokenExpired() {
		return ""
	}
	token := ts.AccessToken()
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

// Static is a fixed TokenSource, handy for tools and tests.
type Static string

func (s Static) AccessToken() string { return string(s) }
func (s Static) TokenExpired() bool  { return s == "" }
