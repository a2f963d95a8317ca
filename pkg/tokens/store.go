// Package tokens manages the client's bearer access/refresh token pair:
// persisting them across restarts, decoding expiry, and serializing
// refresh attempts so concurrent requests never race to refresh twice.
package tokens

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Persister is the subset of storage.Index a Store needs, accepted as an
// interface so tests can use a fake without a real bbolt file.
type Persister interface {
	PutTokens(access, refresh string, expiresAt time.Time) error
	GetTokens() (access, refresh string, expiresAt time.Time, ok bool, err error)
	ClearTokens() error
}

// Store holds the current token pair in memory, backed by Persister for
// durability across process restarts.
type Store struct {
	mu        sync.RWMutex
	persister Persister
	access    string
	refresh   string
	expiresAt time.Time
	loaded    bool
}

// NewStore returns a Store backed by persister. Call Load to hydrate from
// disk before first use.
func NewStore(persister Persister) *Store {
	return &Store{persister: persister}
}

// Load reads any previously persisted tokens into memory.
func (s *Store) Load() error {
	access, refresh, expiresAt, ok, err := s.persister.GetTokens()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	if !ok {
		return nil
	}
	s.access, s.refresh, s.expiresAt = access, refresh, expiresAt
	return nil
}

// Set stores a new token pair both in memory and on disk. If expiresAt is
// zero and access looks like a JWT, its exp claim is decoded; otherwise
// the token is treated as having no known expiry (is_expired always
// false, is_expiring_soon always false) until the server says otherwise.
func (s *Store) Set(access, refresh string, expiresAt time.Time) error {
	if expiresAt.IsZero() {
		if exp, ok := DecodeExpiry(access); ok {
			expiresAt = exp
		}
	}
	s.mu.Lock()
	s.access, s.refresh, s.expiresAt, s.loaded = access, refresh, expiresAt, true
	s.mu.Unlock()
	return s.persister.PutTokens(access, refresh, expiresAt)
}

// Clear wipes the token pair, e.g. on logout or irrecoverable refresh
// failure.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.access, s.refresh, s.expiresAt = "", "", time.Time{}
	s.mu.Unlock()
	return s.persister.ClearTokens()
}

// AccessToken returns the current access token, or "" if none is set.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// RefreshToken returns the current refresh token, or "" if none is set.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// Authenticated reports whether a non-empty access token is present.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access != ""
}

// IsExpired reports whether the access token's known expiry has passed.
// A token with no known expiry is never considered expired by this
// check alone -- the server's 401 response is the fallback signal.
func (s *Store) IsExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.expiresAt.IsZero() {
		return false
	}
	return time.Now().After(s.expiresAt)
}

// IsExpiringSoon reports whether the access token will expire within
// buffer, used to refresh proactively before a request would 401.
func (s *Store) IsExpiringSoon(buffer time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.expiresAt.IsZero() {
		return false
	}
	return time.Now().Add(buffer).After(s.expiresAt)
}

// DecodeExpiry reads the exp claim from a JWT without verifying its
// signature -- the client trusts the server issued it over TLS and only
// needs the claim to decide when to refresh, not to authorize anything
// itself.
func DecodeExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
