// Package session holds the client-side bearer token. The Store is the
// only owner of the token: the gateway reads it, and only login/logout
// paths mutate it.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// TokenKey is the fixed storage key of the persisted token.
const TokenKey = "token"

type Store struct {
	storage Storage
	logger  zerolog.Logger

	mu    sync.RWMutex
	token string
}

func NewStore(storage Storage, logger zerolog.Logger) *Store {
	return &Store{storage: storage, logger: logger}
}

// Init loads the persisted token. Call once on start.
func (s *Store) Init() error {
	token, _, err := s.storage.Get(TokenKey)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if token != "" {
		s.logger.Debug().Str("subject", s.Subject()).Msg("session restored")
	}
	return nil
}

func (s *Store) SetToken(token string) error {
	if err := s.storage.Set(TokenKey, token); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Token reads the persisted token on every call so a login or logout from
// another process sharing the storage is seen immediately. The last value
// read is kept for when storage is unreadable.
func (s *Store) Token() string {
	token, _, err := s.storage.Get(TokenKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("read session failed, using cached token")
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.token
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return token
}

// IsAuthenticated is true iff a non-empty token is present. It does not
// check expiry; the server stays authoritative.
func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// Clear removes the token. The cached copy is dropped even if the storage
// write fails.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	if err := s.storage.Delete(TokenKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Subject returns the "sub" claim when the token is a JWT. The token is
// not verified; this is for display only.
func (s *Store) Subject() string {
	claims, ok := s.claims()
	if !ok {
		return ""
	}
	return claims.Subject
}

// ExpiresAt returns the "exp" claim when the token is a JWT carrying one.
func (s *Store) ExpiresAt() (time.Time, bool) {
	claims, ok := s.claims()
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (s *Store) claims() (*jwt.RegisteredClaims, bool) {
	token := s.Token()
	if token == "" {
		return nil, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}
