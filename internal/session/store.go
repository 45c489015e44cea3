// Package session holds the signed-in operator's credential and identity.
// The token and the user are always set, persisted and cleared together.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gautamrajesh007/Interceptor/internal/clock"
	"github.com/gautamrajesh007/Interceptor/internal/model"
)

var ErrIncomplete = errors.New("session needs both a token and a user")

type Store struct {
	storage Storage
	clock   clock.Clock
	logger  *zap.Logger

	mu    sync.RWMutex
	token string
	user  *model.User
}

// NewStore returns an empty store. storage may be nil for a memory-only
// session.
func NewStore(storage Storage, clk clock.Clock, logger *zap.Logger) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{storage: storage, clock: clk, logger: logger.Named("session")}
}

// Load restores a persisted session. Incomplete or expired records are
// discarded and removed from storage.
func (s *Store) Load(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	rec, err := s.storage.Load(ctx)
	if err != nil {
		return err
	}
	if !rec.Complete() || s.expired(rec.Token) {
		if rec.Token != "" || rec.User != nil {
			s.logger.Info("discarding stale session")
			return s.storage.Clear(ctx)
		}
		return nil
	}

	s.mu.Lock()
	s.token, s.user = rec.Token, rec.User
	s.mu.Unlock()
	s.logger.Info("session restored", zap.String("user", rec.User.Username))
	return nil
}

// Set replaces the session. The in-memory value is updated even when
// persisting fails; the storage error is returned.
func (s *Store) Set(ctx context.Context, token string, user *model.User) error {
	if token == "" || user == nil {
		return ErrIncomplete
	}
	u := *user

	s.mu.Lock()
	s.token, s.user = token, &u
	s.mu.Unlock()

	if s.storage == nil {
		return nil
	}
	if err := s.storage.Save(ctx, Record{Token: token, User: &u}); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}

// Clear signs out. Memory is cleared first so readers never observe a token
// after Clear returns.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token, s.user = "", nil
	s.mu.Unlock()

	if s.storage == nil {
		return nil
	}
	if err := s.storage.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// Revoke clears the session only while token is still the current one, and
// reports whether it did. A rejection of a replaced credential must not sign
// out its successor.
func (s *Store) Revoke(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	if token == "" || s.token != token {
		s.mu.Unlock()
		return false, nil
	}
	s.token, s.user = "", nil
	s.mu.Unlock()

	if s.storage == nil {
		return true, nil
	}
	if err := s.storage.Clear(ctx); err != nil {
		return true, fmt.Errorf("clearing session: %w", err)
	}
	return true, nil
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the signed-in user, or nil.
func (s *Store) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Snapshot returns the token and user read under one lock.
func (s *Store) Snapshot() (string, *model.User) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return s.token, nil
	}
	u := *s.user
	return s.token, &u
}

// Valid reports whether a credential is present and, when it is a JWT, not
// yet expired. Opaque tokens are trusted until the backend rejects them.
func (s *Store) Valid() bool {
	token := s.Token()
	return token != "" && !s.expired(token)
}

func (s *Store) expired(token string) bool {
	claims, err := ParseClaims(token)
	if err != nil {
		return false
	}
	return claims.Expired(s.clock.Now())
}
