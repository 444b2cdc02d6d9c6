package repository

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-labs/token-api/internal/models"
)

// MemoryTokenStore is a mutex-guarded in-memory TokenStore. It backs unit
// tests and single-process deployments; the mutex gives it the same atomic
// compare-and-set semantics the Postgres adapter gets from its UPDATE
// predicate.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]*models.RefreshToken)}
}

// Insert persists a refresh token record.
func (s *MemoryTokenStore) Insert(_ context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	clone := *token
	s.tokens[token.Token] = &clone
	return nil
}

// FindByToken returns a refresh token record by exact token string. Missing
// tokens surface sql.ErrNoRows so callers treat both adapters uniformly.
func (s *MemoryTokenStore) FindByToken(_ context.Context, token string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *rt
	return &clone, nil
}

// CompareAndRevoke flips revoked from false to true, reporting whether this
// call performed the flip.
func (s *MemoryTokenStore) CompareAndRevoke(_ context.Context, token string, revokedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.tokens[token]
	if !ok || rt.Revoked {
		return false, nil
	}
	rt.Revoked = true
	rt.RevokedAt = &revokedAt
	return true, nil
}

// RevokeAllByFamily marks every unrevoked token of the family revoked.
func (s *MemoryTokenStore) RevokeAllByFamily(_ context.Context, familyID string, revokedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rt := range s.tokens {
		if rt.FamilyID == familyID && !rt.Revoked {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

// RevokeAllByOwner marks every unrevoked token of the owner revoked.
func (s *MemoryTokenStore) RevokeAllByOwner(_ context.Context, ownerID string, revokedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rt := range s.tokens {
		if rt.OwnerID == ownerID && !rt.Revoked {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

// ListActiveByOwner returns the owner's unrevoked, unexpired tokens.
func (s *MemoryTokenStore) ListActiveByOwner(_ context.Context, ownerID string) ([]models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var out []models.RefreshToken
	for _, rt := range s.tokens {
		if rt.OwnerID == ownerID && !rt.Revoked && rt.ExpiresAt.After(now) {
			out = append(out, *rt)
		}
	}
	return out, nil
}

// DeleteExpiredRevoked removes revoked records that expired before the cutoff.
func (s *MemoryTokenStore) DeleteExpiredRevoked(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, rt := range s.tokens {
		if rt.Revoked && rt.ExpiresAt.Before(cutoff) {
			delete(s.tokens, key)
			n++
		}
	}
	return n, nil
}
