package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/halcyon-labs/token-api/internal/models"
)

// TokenStore is the capability interface over persisted refresh tokens.
// Implementations must provide read-your-writes consistency per token and an
// atomic compare-and-set on the revoked flag; the rotation protocol's
// exactly-one-winner guarantee rests on CompareAndRevoke alone.
type TokenStore interface {
	Insert(ctx context.Context, token *models.RefreshToken) error
	FindByToken(ctx context.Context, token string) (*models.RefreshToken, error)
	// CompareAndRevoke flips revoked from false to true for the given token
	// string. It returns true only when this call performed the flip.
	CompareAndRevoke(ctx context.Context, token string, revokedAt time.Time) (bool, error)
	RevokeAllByFamily(ctx context.Context, familyID string, revokedAt time.Time) (int64, error)
	RevokeAllByOwner(ctx context.Context, ownerID string, revokedAt time.Time) (int64, error)
	ListActiveByOwner(ctx context.Context, ownerID string) ([]models.RefreshToken, error)
	// DeleteExpiredRevoked garbage-collects revoked records whose expiry is
	// before the cutoff. Maintenance only, never needed for correctness.
	DeleteExpiredRevoked(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostgresTokenStore implements TokenStore on top of sqlx.
type PostgresTokenStore struct {
	db *sqlx.DB
}

// NewPostgresTokenStore creates a new instance of PostgresTokenStore.
func NewPostgresTokenStore(db *sqlx.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: db}
}

// Insert persists a refresh token record.
func (s *PostgresTokenStore) Insert(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	const query = `INSERT INTO refresh_tokens (id, owner_id, family_id, token, issued_at, expires_at, revoked, revoked_at, ip_address, user_agent) VALUES (:id, :owner_id, :family_id, :token, :issued_at, :expires_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := s.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// FindByToken returns a refresh token record by exact token string.
func (s *PostgresTokenStore) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, owner_id, family_id, token, issued_at, expires_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := s.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// CompareAndRevoke atomically flips revoked for an unrevoked token. The WHERE
// predicate makes concurrent callers race on the database row, so at most one
// observes an affected row count of one.
func (s *PostgresTokenStore) CompareAndRevoke(ctx context.Context, token string, revokedAt time.Time) (bool, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE token = $1 AND revoked = FALSE`
	res, err := s.db.ExecContext(ctx, query, token, revokedAt)
	if err != nil {
		return false, fmt.Errorf("compare and revoke: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("compare and revoke affected rows: %w", err)
	}
	return affected == 1, nil
}

// RevokeAllByFamily marks every unrevoked token of the family revoked.
func (s *PostgresTokenStore) RevokeAllByFamily(ctx context.Context, familyID string, revokedAt time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE family_id = $1 AND revoked = FALSE`
	res, err := s.db.ExecContext(ctx, query, familyID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke family: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke family affected rows: %w", err)
	}
	return affected, nil
}

// RevokeAllByOwner marks every unrevoked token of the owner revoked.
func (s *PostgresTokenStore) RevokeAllByOwner(ctx context.Context, ownerID string, revokedAt time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE owner_id = $1 AND revoked = FALSE`
	res, err := s.db.ExecContext(ctx, query, ownerID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke owner tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke owner tokens affected rows: %w", err)
	}
	return affected, nil
}

// ListActiveByOwner returns the owner's unrevoked, unexpired tokens.
func (s *PostgresTokenStore) ListActiveByOwner(ctx context.Context, ownerID string) ([]models.RefreshToken, error) {
	const query = `SELECT id, owner_id, family_id, token, issued_at, expires_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE owner_id = $1 AND revoked = FALSE AND expires_at > now() ORDER BY issued_at DESC`
	var tokens []models.RefreshToken
	if err := s.db.SelectContext(ctx, &tokens, query, ownerID); err != nil {
		return nil, fmt.Errorf("list active tokens: %w", err)
	}
	return tokens, nil
}

// DeleteExpiredRevoked removes revoked records that expired before the cutoff.
func (s *PostgresTokenStore) DeleteExpiredRevoked(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE revoked = TRUE AND expires_at < $1`
	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens affected rows: %w", err)
	}
	return affected, nil
}
