package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-labs/token-api/internal/models"
)

func newTokenStoreMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func tokenColumns() []string {
	return []string{"id", "owner_id", "family_id", "token", "issued_at", "expires_at", "revoked", "revoked_at", "ip_address", "user_agent"}
}

func TestTokenStoreInsertGeneratesID(t *testing.T) {
	db, mock, cleanup := newTokenStoreMock(t)
	defer cleanup()

	store := NewPostgresTokenStore(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rt := &models.RefreshToken{
		OwnerID:   "owner-1",
		FamilyID:  "family-1",
		Token:     "opaque-1",
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Insert(context.Background(), rt))
	assert.NotEmpty(t, rt.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenStoreFindByToken(t *testing.T) {
	db, mock, cleanup := newTokenStoreMock(t)
	defer cleanup()

	store := NewPostgresTokenStore(db)
	now := time.Now()
	rows := sqlmock.NewRows(tokenColumns()).
		AddRow("tok-1", "owner-1", "family-1", "opaque-1", now, now.Add(time.Hour), false, nil, "10.0.0.1", "cli")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner_id, family_id, token, issued_at, expires_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1")).
		WithArgs("opaque-1").
		WillReturnRows(rows)

	rt, err := store.FindByToken(context.Background(), "opaque-1")
	require.NoError(t, err)
	assert.Equal(t, "family-1", rt.FamilyID)
	assert.False(t, rt.Revoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenStoreFindByTokenMissing(t *testing.T) {
	db, mock, cleanup := newTokenStoreMock(t)
	defer cleanup()

	store := NewPostgresTokenStore(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token = $1")).
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByToken(context.Background(), "unknown")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenStoreCompareAndRevokeWinsOnce(t *testing.T) {
	db, mock, cleanup := newTokenStoreMock(t)
	defer cleanup()

	store := NewPostgresTokenStore(db)
	revokedAt := time.Now()
	query := regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE token = $1 AND revoked = FALSE")

	mock.ExpectExec(query).
		WithArgs("opaque-1", revokedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs("opaque-1", revokedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := store.CompareAndRevoke(context.Background(), "opaque-1", revokedAt)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.CompareAndRevoke(context.Background(), "opaque-1", revokedAt)
	require.NoError(t, err)
	assert.False(t, won, "a second flip must lose the compare-and-set")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenStoreRevokeAllByFamily(t *testing.T) {
	db, mock, cleanup := newTokenStoreMock(t)
	defer cleanup()

	store := NewPostgresTokenStore(db)
	revokedAt := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE family_id = $1 AND revoked = FALSE")).
		WithArgs("family-1", revokedAt).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.RevokeAllByFamily(context.Background(), "family-1", revokedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenStoreRevokeAllByOwner(t *testing.T) {
	db, mock, cleanup := newTokenStoreMock(t)
	defer cleanup()

	store := NewPostgresTokenStore(db)
	revokedAt := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE owner_id = $1 AND revoked = FALSE")).
		WithArgs("owner-1", revokedAt).
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := store.RevokeAllByOwner(context.Background(), "owner-1", revokedAt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenStoreListActiveByOwner(t *testing.T) {
	db, mock, cleanup := newTokenStoreMock(t)
	defer cleanup()

	store := NewPostgresTokenStore(db)
	now := time.Now()
	rows := sqlmock.NewRows(tokenColumns()).
		AddRow("tok-2", "owner-1", "family-2", "opaque-2", now, now.Add(time.Hour), false, nil, "10.0.0.2", "web").
		AddRow("tok-1", "owner-1", "family-1", "opaque-1", now.Add(-time.Minute), now.Add(time.Hour), false, nil, "10.0.0.1", "cli")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE owner_id = $1 AND revoked = FALSE AND expires_at > now()")).
		WithArgs("owner-1").
		WillReturnRows(rows)

	tokens, err := store.ListActiveByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "family-2", tokens[0].FamilyID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenStoreDeleteExpiredRevoked(t *testing.T) {
	db, mock, cleanup := newTokenStoreMock(t)
	defer cleanup()

	store := NewPostgresTokenStore(db)
	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE revoked = TRUE AND expires_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	count, err := store.DeleteExpiredRevoked(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	require.NoError(t, mock.ExpectationsWereMet())
}
