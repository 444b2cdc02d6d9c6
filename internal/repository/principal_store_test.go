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

func newPrincipalStoreMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func principalColumns() []string {
	return []string{"id", "email", "password_hash", "full_name", "role", "active", "last_login", "created_at", "updated_at"}
}

func TestPrincipalStoreFindByEmail(t *testing.T) {
	db, mock, cleanup := newPrincipalStoreMock(t)
	defer cleanup()

	store := NewPostgresPrincipalStore(db)
	now := time.Now()
	rows := sqlmock.NewRows(principalColumns()).
		AddRow("p-1", "owner@example.com", "hash", "Owner One", "USER", true, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM principals WHERE email = $1")).
		WithArgs("owner@example.com").
		WillReturnRows(rows)

	p, err := store.FindByEmail(context.Background(), "owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, models.RoleUser, p.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPrincipalStoreFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newPrincipalStoreMock(t)
	defer cleanup()

	store := NewPostgresPrincipalStore(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM principals WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPrincipalStoreCreateFills(t *testing.T) {
	db, mock, cleanup := newPrincipalStoreMock(t)
	defer cleanup()

	store := NewPostgresPrincipalStore(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO principals")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &models.Principal{
		Email:        "new@example.com",
		PasswordHash: "hash",
		FullName:     "New Person",
		Role:         models.RoleUser,
		Active:       true,
	}
	require.NoError(t, store.Create(context.Background(), p))
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPrincipalStoreSetActive(t *testing.T) {
	db, mock, cleanup := newPrincipalStoreMock(t)
	defer cleanup()

	store := NewPostgresPrincipalStore(db)
	updatedAt := time.Now()
	query := regexp.QuoteMeta("UPDATE principals SET active = $2, updated_at = $3 WHERE id = $1")

	mock.ExpectExec(query).
		WithArgs("p-1", false, updatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs("missing", false, updatedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.SetActive(context.Background(), "p-1", false, updatedAt))

	err := store.SetActive(context.Background(), "missing", false, updatedAt)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
