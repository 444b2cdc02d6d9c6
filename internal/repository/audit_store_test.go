package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-labs/token-api/internal/models"
)

func newAuditStoreMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAuditStoreInsertFills(t *testing.T) {
	db, mock, cleanup := newAuditStoreMock(t)
	defer cleanup()

	store := NewPostgresAuditStore(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	owner := "owner-1"
	event := &models.AuditEvent{
		OwnerID:  &owner,
		Action:   models.AuditActionLogin,
		FamilyID: "family-1",
	}
	require.NoError(t, store.Insert(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditStoreListFilters(t *testing.T) {
	db, mock, cleanup := newAuditStoreMock(t)
	defer cleanup()

	store := NewPostgresAuditStore(db)
	owner := "owner-1"
	since := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "action", "family_id", "detail", "ip_address", "user_agent", "created_at"}).
		AddRow("ev-1", owner, "TOKEN_THEFT_DETECTED", "family-1", "revoked family on token reuse", "203.0.113.9", "cli", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("owner_id = $1 AND action = $2 AND created_at >= $3 ORDER BY created_at DESC LIMIT 50")).
		WithArgs(owner, "TOKEN_THEFT_DETECTED", since).
		WillReturnRows(rows)

	events, err := store.List(context.Background(), models.AuditFilter{
		OwnerID: owner,
		Action:  "TOKEN_THEFT_DETECTED",
		Since:   since,
		Limit:   50,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "TOKEN_THEFT_DETECTED", events[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditStoreListDefaultLimit(t *testing.T) {
	db, mock, cleanup := newAuditStoreMock(t)
	defer cleanup()

	store := NewPostgresAuditStore(db)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "action", "family_id", "detail", "ip_address", "user_agent", "created_at"})
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT 200")).
		WillReturnRows(rows)

	_, err := store.List(context.Background(), models.AuditFilter{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
