package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/halcyon-labs/token-api/internal/models"
)

// AuditStore persists and queries the audit trail.
type AuditStore interface {
	Insert(ctx context.Context, event *models.AuditEvent) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error)
}

// PostgresAuditStore implements AuditStore over sqlx.
type PostgresAuditStore struct {
	db *sqlx.DB
}

// NewPostgresAuditStore creates a new instance of PostgresAuditStore.
func NewPostgresAuditStore(db *sqlx.DB) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

// Insert stores one audit event.
func (s *PostgresAuditStore) Insert(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_events (id, owner_id, action, family_id, detail, ip_address, user_agent, created_at) VALUES (:id, :owner_id, :action, :family_id, :detail, :ip_address, :user_agent, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List returns audit events matching the filter, most recent first.
func (s *PostgresAuditStore) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error) {
	baseQuery := `SELECT id, owner_id, action, family_id, detail, ip_address, user_agent, created_at FROM audit_events WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)+1))
		args = append(args, filter.Action)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, filter.Since)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	baseQuery += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	var events []models.AuditEvent
	if err := s.db.SelectContext(ctx, &events, baseQuery, args...); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
