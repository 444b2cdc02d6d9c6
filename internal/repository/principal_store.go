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

// PrincipalStore provides access to the principal directory.
type PrincipalStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	FindByID(ctx context.Context, id string) (*models.Principal, error)
	Create(ctx context.Context, p *models.Principal) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
}

// PostgresPrincipalStore implements PrincipalStore over sqlx.
type PostgresPrincipalStore struct {
	db *sqlx.DB
}

// NewPostgresPrincipalStore creates a new instance of PostgresPrincipalStore.
func NewPostgresPrincipalStore(db *sqlx.DB) *PostgresPrincipalStore {
	return &PostgresPrincipalStore{db: db}
}

// FindByEmail returns a principal by email address.
func (s *PostgresPrincipalStore) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at FROM principals WHERE email = $1 LIMIT 1`
	var p models.Principal
	if err := s.db.GetContext(ctx, &p, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find principal by email: %w", err)
	}
	return &p, nil
}

// FindByID returns a principal by identifier.
func (s *PostgresPrincipalStore) FindByID(ctx context.Context, id string) (*models.Principal, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at FROM principals WHERE id = $1 LIMIT 1`
	var p models.Principal
	if err := s.db.GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find principal by id: %w", err)
	}
	return &p, nil
}

// Create inserts a new principal.
func (s *PostgresPrincipalStore) Create(ctx context.Context, p *models.Principal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	const query = `INSERT INTO principals (id, email, password_hash, full_name, role, active, last_login, created_at, updated_at) VALUES (:id, :email, :password_hash, :full_name, :role, :active, :last_login, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("create principal: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a principal.
func (s *PostgresPrincipalStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE principals SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// SetActive toggles the active flag for a principal.
func (s *PostgresPrincipalStore) SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	const query = `UPDATE principals SET active = $2, updated_at = $3 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id, active, updatedAt)
	if err != nil {
		return fmt.Errorf("set principal active: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set principal active affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
