package models

import "time"

// PrincipalRole represents the available roles.
type PrincipalRole string

const (
	RoleAdmin PrincipalRole = "ADMIN"
	RoleUser  PrincipalRole = "USER"
)

// Principal represents an authenticated account stored in the principals table.
type Principal struct {
	ID           string        `db:"id" json:"id"`
	Email        string        `db:"email" json:"email"`
	PasswordHash string        `db:"password_hash" json:"-"`
	FullName     string        `db:"full_name" json:"full_name"`
	Role         PrincipalRole `db:"role" json:"role"`
	Active       bool          `db:"active" json:"active"`
	LastLogin    *time.Time    `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// PrincipalInfo describes a principal in API responses.
type PrincipalInfo struct {
	ID       string        `json:"id"`
	Email    string        `json:"email"`
	FullName string        `json:"full_name"`
	Role     PrincipalRole `json:"role"`
	Active   bool          `json:"active"`
}

// Info converts a Principal into its response shape.
func (p *Principal) Info() PrincipalInfo {
	return PrincipalInfo{ID: p.ID, Email: p.Email, FullName: p.FullName, Role: p.Role, Active: p.Active}
}

// CreatePrincipalRequest is the admin payload for provisioning an account.
type CreatePrincipalRequest struct {
	Email    string        `json:"email" validate:"required,email"`
	Password string        `json:"password" validate:"required,min=8"`
	FullName string        `json:"full_name" validate:"required"`
	Role     PrincipalRole `json:"role" validate:"omitempty,oneof=ADMIN USER"`
}
