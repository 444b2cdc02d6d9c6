package models

import "time"

// AuditAction constants represent token lifecycle events worth recording.
const (
	AuditActionLogin                = "LOGIN"
	AuditActionRotate               = "TOKEN_ROTATED"
	AuditActionRevoke               = "TOKEN_REVOKED"
	AuditActionRevokeAll            = "TOKENS_REVOKED_ALL"
	AuditActionTheftDetected        = "TOKEN_THEFT_DETECTED"
	AuditActionPrincipalCreate      = "PRINCIPAL_CREATED"
	AuditActionPrincipalDeactivated = "PRINCIPAL_DEACTIVATED"
)

// AuditEvent represents one audit trail record.
type AuditEvent struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   *string   `db:"owner_id" json:"owner_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	FamilyID  string    `db:"family_id" json:"family_id,omitempty"`
	Detail    string    `db:"detail" json:"detail,omitempty"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter captures criteria for listing audit events.
type AuditFilter struct {
	OwnerID string
	Action  string
	Since   time.Time
	Limit   int
}
