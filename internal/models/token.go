package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshToken represents one persisted credential in a rotation chain.
// The family_id links every token descended from a single login; at most one
// record per family may have revoked = false at any instant.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	OwnerID   string     `db:"owner_id" json:"owner_id"`
	FamilyID  string     `db:"family_id" json:"family_id"`
	Token     string     `db:"token" json:"-"`
	IssuedAt  time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	IPAddress string     `db:"ip_address" json:"ip_address"`
	UserAgent string     `db:"user_agent" json:"user_agent"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// LoginRequest holds credentials for the initial token grant.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RotateRequest exchanges a refresh token for a new pair.
type RotateRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RevokeRequest revokes a single refresh token.
type RevokeRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenPairResponse is the OAuth2-style response for login and refresh.
type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SessionInfo describes one active refresh-token session of a principal.
type SessionInfo struct {
	FamilyID  string    `json:"family_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
}

// AccessClaims represents the JWT payload for access tokens. Verification is
// a pure function of the signing key; no store lookup is required.
type AccessClaims struct {
	OwnerID  string        `json:"owner_id"`
	Role     PrincipalRole `json:"role"`
	Email    string        `json:"email"`
	FullName string        `json:"full_name"`
	jwt.RegisteredClaims
}
