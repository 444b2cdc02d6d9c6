package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/halcyon-labs/token-api/internal/models"
	appErrors "github.com/halcyon-labs/token-api/pkg/errors"
)

// opaqueTokenBytes is the entropy of a refresh token string. 32 bytes gives
// 256 bits, well past the point where guessing is feasible.
const opaqueTokenBytes = 32

// AccessIssuer mints and verifies signed access tokens and generates opaque
// refresh token strings.
type AccessIssuer interface {
	GenerateOpaque() (string, error)
	IssueAccess(p *models.Principal) (token string, jti string, err error)
	VerifyAccess(tokenString string) (*models.AccessClaims, error)
	AccessTTL() time.Duration
}

// IssuerConfig configures access token signing.
type IssuerConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
	Audience   []string
}

// Issuer implements AccessIssuer with HS256 JWTs.
type Issuer struct {
	cfg IssuerConfig
}

// NewIssuer validates the signing configuration. A missing secret is a fatal
// configuration error surfaced here, never per request.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("issuer: signing secret is not configured")
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = 15 * time.Minute
	}
	return &Issuer{cfg: cfg}, nil
}

// GenerateOpaque returns a cryptographically random refresh token string.
func (i *Issuer) GenerateOpaque() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate opaque token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IssueAccess returns a signed access token for the principal along with its
// jti claim.
func (i *Issuer) IssueAccess(p *models.Principal) (string, string, error) {
	issuedAt := time.Now().UTC()
	jti := uuid.NewString()
	claims := &models.AccessClaims{
		OwnerID:  p.ID,
		Role:     p.Role,
		Email:    p.Email,
		FullName: p.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    i.cfg.Issuer,
			Subject:   p.ID,
			Audience:  i.cfg.Audience,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.cfg.Expiration)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, jti, nil
}

// VerifyAccess parses and validates an access token returning the claims.
// The check is a pure function of the signing key and the clock.
func (i *Issuer) VerifyAccess(tokenString string) (*models.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(i.cfg.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid access token")
	}

	claims, ok := token.Claims.(*models.AccessClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid access token claims")
	}

	return claims, nil
}

// AccessTTL exposes the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.cfg.Expiration
}
