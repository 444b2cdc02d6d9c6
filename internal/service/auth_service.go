package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/halcyon-labs/token-api/internal/models"
	"github.com/halcyon-labs/token-api/internal/repository"
	appErrors "github.com/halcyon-labs/token-api/pkg/errors"
)

// AuthService fronts the token coordinator with credential verification and
// principal administration. The rotation protocol itself lives entirely in
// TokenService.
type AuthService struct {
	principals repository.PrincipalStore
	tokens     *TokenService
	issuer     AccessIssuer
	denylist   Denylist
	audit      AuditRecorder
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAuthService constructs an AuthService. denylist and audit may be nil.
func NewAuthService(
	principals repository.PrincipalStore,
	tokens *TokenService,
	issuer AccessIssuer,
	denylist Denylist,
	audit AuditRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		principals: principals,
		tokens:     tokens,
		issuer:     issuer,
		denylist:   denylist,
		audit:      audit,
		validator:  validate,
		logger:     logger,
	}
}

// Login authenticates a principal and opens a new token family.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.TokenPairResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	p, err := s.principals.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "principal lookup failed")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if !p.Active {
		return nil, appErrors.Clone(appErrors.ErrPrincipalInactive, "")
	}

	pair, err := s.tokens.IssueInitialPair(ctx, p, ClientMeta{IP: req.IP, UserAgent: req.UserAgent})
	if err != nil {
		return nil, err
	}

	if err := s.principals.UpdateLastLogin(ctx, p.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	return pair, nil
}

// Rotate exchanges a refresh token for a new pair.
func (s *AuthService) Rotate(ctx context.Context, req models.RotateRequest) (*models.TokenPairResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}
	return s.tokens.Rotate(ctx, req.RefreshToken, ClientMeta{IP: req.IP, UserAgent: req.UserAgent})
}

// Revoke revokes a single refresh token, idempotently.
func (s *AuthService) Revoke(ctx context.Context, req models.RevokeRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid revoke payload")
	}
	_, err := s.tokens.Revoke(ctx, req.RefreshToken)
	return err
}

// RevokeAll logs the caller out everywhere. When the denylist is enabled the
// presented access token is blocked for its remaining lifetime as well, so
// "log out everywhere" takes effect before the JWT expires.
func (s *AuthService) RevokeAll(ctx context.Context, claims *models.AccessClaims) error {
	if _, err := s.tokens.RevokeAllForOwner(ctx, claims.OwnerID); err != nil {
		return err
	}

	if s.denylist != nil && claims.ID != "" && claims.ExpiresAt != nil {
		remaining := time.Until(claims.ExpiresAt.Time)
		if err := s.denylist.Add(ctx, claims.ID, remaining); err != nil {
			s.logger.Warn("failed to denylist access token", zap.Error(err))
		}
	}

	return nil
}

// Sessions lists the caller's active refresh-token sessions.
func (s *AuthService) Sessions(ctx context.Context, ownerID string) ([]models.SessionInfo, error) {
	return s.tokens.Sessions(ctx, ownerID)
}

// VerifyAccess validates an access token and, when the denylist is enabled,
// rejects revoked jtis.
func (s *AuthService) VerifyAccess(ctx context.Context, tokenString string) (*models.AccessClaims, error) {
	claims, err := s.issuer.VerifyAccess(tokenString)
	if err != nil {
		return nil, err
	}

	if s.denylist != nil && claims.ID != "" {
		blocked, err := s.denylist.Contains(ctx, claims.ID)
		if err != nil {
			s.logger.Warn("denylist lookup failed", zap.Error(err))
		} else if blocked {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "access token revoked")
		}
	}

	return claims, nil
}

// CreatePrincipal provisions a new account (admin only).
func (s *AuthService) CreatePrincipal(ctx context.Context, req models.CreatePrincipalRequest) (*models.PrincipalInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid principal payload")
	}

	if _, err := s.principals.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "principal lookup failed")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	p := &models.Principal{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         role,
		Active:       true,
	}
	if err := s.principals.Create(ctx, p); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to create principal")
	}

	if s.audit != nil {
		s.audit.Record(&models.AuditEvent{OwnerID: &p.ID, Action: models.AuditActionPrincipalCreate})
	}

	info := p.Info()
	return &info, nil
}

// DeactivatePrincipal disables an account and revokes every one of its
// refresh tokens, so no further rotation can succeed for it.
func (s *AuthService) DeactivatePrincipal(ctx context.Context, id string) error {
	if err := s.principals.SetActive(ctx, id, false, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "principal not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to deactivate principal")
	}

	if _, err := s.tokens.RevokeAllForOwner(ctx, id); err != nil {
		return err
	}

	if s.audit != nil {
		s.audit.Record(&models.AuditEvent{OwnerID: &id, Action: models.AuditActionPrincipalDeactivated})
	}

	return nil
}
