package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyon-labs/token-api/internal/models"
	"github.com/halcyon-labs/token-api/internal/repository"
	appErrors "github.com/halcyon-labs/token-api/pkg/errors"
)

// AuditRecorder receives lifecycle events. Implementations must not block
// the caller; the default recorder hands events to a background queue.
type AuditRecorder interface {
	Record(event *models.AuditEvent)
}

// tokenMetrics is the slice of instrumentation the coordinator needs.
type tokenMetrics interface {
	ObserveRotation(outcome string)
	ObserveTheftCascade(familySize int64)
	ObservePurge(count int64)
}

// ClientMeta carries request provenance recorded on issued tokens.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// TokenServiceConfig tunes the refresh token lifecycle.
type TokenServiceConfig struct {
	RefreshTTL time.Duration
}

// TokenService coordinates the single-use, family-linked rotation protocol:
// every rotation consumes the presented token and issues a successor in the
// same family, and reuse of a consumed token revokes the entire family.
type TokenService struct {
	tokens     repository.TokenStore
	principals repository.PrincipalStore
	issuer     AccessIssuer
	audit      AuditRecorder
	metrics    tokenMetrics
	logger     *zap.Logger
	cfg        TokenServiceConfig
}

// NewTokenService constructs the coordinator. audit and metrics may be nil.
func NewTokenService(
	tokens repository.TokenStore,
	principals repository.PrincipalStore,
	issuer AccessIssuer,
	audit AuditRecorder,
	metrics tokenMetrics,
	logger *zap.Logger,
	cfg TokenServiceConfig,
) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{
		tokens:     tokens,
		principals: principals,
		issuer:     issuer,
		audit:      audit,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// IssueInitialPair starts a fresh token family for an authenticated
// principal and returns the access/refresh pair.
func (s *TokenService) IssueInitialPair(ctx context.Context, p *models.Principal, meta ClientMeta) (*models.TokenPairResponse, error) {
	if !p.Active {
		return nil, appErrors.Clone(appErrors.ErrPrincipalInactive, "")
	}

	familyID := uuid.NewString()
	pair, err := s.issuePair(ctx, p, familyID, meta)
	if err != nil {
		return nil, err
	}

	s.record(&models.AuditEvent{
		OwnerID:   &p.ID,
		Action:    models.AuditActionLogin,
		FamilyID:  familyID,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	})

	return pair, nil
}

// Rotate exchanges a presented refresh token for a new pair. Reuse of an
// already-consumed token is treated as theft: the whole family is revoked
// before the error is surfaced, forcing the legitimate holder to log in
// again. Legitimate client retries after a lost response hit the same path;
// that false positive is an accepted property of the protocol.
func (s *TokenService) Rotate(ctx context.Context, presented string, meta ClientMeta) (*models.TokenPairResponse, error) {
	now := time.Now().UTC()

	rt, err := s.tokens.FindByToken(ctx, presented)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.observeRotation("invalid")
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "token lookup failed")
	}

	// Expiry is checked before the revoked flag so a stale token can never
	// trigger the family cascade.
	if rt.Expired(now) {
		s.observeRotation("expired")
		return nil, appErrors.Clone(appErrors.ErrExpiredToken, "")
	}

	if rt.Revoked {
		return nil, s.handleTheft(ctx, rt, meta, now)
	}

	p, err := s.principals.FindByID(ctx, rt.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.observeRotation("inactive")
			return nil, appErrors.Clone(appErrors.ErrPrincipalInactive, "principal no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "principal lookup failed")
	}
	if !p.Active {
		s.observeRotation("inactive")
		return nil, appErrors.Clone(appErrors.ErrPrincipalInactive, "")
	}

	// The compare-and-set is the only synchronisation point: of N rotations
	// racing on the same token, exactly one flips the flag. Losers observe a
	// consumed token, which is indistinguishable from theft.
	won, err := s.tokens.CompareAndRevoke(ctx, rt.Token, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "token revocation failed")
	}
	if !won {
		rt.Revoked = true
		return nil, s.handleTheft(ctx, rt, meta, now)
	}

	pair, err := s.issuePair(ctx, p, rt.FamilyID, meta)
	if err != nil {
		return nil, err
	}

	s.observeRotation("ok")
	s.record(&models.AuditEvent{
		OwnerID:   &rt.OwnerID,
		Action:    models.AuditActionRotate,
		FamilyID:  rt.FamilyID,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	})

	return pair, nil
}

// Revoke marks a single token revoked. Revoking an unknown or already
// revoked token is a no-op; the boolean reports whether a record changed.
func (s *TokenService) Revoke(ctx context.Context, token string) (bool, error) {
	changed, err := s.tokens.CompareAndRevoke(ctx, token, time.Now().UTC())
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "token revocation failed")
	}
	if changed {
		s.record(&models.AuditEvent{Action: models.AuditActionRevoke})
	}
	return changed, nil
}

// RevokeAllForOwner revokes every active token of the owner ("log out
// everywhere"). Returns the number of revoked records.
func (s *TokenService) RevokeAllForOwner(ctx context.Context, ownerID string) (int64, error) {
	count, err := s.tokens.RevokeAllByOwner(ctx, ownerID, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "owner revocation failed")
	}
	if count > 0 {
		s.record(&models.AuditEvent{OwnerID: &ownerID, Action: models.AuditActionRevokeAll})
	}
	return count, nil
}

// PurgeExpired garbage-collects revoked records that expired before the
// cutoff. Pure maintenance; the protocol never depends on it.
func (s *TokenService) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.tokens.DeleteExpiredRevoked(ctx, cutoff)
}

// StartPurgeLoop boots a goroutine that purges on an interval until the
// context is cancelled. Retention is how long revoked records are kept past
// their expiry for audit inspection.
func (s *TokenService) StartPurgeLoop(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-retention)
				count, err := s.PurgeExpired(ctx, cutoff)
				if err != nil {
					s.logger.Warn("token purge failed", zap.Error(err))
					continue
				}
				if count > 0 {
					s.logger.Info("purged expired tokens", zap.Int64("count", count))
					if s.metrics != nil {
						s.metrics.ObservePurge(count)
					}
				}
			}
		}
	}()
}

// Sessions lists the owner's active refresh-token sessions.
func (s *TokenService) Sessions(ctx context.Context, ownerID string) ([]models.SessionInfo, error) {
	tokens, err := s.tokens.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "session listing failed")
	}
	sessions := make([]models.SessionInfo, 0, len(tokens))
	for _, rt := range tokens {
		sessions = append(sessions, models.SessionInfo{
			FamilyID:  rt.FamilyID,
			IssuedAt:  rt.IssuedAt,
			ExpiresAt: rt.ExpiresAt,
			IPAddress: rt.IPAddress,
			UserAgent: rt.UserAgent,
		})
	}
	return sessions, nil
}

// handleTheft revokes the whole family, records the event, and returns the
// theft error. The cascade is a deliberate defensive action and always runs
// even though the overall call fails.
func (s *TokenService) handleTheft(ctx context.Context, rt *models.RefreshToken, meta ClientMeta, now time.Time) error {
	count, err := s.tokens.RevokeAllByFamily(ctx, rt.FamilyID, now)
	if err != nil {
		// The reuse signal still stands; surface theft, not the infra error.
		s.logger.Error("family revocation failed during theft handling",
			zap.String("family_id", rt.FamilyID), zap.Error(err))
	}

	s.logger.Warn("refresh token reuse detected",
		zap.String("owner_id", rt.OwnerID),
		zap.String("family_id", rt.FamilyID),
		zap.Int64("revoked", count),
		zap.String("ip", meta.IP),
	)
	s.observeRotation("theft")
	if s.metrics != nil {
		s.metrics.ObserveTheftCascade(count)
	}
	s.record(&models.AuditEvent{
		OwnerID:   &rt.OwnerID,
		Action:    models.AuditActionTheftDetected,
		FamilyID:  rt.FamilyID,
		Detail:    "revoked family on token reuse",
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	})

	return appErrors.Clone(appErrors.ErrTokenTheftDetected, "")
}

func (s *TokenService) issuePair(ctx context.Context, p *models.Principal, familyID string, meta ClientMeta) (*models.TokenPairResponse, error) {
	opaque, err := s.issuer.GenerateOpaque()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate refresh token")
	}

	now := time.Now().UTC()
	record := &models.RefreshToken{
		ID:        uuid.NewString(),
		OwnerID:   p.ID,
		FamilyID:  familyID,
		Token:     opaque,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := s.tokens.Insert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "failed to persist refresh token")
	}

	access, _, err := s.issuer.IssueAccess(p)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue access token")
	}

	return &models.TokenPairResponse{
		AccessToken:  access,
		RefreshToken: opaque,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}

func (s *TokenService) record(event *models.AuditEvent) {
	if s.audit != nil {
		s.audit.Record(event)
	}
}

func (s *TokenService) observeRotation(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveRotation(outcome)
	}
}
