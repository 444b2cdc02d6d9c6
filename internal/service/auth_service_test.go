package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/halcyon-labs/token-api/internal/models"
	"github.com/halcyon-labs/token-api/internal/repository"
	appErrors "github.com/halcyon-labs/token-api/pkg/errors"
)

type fakeDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Duration
	addErr  error
}

func newFakeDenylist() *fakeDenylist {
	return &fakeDenylist{entries: make(map[string]time.Duration)}
}

func (d *fakeDenylist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.addErr != nil {
		return d.addErr
	}
	d.entries[jti] = ttl
	return nil
}

func (d *fakeDenylist) Contains(ctx context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[jti]
	return ok, nil
}

type authFixture struct {
	svc        *AuthService
	tokens     *TokenService
	store      *repository.MemoryTokenStore
	principals *fakePrincipalStore
	denylist   *fakeDenylist
	issuer     *Issuer
	principal  *models.Principal
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	principal := &models.Principal{
		ID:           uuid.NewString(),
		Email:        "owner@example.com",
		PasswordHash: string(hash),
		FullName:     "Owner One",
		Role:         models.RoleUser,
		Active:       true,
	}
	store := repository.NewMemoryTokenStore()
	principals := newFakePrincipalStore(principal)
	issuer, err := NewIssuer(IssuerConfig{Secret: "test-secret", Expiration: 15 * time.Minute})
	require.NoError(t, err)

	tokens := NewTokenService(store, principals, issuer, nil, nil, zap.NewNop(), TokenServiceConfig{RefreshTTL: time.Hour})
	denylist := newFakeDenylist()
	svc := NewAuthService(principals, tokens, issuer, denylist, nil, nil, zap.NewNop())

	return &authFixture{
		svc:        svc,
		tokens:     tokens,
		store:      store,
		principals: principals,
		denylist:   denylist,
		issuer:     issuer,
		principal:  principal,
	}
}

func TestLoginIssuesVerifiablePair(t *testing.T) {
	fx := newAuthFixture(t)

	pair, err := fx.svc.Login(context.Background(), models.LoginRequest{
		Email:    "owner@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)

	claims, err := fx.svc.VerifyAccess(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, fx.principal.ID, claims.OwnerID)
	assert.Equal(t, models.RoleUser, claims.Role)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.svc.Login(context.Background(), models.LoginRequest{
		Email:    "owner@example.com",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginUnknownEmailLooksLikeBadCredentials(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "correct horse",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginRejectsInactivePrincipal(t *testing.T) {
	fx := newAuthFixture(t)
	fx.principal.Active = false

	_, err := fx.svc.Login(context.Background(), models.LoginRequest{
		Email:    "owner@example.com",
		Password: "correct horse",
	})
	assert.ErrorIs(t, err, appErrors.ErrPrincipalInactive)
}

func TestLoginValidatesPayload(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRotateValidatesPayload(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.svc.Rotate(context.Background(), models.RotateRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestRevokeAllDenylistsCurrentAccessToken(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	pair, err := fx.svc.Login(ctx, models.LoginRequest{
		Email:    "owner@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	claims, err := fx.svc.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, fx.svc.RevokeAll(ctx, claims))

	// The refresh token is gone and the access token is blocked.
	_, err = fx.svc.Rotate(ctx, models.RotateRequest{RefreshToken: pair.RefreshToken})
	assert.ErrorIs(t, err, appErrors.ErrTokenTheftDetected)

	_, err = fx.svc.VerifyAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestRevokeAllWithoutDenylistStillRevokesTokens(t *testing.T) {
	fx := newAuthFixture(t)
	fx.svc = NewAuthService(fx.principals, fx.tokens, fx.issuer, nil, nil, nil, zap.NewNop())
	ctx := context.Background()

	pair, err := fx.svc.Login(ctx, models.LoginRequest{
		Email:    "owner@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	claims, err := fx.svc.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.NoError(t, fx.svc.RevokeAll(ctx, claims))

	sessions, err := fx.svc.Sessions(ctx, fx.principal.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	// Without a denylist the signed access token stays valid until expiry.
	_, err = fx.svc.VerifyAccess(ctx, pair.AccessToken)
	assert.NoError(t, err)
}

func TestVerifyAccessRejectsGarbage(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.svc.VerifyAccess(context.Background(), "not.a.jwt")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestCreatePrincipal(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	info, err := fx.svc.CreatePrincipal(ctx, models.CreatePrincipalRequest{
		Email:    "new@example.com",
		Password: "longenough",
		FullName: "New Person",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, info.Role)
	assert.True(t, info.Active)

	// The stored hash must verify against the submitted password.
	p, err := fx.principals.FindByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte("longenough")))

	_, err = fx.svc.CreatePrincipal(ctx, models.CreatePrincipalRequest{
		Email:    "new@example.com",
		Password: "longenough",
		FullName: "Duplicate",
	})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestCreatePrincipalValidatesPayload(t *testing.T) {
	fx := newAuthFixture(t)

	_, err := fx.svc.CreatePrincipal(context.Background(), models.CreatePrincipalRequest{
		Email:    "new@example.com",
		Password: "short",
		FullName: "New Person",
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestDeactivatePrincipalRevokesAllSessions(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()

	pair, err := fx.svc.Login(ctx, models.LoginRequest{
		Email:    "owner@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	require.NoError(t, fx.svc.DeactivatePrincipal(ctx, fx.principal.ID))
	assert.False(t, fx.principal.Active)

	_, err = fx.svc.Rotate(ctx, models.RotateRequest{RefreshToken: pair.RefreshToken})
	require.Error(t, err)

	err = fx.svc.DeactivatePrincipal(ctx, "missing-id")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestRevokeAllToleratesDenylistFailure(t *testing.T) {
	fx := newAuthFixture(t)
	fx.denylist.addErr = errors.New("redis down")
	ctx := context.Background()

	_, err := fx.svc.Login(ctx, models.LoginRequest{
		Email:    "owner@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	claims := &models.AccessClaims{
		OwnerID: fx.principal.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
		},
	}
	require.NoError(t, fx.svc.RevokeAll(ctx, claims))

	sessions, err := fx.svc.Sessions(ctx, fx.principal.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
