package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/halcyon-labs/token-api/internal/middleware"
	"github.com/halcyon-labs/token-api/internal/models"
	appErrors "github.com/halcyon-labs/token-api/pkg/errors"
	"github.com/halcyon-labs/token-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.TokenPairResponse, error)
	Rotate(ctx context.Context, req models.RotateRequest) (*models.TokenPairResponse, error)
	Revoke(ctx context.Context, req models.RevokeRequest) error
	RevokeAll(ctx context.Context, claims *models.AccessClaims) error
	Sessions(ctx context.Context, ownerID string) ([]models.SessionInfo, error)
}

// TokenHandler wires the token lifecycle endpoints to the auth service.
type TokenHandler struct {
	service authService
}

// NewTokenHandler creates a new handler.
func NewTokenHandler(svc authService) *TokenHandler {
	return &TokenHandler{service: svc}
}

// Login godoc
// @Summary Issue initial token pair
// @Description Authenticate by email and password, opening a new token family
// @Tags Tokens
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /token [post]
func (h *TokenHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res)
}

// Refresh godoc
// @Summary Rotate refresh token
// @Description Exchange a refresh token for a new access/refresh pair
// @Tags Tokens
// @Accept json
// @Produce json
// @Param payload body models.RotateRequest true "Refresh payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /token/refresh [post]
func (h *TokenHandler) Refresh(c *gin.Context) {
	var req models.RotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid refresh payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Rotate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res)
}

// Revoke godoc
// @Summary Revoke one refresh token
// @Description Revoke a single refresh token; unknown tokens are a no-op
// @Tags Tokens
// @Accept json
// @Produce json
// @Param payload body models.RevokeRequest true "Revoke payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /token/revoke [post]
func (h *TokenHandler) Revoke(c *gin.Context) {
	var req models.RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "refresh token required"))
		return
	}

	if err := h.service.Revoke(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// RevokeAll godoc
// @Summary Log out everywhere
// @Description Revoke every refresh token of the authenticated principal
// @Tags Tokens
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /token/revoke-all [post]
func (h *TokenHandler) RevokeAll(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.RevokeAll(c.Request.Context(), claims); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Sessions godoc
// @Summary List active sessions
// @Description Active refresh-token sessions for the authenticated principal
// @Tags Tokens
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /sessions [get]
func (h *TokenHandler) Sessions(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	sessions, err := h.service.Sessions(c.Request.Context(), claims.OwnerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sessions)
}

// Me godoc
// @Summary Get current principal
// @Description Returns the authenticated principal's info from claims
// @Tags Tokens
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /me [get]
func (h *TokenHandler) Me(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	info := models.PrincipalInfo{
		ID:       claims.OwnerID,
		Email:    claims.Email,
		FullName: claims.FullName,
		Role:     claims.Role,
		Active:   true,
	}

	response.JSON(c, http.StatusOK, info)
}
