package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/halcyon-labs/token-api/internal/models"
	appErrors "github.com/halcyon-labs/token-api/pkg/errors"
	"github.com/halcyon-labs/token-api/pkg/response"
)

type principalAdmin interface {
	CreatePrincipal(ctx context.Context, req models.CreatePrincipalRequest) (*models.PrincipalInfo, error)
	DeactivatePrincipal(ctx context.Context, id string) error
}

type auditReader interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error)
	Export(ctx context.Context, filter models.AuditFilter, format string) ([]byte, string, error)
}

// AdminHandler serves principal administration and the audit trail.
type AdminHandler struct {
	auth  principalAdmin
	audit auditReader
}

// NewAdminHandler creates a new handler. audit may be nil when the trail is
// disabled; the audit endpoints then return 404.
func NewAdminHandler(auth principalAdmin, audit auditReader) *AdminHandler {
	return &AdminHandler{auth: auth, audit: audit}
}

// CreatePrincipal godoc
// @Summary Create principal
// @Description Provision a new account
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body models.CreatePrincipalRequest true "Principal payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/principals [post]
func (h *AdminHandler) CreatePrincipal(c *gin.Context) {
	var req models.CreatePrincipalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid principal payload"))
		return
	}

	info, err := h.auth.CreatePrincipal(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, info)
}

// DeactivatePrincipal godoc
// @Summary Deactivate principal
// @Description Disable an account and revoke all of its refresh tokens
// @Tags Admin
// @Produce json
// @Param id path string true "Principal ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/principals/{id}/deactivate [patch]
func (h *AdminHandler) DeactivatePrincipal(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "principal id required"))
		return
	}

	if err := h.auth.DeactivatePrincipal(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ListAudit godoc
// @Summary List audit events
// @Description Token lifecycle audit trail, most recent first
// @Tags Admin
// @Produce json
// @Param owner_id query string false "Filter by owner"
// @Param action query string false "Filter by action"
// @Param since query string false "RFC3339 lower bound"
// @Param limit query int false "Max rows"
// @Success 200 {object} response.Envelope
// @Router /admin/audit [get]
func (h *AdminHandler) ListAudit(c *gin.Context) {
	if h.audit == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "audit trail disabled"))
		return
	}

	filter, err := auditFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	events, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, events)
}

// ExportAudit godoc
// @Summary Export audit events
// @Description Download the audit trail as csv or pdf
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} binary
// @Router /admin/audit/export [get]
func (h *AdminHandler) ExportAudit(c *gin.Context) {
	if h.audit == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "audit trail disabled"))
		return
	}

	filter, err := auditFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := c.Query("format")
	body, contentType, err := h.audit.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	ext := "csv"
	if format == "pdf" {
		ext = "pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="audit-trail.`+ext+`"`)
	c.Data(http.StatusOK, contentType, body)
}

func auditFilterFromQuery(c *gin.Context) (models.AuditFilter, error) {
	filter := models.AuditFilter{
		OwnerID: c.Query("owner_id"),
		Action:  c.Query("action"),
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "since must be RFC3339")
		}
		filter.Since = since
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, appErrors.Clone(appErrors.ErrValidation, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}

	return filter, nil
}
