package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-labs/token-api/internal/models"
	appErrors "github.com/halcyon-labs/token-api/pkg/errors"
)

type principalAdminMock struct {
	createResp    *models.PrincipalInfo
	createErr     error
	deactivateErr error
	deactivatedID string
}

func (m *principalAdminMock) CreatePrincipal(ctx context.Context, req models.CreatePrincipalRequest) (*models.PrincipalInfo, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createResp, nil
}

func (m *principalAdminMock) DeactivatePrincipal(ctx context.Context, id string) error {
	m.deactivatedID = id
	return m.deactivateErr
}

type auditReaderMock struct {
	events     []models.AuditEvent
	lastFilter models.AuditFilter
	exportBody []byte
	exportType string
}

func (m *auditReaderMock) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error) {
	m.lastFilter = filter
	return m.events, nil
}

func (m *auditReaderMock) Export(ctx context.Context, filter models.AuditFilter, format string) ([]byte, string, error) {
	m.lastFilter = filter
	return m.exportBody, m.exportType, nil
}

func TestAdminHandlerCreatePrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAdminHandler(&principalAdminMock{
		createResp: &models.PrincipalInfo{ID: "p-1", Email: "new@example.com", Role: models.RoleUser, Active: true},
	}, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(models.CreatePrincipalRequest{Email: "new@example.com", Password: "longenough", FullName: "New Person"})
	req, _ := http.NewRequest(http.MethodPost, "/admin/principals", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.CreatePrincipal(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "new@example.com")
}

func TestAdminHandlerCreatePrincipalConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAdminHandler(&principalAdminMock{createErr: appErrors.ErrConflict}, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(models.CreatePrincipalRequest{Email: "dup@example.com", Password: "longenough", FullName: "Dup"})
	req, _ := http.NewRequest(http.MethodPost, "/admin/principals", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.CreatePrincipal(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminHandlerDeactivatePrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &principalAdminMock{}
	handler := NewAdminHandler(mock, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPatch, "/admin/principals/p-1/deactivate", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "p-1"}}

	handler.DeactivatePrincipal(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "p-1", mock.deactivatedID)
}

func TestAdminHandlerAuditDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAdminHandler(&principalAdminMock{}, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/admin/audit", nil)
	c.Request = req

	handler.ListAudit(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandlerListAuditParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	audit := &auditReaderMock{events: []models.AuditEvent{{ID: "ev-1", Action: models.AuditActionTheftDetected}}}
	handler := NewAdminHandler(&principalAdminMock{}, audit)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/admin/audit?owner_id=owner-1&action=TOKEN_THEFT_DETECTED&since=2026-08-01T00:00:00Z&limit=10", nil)
	c.Request = req

	handler.ListAudit(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "owner-1", audit.lastFilter.OwnerID)
	assert.Equal(t, "TOKEN_THEFT_DETECTED", audit.lastFilter.Action)
	assert.Equal(t, 10, audit.lastFilter.Limit)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), audit.lastFilter.Since.UTC())
}

func TestAdminHandlerListAuditRejectsBadSince(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAdminHandler(&principalAdminMock{}, &auditReaderMock{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/admin/audit?since=yesterday", nil)
	c.Request = req

	handler.ListAudit(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandlerExportAudit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	audit := &auditReaderMock{exportBody: []byte("time,action\n"), exportType: "text/csv"}
	handler := NewAdminHandler(&principalAdminMock{}, audit)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/admin/audit/export", nil)
	c.Request = req

	handler.ExportAudit(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "audit-trail.csv")
}
