package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/response"
)

type adminService interface {
	Clearances(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceListItem, *models.Pagination, error)
	ExportClearances(ctx context.Context, filter models.ClearanceFilter) ([]byte, string, error)
	UpdateRemarks(ctx context.Context, actorID, clearanceID string, req dto.UpdateRemarksRequest, meta service.RequestMeta) (*models.Clearance, error)
	Officers(ctx context.Context, departmentID, search string, page, pageSize int) ([]models.User, *models.Pagination, error)
	CreateOfficer(ctx context.Context, actorID string, req dto.CreateOfficerRequest, meta service.RequestMeta) (*models.User, error)
	AuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error)
}

type dashboardService interface {
	Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error)
}

// AdminHandler serves the registrar's console.
type AdminHandler struct {
	service   adminService
	dashboard dashboardService
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(svc adminService, dashboard dashboardService) *AdminHandler {
	return &AdminHandler{service: svc, dashboard: dashboard}
}

// Dashboard godoc
// @Summary Registry-wide clearance summary
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/dashboard [get]
func (h *AdminHandler) Dashboard(c *gin.Context) {
	if h.dashboard == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.dashboard.Admin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	middleware.SetMeta(c, "processing_time_ms", time.Since(start).Milliseconds())
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// Clearances godoc
// @Summary Search clearances
// @Tags Admin
// @Produce json
// @Param search query string false "Name or matric number"
// @Param status query string false "Clearance status"
// @Param departmentId query string false "Current department"
// @Success 200 {object} response.Envelope
// @Router /admin/clearances [get]
func (h *AdminHandler) Clearances(c *gin.Context) {
	items, pagination, err := h.service.Clearances(c.Request.Context(), clearanceFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Export godoc
// @Summary Export clearances as CSV
// @Tags Admin
// @Produce text/csv
// @Success 200 {file} file
// @Router /admin/clearances/export [get]
func (h *AdminHandler) Export(c *gin.Context) {
	body, filename, err := h.service.ExportClearances(c.Request.Context(), clearanceFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "text/csv; charset=utf-8", body)
}

// UpdateRemarks godoc
// @Summary Set registrar remarks on a clearance
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Clearance ID"
// @Param payload body dto.UpdateRemarksRequest true "Remarks"
// @Success 200 {object} response.Envelope
// @Router /admin/clearances/{id}/remarks [patch]
func (h *AdminHandler) UpdateRemarks(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateRemarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid remarks payload"))
		return
	}
	clearance, err := h.service.UpdateRemarks(c.Request.Context(), claims.UserID, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, clearance, nil)
}

// Officers godoc
// @Summary List officers
// @Tags Admin
// @Produce json
// @Param departmentId query string false "Department"
// @Success 200 {object} response.Envelope
// @Router /admin/officers [get]
func (h *AdminHandler) Officers(c *gin.Context) {
	page, size := pageParams(c)
	users, pagination, err := h.service.Officers(c.Request.Context(), c.Query("departmentId"), c.Query("search"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// CreateOfficer godoc
// @Summary Provision a department officer
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.CreateOfficerRequest true "Officer"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/officers [post]
func (h *AdminHandler) CreateOfficer(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateOfficerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid officer payload"))
		return
	}
	user, err := h.service.CreateOfficer(c.Request.Context(), claims.UserID, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// AuditLogs godoc
// @Summary Browse the audit trail
// @Tags Admin
// @Produce json
// @Param action query string false "Action"
// @Param userId query string false "Actor"
// @Param clearanceId query string false "Clearance"
// @Success 200 {object} response.Envelope
// @Router /admin/audit-logs [get]
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	page, size := pageParams(c)
	logs, pagination, err := h.service.AuditLogs(c.Request.Context(), models.AuditLogFilter{
		Action:      strings.TrimSpace(c.Query("action")),
		UserID:      c.Query("userId"),
		ClearanceID: c.Query("clearanceId"),
		Page:        page,
		PageSize:    size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

func clearanceFilter(c *gin.Context) models.ClearanceFilter {
	page, size := pageParams(c)
	filter := models.ClearanceFilter{
		Search:       strings.TrimSpace(c.Query("search")),
		DepartmentID: c.Query("departmentId"),
		Page:         page,
		PageSize:     size,
	}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		s := models.ClearanceStatus(status)
		filter.Status = &s
	}
	return filter
}
