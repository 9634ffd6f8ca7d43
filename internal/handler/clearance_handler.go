package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/response"
)

type clearanceService interface {
	Submit(ctx context.Context, actor models.StudentActor, meta service.RequestMeta) (*dto.TransitionResponse, error)
	Decide(ctx context.Context, actor models.OfficerActor, clearanceID string, req dto.DecisionRequest, meta service.RequestMeta) (*dto.TransitionResponse, error)
	Dashboard(ctx context.Context, actor models.StudentActor) (*dto.ClearanceDashboard, error)
	Detail(ctx context.Context, actor models.Actor, clearanceID string) (*dto.ClearanceDetail, error)
}

type certificateService interface {
	Render(ctx context.Context, actor models.StudentActor) ([]byte, string, error)
}

// ClearanceHandler exposes the clearance workflow.
type ClearanceHandler struct {
	service      clearanceService
	certificates certificateService
}

// NewClearanceHandler constructs the handler.
func NewClearanceHandler(svc clearanceService, certificates certificateService) *ClearanceHandler {
	return &ClearanceHandler{service: svc, certificates: certificates}
}

// Dashboard godoc
// @Summary Student clearance dashboard
// @Tags Clearance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/clearance [get]
func (h *ClearanceHandler) Dashboard(c *gin.Context) {
	student, err := studentFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	dashboard, err := h.service.Dashboard(c.Request.Context(), student)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil)
}

// Submit godoc
// @Summary Submit or resubmit the clearance
// @Tags Clearance
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /me/clearance/submit [post]
func (h *ClearanceHandler) Submit(c *gin.Context) {
	student, err := studentFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Submit(c.Request.Context(), student, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Certificate godoc
// @Summary Download the clearance certificate
// @Tags Clearance
// @Produce application/pdf
// @Success 200 {file} file
// @Failure 409 {object} response.Envelope
// @Router /me/clearance/certificate [get]
func (h *ClearanceHandler) Certificate(c *gin.Context) {
	if h.certificates == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	student, err := studentFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	body, filename, err := h.certificates.Render(c.Request.Context(), student)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "application/pdf", body)
}

// Detail godoc
// @Summary Clearance detail for officers and admins
// @Tags Clearance
// @Produce json
// @Param id path string true "Clearance ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /officer/clearances/{id} [get]
func (h *ClearanceHandler) Detail(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.service.Detail(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Decide godoc
// @Summary Approve or reject the current stage
// @Tags Clearance
// @Accept json
// @Produce json
// @Param id path string true "Clearance ID"
// @Param payload body dto.DecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /officer/clearances/{id}/decision [post]
func (h *ClearanceHandler) Decide(c *gin.Context) {
	officer, err := officerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	req.Decision = models.Decision(strings.ToLower(strings.TrimSpace(string(req.Decision))))

	result, err := h.service.Decide(c.Request.Context(), officer, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
