package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/pkg/response"
)

type officerService interface {
	Queue(ctx context.Context, actor models.OfficerActor, search string, page, pageSize int) ([]models.QueueItem, *models.Pagination, error)
	History(ctx context.Context, actor models.OfficerActor, page, pageSize int) ([]models.ReviewHistoryItem, *models.Pagination, error)
	Stats(ctx context.Context, actor models.OfficerActor) (*dto.OfficerStatsResponse, error)
}

// OfficerHandler serves the department review desk.
type OfficerHandler struct {
	service officerService
}

// NewOfficerHandler constructs the handler.
func NewOfficerHandler(svc officerService) *OfficerHandler {
	return &OfficerHandler{service: svc}
}

// Queue godoc
// @Summary Clearances waiting at my department
// @Tags Officer
// @Produce json
// @Param search query string false "Name or matric number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /officer/queue [get]
func (h *OfficerHandler) Queue(c *gin.Context) {
	officer, err := officerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	page, size := pageParams(c)
	items, pagination, err := h.service.Queue(c.Request.Context(), officer, strings.TrimSpace(c.Query("search")), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// History godoc
// @Summary Decisions I have made
// @Tags Officer
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /officer/history [get]
func (h *OfficerHandler) History(c *gin.Context) {
	officer, err := officerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	page, size := pageParams(c)
	items, pagination, err := h.service.History(c.Request.Context(), officer, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Stats godoc
// @Summary Department decision counts
// @Tags Officer
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /officer/stats [get]
func (h *OfficerHandler) Stats(c *gin.Context) {
	officer, err := officerFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), officer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
