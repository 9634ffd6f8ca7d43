package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/response"
)

type departmentService interface {
	List(ctx context.Context, activeOnly bool) ([]models.Department, error)
	Faculties(ctx context.Context, activeOnly bool) ([]models.Faculty, error)
	Create(ctx context.Context, actorID string, req dto.DepartmentRequest, meta service.RequestMeta) (*models.Department, error)
	Update(ctx context.Context, actorID, id string, req dto.DepartmentRequest, meta service.RequestMeta) (*models.Department, error)
}

// DepartmentHandler exposes the department registry and faculties.
type DepartmentHandler struct {
	service departmentService
}

// NewDepartmentHandler constructs the handler.
func NewDepartmentHandler(svc departmentService) *DepartmentHandler {
	return &DepartmentHandler{service: svc}
}

// Public godoc
// @Summary Active review stages in order
// @Tags Departments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *DepartmentHandler) Public(c *gin.Context) {
	h.list(c, true)
}

// List godoc
// @Summary All departments including retired ones
// @Tags Departments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/departments [get]
func (h *DepartmentHandler) List(c *gin.Context) {
	h.list(c, c.Query("active") == "true")
}

func (h *DepartmentHandler) list(c *gin.Context, activeOnly bool) {
	departments, err := h.service.List(c.Request.Context(), activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}

// PublicFaculties godoc
// @Summary Active faculties for registration
// @Tags Departments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /faculties [get]
func (h *DepartmentHandler) PublicFaculties(c *gin.Context) {
	h.faculties(c, true)
}

// Faculties godoc
// @Summary All faculties
// @Tags Departments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/faculties [get]
func (h *DepartmentHandler) Faculties(c *gin.Context) {
	h.faculties(c, false)
}

func (h *DepartmentHandler) faculties(c *gin.Context, activeOnly bool) {
	faculties, err := h.service.Faculties(c.Request.Context(), activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculties, nil)
}

// Create godoc
// @Summary Add a review stage
// @Tags Departments
// @Accept json
// @Produce json
// @Param payload body dto.DepartmentRequest true "Department"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/departments [post]
func (h *DepartmentHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid department payload"))
		return
	}
	department, err := h.service.Create(c.Request.Context(), claims.UserID, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, department)
}

// Update godoc
// @Summary Rename, reorder or retire a review stage
// @Tags Departments
// @Accept json
// @Produce json
// @Param id path string true "Department ID"
// @Param payload body dto.DepartmentRequest true "Department"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/departments/{id} [put]
func (h *DepartmentHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid department payload"))
		return
	}
	department, err := h.service.Update(c.Request.Context(), claims.UserID, c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, department, nil)
}
