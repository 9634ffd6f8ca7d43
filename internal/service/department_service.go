package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	"github.com/noah-isme/clearance-api/internal/workflow"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type departmentRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.Department, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Department, error)
	FindByName(ctx context.Context, name string) (*models.Department, error)
	OrderTaken(ctx context.Context, order int, excludeID string) (bool, error)
	Create(ctx context.Context, department *models.Department) error
	Update(ctx context.Context, department *models.Department) error
}

type facultyLister interface {
	List(ctx context.Context, activeOnly bool) ([]models.Faculty, error)
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
}

// DepartmentService owns the department registry: the ordered set of review stages.
type DepartmentService struct {
	repo      departmentRepository
	faculties facultyLister
	cache     *CacheService
	outbox    outboxWriter
	ttl       time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDepartmentService constructs a DepartmentService.
func NewDepartmentService(repo departmentRepository, faculties facultyLister, cache *CacheService, outbox outboxWriter, ttl time.Duration, validate *validator.Validate, logger *zap.Logger) *DepartmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{repo: repo, faculties: faculties, cache: cache, outbox: outbox, ttl: ttl, validator: validate, logger: logger}
}

// Registry returns the current snapshot of active stages. The department list
// is cached; any cache failure falls back to the database.
func (s *DepartmentService) Registry(ctx context.Context) (*workflow.Registry, error) {
	var departments []models.Department
	hit, _ := s.cache.Get(ctx, registryCacheKey, &departments)
	if !hit {
		var err error
		departments, err = s.repo.List(ctx, true)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load departments")
		}
		_ = s.cache.Set(ctx, registryCacheKey, departments, s.ttl)
	}
	reg, err := workflow.NewRegistry(departments)
	if err != nil {
		s.logger.Error("department registry is inconsistent", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "department registry is inconsistent")
	}
	return reg, nil
}

// List returns departments ordered by sequence.
func (s *DepartmentService) List(ctx context.Context, activeOnly bool) ([]models.Department, error) {
	departments, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return departments, nil
}

// Get returns one department, active or not.
func (s *DepartmentService) Get(ctx context.Context, id string) (*models.Department, error) {
	department, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return department, nil
}

// Faculties lists faculties for registration forms and officer assignment.
func (s *DepartmentService) Faculties(ctx context.Context, activeOnly bool) ([]models.Faculty, error) {
	faculties, err := s.faculties.List(ctx, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list faculties")
	}
	return faculties, nil
}

// Create adds a stage. Active stages must not share a sequence order.
func (s *DepartmentService) Create(ctx context.Context, actorID string, req dto.DepartmentRequest, meta RequestMeta) (*models.Department, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	if _, err := s.repo.FindByName(ctx, req.Name); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "department name already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department name")
	}

	department := &models.Department{
		Name:          req.Name,
		SequenceOrder: req.SequenceOrder,
		Description:   strings.TrimSpace(req.Description),
		Active:        req.Active == nil || *req.Active,
		FacultyScoped: req.FacultyScoped,
	}
	if err := s.ensureOrderFree(ctx, department); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, department); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "department name or order already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}

	s.invalidate(ctx)
	queueAudit(ctx, s.outbox, s.logger, auditIntent(actorID, models.AuditActionDepartmentCreate,
		fmt.Sprintf("created department %s at order %d", department.Name, department.SequenceOrder), "", meta))
	return department, nil
}

// Update edits a stage. Reordering or deactivating affects in-flight
// clearances only at their next transition.
func (s *DepartmentService) Update(ctx context.Context, actorID, id string, req dto.DepartmentRequest, meta RequestMeta) (*models.Department, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	department, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing, err := s.repo.FindByName(ctx, req.Name); err == nil && existing.ID != id {
		return nil, appErrors.Clone(appErrors.ErrConflict, "department name already exists")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department name")
	}

	department.Name = req.Name
	department.SequenceOrder = req.SequenceOrder
	department.Description = strings.TrimSpace(req.Description)
	department.FacultyScoped = req.FacultyScoped
	if req.Active != nil {
		department.Active = *req.Active
	}
	if err := s.ensureOrderFree(ctx, department); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, department); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "department name or order already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update department")
	}

	s.invalidate(ctx)
	queueAudit(ctx, s.outbox, s.logger, auditIntent(actorID, models.AuditActionDepartmentUpdate,
		fmt.Sprintf("updated department %s (order %d, active %t)", department.Name, department.SequenceOrder, department.Active), "", meta))
	return department, nil
}

// ensureOrderFree checks the order against the database and against the
// resulting registry snapshot.
func (s *DepartmentService) ensureOrderFree(ctx context.Context, department *models.Department) error {
	if !department.Active {
		return nil
	}
	taken, err := s.repo.OrderTaken(ctx, department.SequenceOrder, department.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check sequence order")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("sequence order %d is already used by an active department", department.SequenceOrder))
	}
	current, err := s.repo.List(ctx, true)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load departments")
	}
	reg, err := workflow.NewRegistry(current)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "department registry is inconsistent")
	}
	if _, err := reg.Insert(*department); err != nil {
		if errors.Is(err, workflow.ErrDuplicateOrder) {
			return appErrors.Clone(appErrors.ErrConflict, err.Error())
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate registry")
	}
	return nil
}

func (s *DepartmentService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, registryCacheKey, dashboardCachePattern); err != nil {
		s.logger.Warn("failed to invalidate registry cache", zap.Error(err))
	}
}

