package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/export"
)

type adminClearanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.Clearance, error)
	List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceListItem, int, error)
	ListAll(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceListItem, error)
	UpdateRemarks(ctx context.Context, id, remarks string) error
}

type adminUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, user *models.User) error
}

type adminAuditReader interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// AdminServiceParams groups constructor dependencies.
type AdminServiceParams struct {
	Clearances  adminClearanceRepository
	Users       adminUserRepository
	Departments departmentFinder
	Faculties   facultyReader
	Audit       adminAuditReader
	Outbox      outboxWriter
	Cache       *CacheService
	CSV         csvRenderer
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// AdminService covers registrar-side clearance oversight and officer management.
type AdminService struct {
	clearances  adminClearanceRepository
	users       adminUserRepository
	departments departmentFinder
	faculties   facultyReader
	audit       adminAuditReader
	outbox      outboxWriter
	cache       *CacheService
	csv         csvRenderer
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAdminService constructs an AdminService.
func NewAdminService(params AdminServiceParams) *AdminService {
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.CSV == nil {
		params.CSV = export.NewCSVExporter(export.WithBOM())
	}
	return &AdminService{
		clearances:  params.Clearances,
		users:       params.Users,
		departments: params.Departments,
		faculties:   params.Faculties,
		audit:       params.Audit,
		outbox:      params.Outbox,
		cache:       params.Cache,
		csv:         params.CSV,
		validator:   params.Validator,
		logger:      params.Logger,
	}
}

// Clearances searches clearances by student name or matric, status and current stage.
func (s *AdminService) Clearances(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceListItem, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown clearance status")
	}
	filter.Search = strings.TrimSpace(filter.Search)
	items, total, err := s.clearances.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clearances")
	}
	return items, pagination(filter.Page, filter.PageSize, total), nil
}

// ExportClearances renders every clearance matching filter as CSV.
func (s *AdminService) ExportClearances(ctx context.Context, filter models.ClearanceFilter) ([]byte, string, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unknown clearance status")
	}
	items, err := s.clearances.ListAll(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearances")
	}
	data := export.Dataset{
		Headers: []string{"Matric Number", "Student", "Email", "Faculty", "Status", "Current Department", "Submitted At", "Completed At"},
		Rows:    make([][]string, 0, len(items)),
	}
	for _, item := range items {
		data.Rows = append(data.Rows, []string{
			deref(item.MatricNumber),
			item.StudentName,
			item.StudentEmail,
			deref(item.FacultyName),
			string(item.Status),
			deref(item.CurrentDepartmentName),
			formatTime(item.SubmittedAt),
			formatTime(item.CompletedAt),
		})
	}
	body, err := s.csv.Render(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	filename := fmt.Sprintf("clearances_%s.csv", time.Now().UTC().Format("20060102_150405"))
	return body, filename, nil
}

// UpdateRemarks sets the registrar's remarks without changing workflow state.
func (s *AdminService) UpdateRemarks(ctx context.Context, actorID, clearanceID string, req dto.UpdateRemarksRequest, meta RequestMeta) (*models.Clearance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid remarks payload")
	}
	remarks := strings.TrimSpace(req.Remarks)
	if err := s.clearances.UpdateRemarks(ctx, clearanceID, remarks); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update remarks")
	}
	queueAudit(ctx, s.outbox, s.logger, auditIntent(actorID, models.AuditActionAdminOverride, "updated clearance remarks", clearanceID, meta))

	clearance, err := s.clearances.FindByID(ctx, clearanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload clearance")
	}
	return clearance, nil
}

// Officers lists officer accounts, optionally for one department.
func (s *AdminService) Officers(ctx context.Context, departmentID, search string, page, pageSize int) ([]models.User, *models.Pagination, error) {
	role := models.RoleOfficer
	users, total, err := s.users.List(ctx, models.UserFilter{
		Role:         &role,
		DepartmentID: departmentID,
		Search:       strings.TrimSpace(search),
		Page:         page,
		PageSize:     pageSize,
		SortBy:       "full_name",
		SortOrder:    "ASC",
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list officers")
	}
	return users, pagination(page, pageSize, total), nil
}

// CreateOfficer provisions an officer for a department, optionally narrowed to one faculty.
func (s *AdminService) CreateOfficer(ctx context.Context, actorID string, req dto.CreateOfficerRequest, meta RequestMeta) (*models.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid officer payload")
	}
	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	department, err := s.departments.FindByID(ctx, nil, req.DepartmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	if req.FacultyAssignmentID != nil {
		if !department.FacultyScoped {
			return nil, appErrors.Clone(appErrors.ErrValidation, "faculty assignment requires a faculty-scoped department")
		}
		if _, err := s.faculties.FindByID(ctx, *req.FacultyAssignmentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "faculty not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	user := &models.User{
		ID:                  uuid.NewString(),
		Email:               req.Email,
		PasswordHash:        string(hash),
		FullName:            req.FullName,
		Role:                models.RoleOfficer,
		DepartmentID:        &department.ID,
		FacultyAssignmentID: req.FacultyAssignmentID,
		Active:              true,
	}
	if err := s.users.Create(ctx, nil, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create officer")
	}

	queueAudit(ctx, s.outbox, s.logger, auditIntent(actorID, models.AuditActionUserCreate,
		fmt.Sprintf("created officer %s for %s", user.Email, department.Name), "", meta))
	if err := s.cache.Invalidate(ctx, dashboardCachePattern); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
	return user, nil
}

// AuditLogs lists audit entries newest first.
func (s *AdminService) AuditLogs(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error) {
	logs, total, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	return logs, pagination(filter.Page, filter.PageSize, total), nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
