package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

// UserService handles account administration for the registrar.
type UserService struct {
	repo        userRepository
	departments departmentFinder
	faculties   facultyReader
	outbox      outboxWriter
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, departments departmentFinder, faculties facultyReader, outbox outboxWriter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{
		repo:        repo,
		departments: departments,
		faculties:   faculties,
		outbox:      outbox,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	filter.Search = strings.TrimSpace(filter.Search)
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Update renames, reassigns or (de)activates an account. Department and
// faculty changes only apply to officers. Deactivation revokes every
// outstanding refresh token, and the actor middleware rejects the account's
// access tokens on the next request.
func (s *UserService) Update(ctx context.Context, actorID, id string, req dto.UpdateUserRequest, meta RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Active != nil && !*req.Active && user.ID == actorID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot deactivate your own account")
	}

	var changes []string
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "full name cannot be blank")
		}
		if name != user.FullName {
			user.FullName = name
			changes = append(changes, "name")
		}
	}

	if req.DepartmentID != nil || req.FacultyAssignmentID != nil {
		if user.Role != models.RoleOfficer {
			return nil, appErrors.Clone(appErrors.ErrValidation, "only officers can be assigned to a department")
		}
		if err := s.reassign(ctx, user, req); err != nil {
			return nil, err
		}
		changes = append(changes, "assignment")
	}

	deactivated := false
	if req.Active != nil && *req.Active != user.Active {
		user.Active = *req.Active
		deactivated = !user.Active
		if user.Active {
			changes = append(changes, "activated")
		} else {
			changes = append(changes, "deactivated")
		}
	}

	if len(changes) == 0 {
		return user, nil
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	if deactivated {
		if err := s.repo.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke refresh tokens", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	queueAudit(ctx, s.outbox, s.logger, auditIntent(actorID, models.AuditActionUserUpdate,
		fmt.Sprintf("updated %s (%s)", user.Email, strings.Join(changes, ", ")), "", meta))
	if err := s.cache.Invalidate(ctx, dashboardCachePattern); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
	return user, nil
}

func (s *UserService) reassign(ctx context.Context, user *models.User, req dto.UpdateUserRequest) error {
	departmentID := deref(user.DepartmentID)
	if req.DepartmentID != nil {
		departmentID = *req.DepartmentID
	}
	department, err := s.departments.FindByID(ctx, nil, departmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "department not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	facultyID := user.FacultyAssignmentID
	if req.FacultyAssignmentID != nil {
		facultyID = req.FacultyAssignmentID
		if *facultyID == "" {
			facultyID = nil
		}
	}
	if !department.FacultyScoped {
		if req.FacultyAssignmentID != nil && facultyID != nil {
			return appErrors.Clone(appErrors.ErrValidation, "faculty assignment requires a faculty-scoped department")
		}
		facultyID = nil
	}
	if facultyID != nil {
		if _, err := s.faculties.FindByID(ctx, *facultyID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrValidation, "faculty not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
		}
	}

	user.DepartmentID = &department.ID
	user.FacultyAssignmentID = facultyID
	return nil
}
