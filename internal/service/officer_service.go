package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type officerApprovalReader interface {
	ListPendingForDepartment(ctx context.Context, filter models.QueueFilter) ([]models.QueueItem, int, error)
	ListByReviewer(ctx context.Context, reviewerID string, page, pageSize int) ([]models.ReviewHistoryItem, int, error)
	DepartmentStats(ctx context.Context, departmentID string) ([]models.DepartmentStat, error)
}

// OfficerService serves the read side of a department officer's work.
type OfficerService struct {
	approvals   officerApprovalReader
	departments departmentFinder
	logger      *zap.Logger
}

// NewOfficerService constructs an OfficerService.
func NewOfficerService(approvals officerApprovalReader, departments departmentFinder, logger *zap.Logger) *OfficerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OfficerService{approvals: approvals, departments: departments, logger: logger}
}

// Queue lists clearances waiting at the officer's department, oldest first.
// Faculty-scoped departments only show the officer's assigned faculty.
func (s *OfficerService) Queue(ctx context.Context, actor models.OfficerActor, search string, page, pageSize int) ([]models.QueueItem, *models.Pagination, error) {
	department, err := s.department(ctx, actor)
	if err != nil {
		return nil, nil, err
	}
	filter := models.QueueFilter{
		DepartmentID: actor.DepartmentID,
		Search:       strings.TrimSpace(search),
		Page:         page,
		PageSize:     pageSize,
	}
	if department.FacultyScoped {
		filter.FacultyID = actor.FacultyAssignmentID
	}
	items, total, err := s.approvals.ListPendingForDepartment(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review queue")
	}
	return items, pagination(page, pageSize, total), nil
}

// History lists the officer's previous decisions.
func (s *OfficerService) History(ctx context.Context, actor models.OfficerActor, page, pageSize int) ([]models.ReviewHistoryItem, *models.Pagination, error) {
	items, total, err := s.approvals.ListByReviewer(ctx, actor.UserID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review history")
	}
	return items, pagination(page, pageSize, total), nil
}

// Stats summarises the officer's department.
func (s *OfficerService) Stats(ctx context.Context, actor models.OfficerActor) (*dto.OfficerStatsResponse, error) {
	department, err := s.department(ctx, actor)
	if err != nil {
		return nil, err
	}
	stats, err := s.approvals.DepartmentStats(ctx, actor.DepartmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department stats")
	}
	_, reviewed, err := s.approvals.ListByReviewer(ctx, actor.UserID, 1, 1)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count reviews")
	}
	resp := &dto.OfficerStatsResponse{
		Department: models.DepartmentStat{
			DepartmentID:   department.ID,
			DepartmentName: department.Name,
			SequenceOrder:  department.SequenceOrder,
		},
		Reviewed: reviewed,
	}
	if len(stats) > 0 {
		resp.Department = stats[0]
	}
	return resp, nil
}

func (s *OfficerService) department(ctx context.Context, actor models.OfficerActor) (*models.Department, error) {
	department, err := s.departments.FindByID(ctx, nil, actor.DepartmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "officer department no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return department, nil
}

func pagination(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}
