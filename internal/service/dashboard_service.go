package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type dashboardClearanceReader interface {
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	Recent(ctx context.Context, limit int) ([]models.ClearanceListItem, error)
}

type dashboardApprovalReader interface {
	DepartmentStats(ctx context.Context, departmentID string) ([]models.DepartmentStat, error)
}

type dashboardUserCounter interface {
	CountByRole(ctx context.Context, role models.UserRole) (int, error)
}

type dashboardAuditReader interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error)
}

type outboxBacklogReader interface {
	Backlog(ctx context.Context) (map[string]int, error)
}

// DashboardServiceConfig tunes dashboard composition.
type DashboardServiceConfig struct {
	CacheTTL     time.Duration
	RecentLimit  int
	AuditPreview int
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Clearances dashboardClearanceReader
	Approvals  dashboardApprovalReader
	Users      dashboardUserCounter
	Audit      dashboardAuditReader
	Outbox     outboxBacklogReader
	Metrics    *MetricsService
	Cache      *CacheService
	Logger     *zap.Logger
	Config     DashboardServiceConfig
}

// DashboardService aggregates registry-wide clearance figures for admins.
type DashboardService struct {
	clearances dashboardClearanceReader
	approvals  dashboardApprovalReader
	users      dashboardUserCounter
	audit      dashboardAuditReader
	outbox     outboxBacklogReader
	metrics    *MetricsService
	cache      *CacheService
	logger     *zap.Logger
	now        func() time.Time
	cfg        DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 2 * time.Minute
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 10
	}
	if cfg.AuditPreview <= 0 {
		cfg.AuditPreview = 10
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		clearances: params.Clearances,
		approvals:  params.Approvals,
		users:      params.Users,
		audit:      params.Audit,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		cache:      params.Cache,
		logger:     logger,
		now:        time.Now,
		cfg:        cfg,
	}
}

// Admin returns the admin dashboard and indicates cache utilisation.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	var cached dto.AdminDashboardResponse
	if hit, _ := s.cache.Get(ctx, adminDashboardCacheKey, &cached); hit {
		cached.System = s.metrics.Snapshot()
		return &cached, true, nil
	}

	summary, err := s.composeAdminSummary(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := s.cache.Set(ctx, adminDashboardCacheKey, summary, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.Error(err))
	}
	return summary, false, nil
}

func (s *DashboardService) composeAdminSummary(ctx context.Context) (*dto.AdminDashboardResponse, error) {
	students, err := s.users.CountByRole(ctx, models.RoleStudent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	officers, err := s.users.CountByRole(ctx, models.RoleOfficer)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count officers")
	}
	byStatus, err := s.clearances.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count clearances")
	}
	departments, err := s.approvals.DepartmentStats(ctx, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate departments")
	}
	recent, err := s.clearances.Recent(ctx, s.cfg.RecentLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent clearances")
	}
	logs, _, err := s.audit.List(ctx, models.AuditLogFilter{Page: 1, PageSize: s.cfg.AuditPreview})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit logs")
	}

	summary := &dto.AdminDashboardResponse{
		Students:         students,
		Officers:         officers,
		ByStatus:         withAllStatuses(byStatus),
		Departments:      departments,
		RecentClearances: recent,
		RecentAudit:      logs,
		System:           s.metrics.Snapshot(),
		GeneratedAt:      s.now().UTC(),
	}
	if s.outbox != nil {
		if backlog, err := s.outbox.Backlog(ctx); err != nil {
			s.logger.Warn("failed to load outbox backlog", zap.Error(err))
		} else {
			summary.Outbox = backlog
		}
	}
	return summary, nil
}

// withAllStatuses fills in zero counts so every status is always listed.
func withAllStatuses(counts []models.StatusCount) []models.StatusCount {
	order := []models.ClearanceStatus{
		models.ClearanceNotStarted,
		models.ClearancePending,
		models.ClearanceInProgress,
		models.ClearanceRejected,
		models.ClearanceApproved,
	}
	byStatus := make(map[models.ClearanceStatus]int, len(counts))
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	out := make([]models.StatusCount, 0, len(order))
	for _, st := range order {
		out = append(out, models.StatusCount{Status: st, Count: byStatus[st]})
	}
	return out
}
