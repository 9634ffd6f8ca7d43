package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

type clearanceStore interface {
	FindByID(ctx context.Context, id string) (*models.Clearance, error)
	FindByStudent(ctx context.Context, studentID string) (*models.Clearance, error)
	GetForUpdate(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Clearance, error)
	GetByStudentForUpdate(ctx context.Context, tx sqlx.ExtContext, studentID string) (*models.Clearance, error)
	Update(ctx context.Context, exec sqlx.ExtContext, clearance *models.Clearance) error
}

type approvalLedger interface {
	CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, entry *models.ApprovalEntry) (bool, error)
	ListByClearance(ctx context.Context, exec sqlx.ExtContext, clearanceID string) ([]models.ApprovalView, error)
	UpdateDecision(ctx context.Context, exec sqlx.ExtContext, entry *models.ApprovalEntry) error
	ResetToPending(ctx context.Context, exec sqlx.ExtContext, id string) error
	DeleteByClearance(ctx context.Context, exec sqlx.ExtContext, clearanceID string) error
}

type documentCounter interface {
	CountByClearance(ctx context.Context, exec sqlx.ExtContext, clearanceID string) (int, error)
}

type documentViewer interface {
	Views(ctx context.Context, clearanceID string) ([]dto.DocumentView, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type departmentFinder interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Department, error)
}

type registryProvider interface {
	Registry(ctx context.Context) (*workflow.Registry, error)
}

// ClearanceDeps groups the collaborators of ClearanceService.
type ClearanceDeps struct {
	Clearances    clearanceStore
	Approvals     approvalLedger
	Documents     documentCounter
	Views         documentViewer
	Users         userReader
	Departments   departmentFinder
	Registry      registryProvider
	Outbox        outboxWriter
	Tx            txProvider
	Cache         *CacheService
	Metrics       *MetricsService
	Notifications *Notifications
}

// ClearanceService runs the clearance workflow. Every transition executes in
// one transaction holding the clearance row lock.
type ClearanceService struct {
	clearances    clearanceStore
	approvals     approvalLedger
	documents     documentCounter
	views         documentViewer
	users         userReader
	departments   departmentFinder
	registry      registryProvider
	outbox        outboxWriter
	tx            txProvider
	cache         *CacheService
	metrics       *MetricsService
	notifications *Notifications
	engine        *workflow.Engine
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewClearanceService constructs a ClearanceService.
func NewClearanceService(deps ClearanceDeps, engine *workflow.Engine, validate *validator.Validate, logger *zap.Logger) *ClearanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = workflow.NewEngine(logger)
	}
	if deps.Notifications == nil {
		deps.Notifications = NewNotifications("")
	}
	return &ClearanceService{
		clearances:    deps.Clearances,
		approvals:     deps.Approvals,
		documents:     deps.Documents,
		views:         deps.Views,
		users:         deps.Users,
		departments:   deps.Departments,
		registry:      deps.Registry,
		outbox:        deps.Outbox,
		tx:            deps.Tx,
		cache:         deps.Cache,
		metrics:       deps.Metrics,
		notifications: deps.Notifications,
		engine:        engine,
		validator:     validate,
		logger:        logger,
	}
}

// Submit sends the student's clearance into review, or back into review after a rejection.
func (s *ClearanceService) Submit(ctx context.Context, actor models.StudentActor, meta RequestMeta) (resp *dto.TransitionResponse, err error) {
	start := time.Now()
	var outcome workflow.Outcome
	defer func() { s.metrics.ObserveTransition("submit", outcome, err, time.Since(start)) }()

	student, err := s.loadUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	reg, err := s.registry.Registry(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	clearance, err := s.clearances.GetByStudentForUpdate(ctx, tx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock clearance")
	}
	agg, err := s.loadAggregate(ctx, tx, clearance)
	if err != nil {
		return nil, err
	}

	t, err := s.engine.Submit(agg, reg)
	if err != nil {
		return nil, err
	}
	outcome = t.Outcome
	if err := s.apply(ctx, tx, t); err != nil {
		return nil, err
	}

	var batch outboxBatch
	switch t.Outcome {
	case workflow.OutcomeResubmittedToStage:
		batch.audit(auditIntent(actor.UserID, models.AuditActionClearanceSubmit,
			fmt.Sprintf("clearance resubmitted to %s", t.Stage.Name), t.Clearance.ID, meta))
		batch.notify(s.notifications.Resubmitted(student, t.Stage))
	case workflow.OutcomeResubmittedRestart:
		batch.audit(auditIntent(actor.UserID, models.AuditActionClearanceSubmit,
			"clearance resubmitted, review restarted from the first stage", t.Clearance.ID, meta))
		batch.notify(s.notifications.Submitted(student))
	default:
		batch.audit(auditIntent(actor.UserID, models.AuditActionClearanceSubmit,
			"clearance submitted for review", t.Clearance.ID, meta))
		batch.notify(s.notifications.Submitted(student))
	}
	if err := batch.write(ctx, s.outbox, tx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue clearance events")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit submission")
	}

	s.afterCommit(ctx, t)
	return transitionResponse(t), nil
}

// Decide records an officer's approval or rejection at the clearance's current stage.
func (s *ClearanceService) Decide(ctx context.Context, actor models.OfficerActor, clearanceID string, req dto.DecisionRequest, meta RequestMeta) (resp *dto.TransitionResponse, err error) {
	start := time.Now()
	var outcome workflow.Outcome
	defer func() { s.metrics.ObserveTransition("decide", outcome, err, time.Since(start)) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}
	if err := workflow.ValidateDecision(req.Decision, req.Comment); err != nil {
		return nil, err
	}
	reg, err := s.registry.Registry(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	clearance, err := s.clearances.GetForUpdate(ctx, tx, clearanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock clearance")
	}
	department, err := s.departments.FindByID(ctx, tx, actor.DepartmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "officer department no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	student, err := s.loadUser(ctx, clearance.StudentID)
	if err != nil {
		return nil, err
	}
	if err := workflow.Review(actor, student, *clearance, *department); err != nil {
		return nil, err
	}
	agg, err := s.loadAggregate(ctx, tx, clearance)
	if err != nil {
		return nil, err
	}

	t, err := s.engine.Decide(agg, reg, workflow.DecideInput{
		Department: *department,
		Decision:   req.Decision,
		ReviewerID: actor.UserID,
		Comment:    req.Comment,
	})
	if err != nil {
		return nil, err
	}
	outcome = t.Outcome
	if err := s.apply(ctx, tx, t); err != nil {
		return nil, err
	}

	var batch outboxBatch
	switch t.Outcome {
	case workflow.OutcomeRejected:
		batch.audit(auditIntent(actor.UserID, models.AuditActionApprovalReject,
			fmt.Sprintf("%s rejected the clearance: %s", department.Name, t.Decided.Comment), t.Clearance.ID, meta))
		batch.notify(s.notifications.Rejected(student, *department, t.Decided.Comment))
	case workflow.OutcomeAdvanced:
		batch.audit(auditIntent(actor.UserID, models.AuditActionApprovalApprove,
			fmt.Sprintf("%s approved the clearance, forwarded to %s", department.Name, t.Stage.Name), t.Clearance.ID, meta))
		batch.notify(s.notifications.Advanced(student, *department, t.Stage))
	case workflow.OutcomeCompleted:
		batch.audit(auditIntent(actor.UserID, models.AuditActionApprovalApprove,
			fmt.Sprintf("%s approved the clearance, clearance completed", department.Name), t.Clearance.ID, meta))
		batch.notify(s.notifications.Completed(student))
	default:
		batch.audit(auditIntent(actor.UserID, models.AuditActionApprovalApprove,
			fmt.Sprintf("%s approved the clearance; %d of %d stages approved", department.Name, t.Approved, t.Active), t.Clearance.ID, meta))
	}
	if err := batch.write(ctx, s.outbox, tx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue clearance events")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit decision")
	}

	s.afterCommit(ctx, t)
	return transitionResponse(t), nil
}

// Dashboard returns the student's clearance with stage progress and documents.
func (s *ClearanceService) Dashboard(ctx context.Context, actor models.StudentActor) (*dto.ClearanceDashboard, error) {
	clearance, err := s.clearances.FindByStudent(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance")
	}
	reg, err := s.registry.Registry(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.approvals.ListByClearance(ctx, nil, clearance.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	documents, err := s.views.Views(ctx, clearance.ID)
	if err != nil {
		return nil, err
	}

	stages := buildStages(reg, entries, clearance.CurrentDepartmentID)
	return &dto.ClearanceDashboard{
		Clearance:             *clearance,
		CurrentDepartmentName: currentStageName(stages),
		Stages:                stages,
		Documents:             documents,
		Progress:              workflow.ProgressPercentage(entries, reg),
		CanSubmit:             (clearance.Status == models.ClearanceNotStarted || clearance.Status == models.ClearanceRejected) && len(documents) > 0 && reg.Len() > 0,
		CanEditDocuments:      clearance.DocumentsDeletable(),
	}, nil
}

// Detail returns one clearance for an officer or admin. Students may only
// read their own.
func (s *ClearanceService) Detail(ctx context.Context, actor models.Actor, clearanceID string) (*dto.ClearanceDetail, error) {
	clearance, err := s.clearances.FindByID(ctx, clearanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance")
	}
	student, err := s.loadUser(ctx, clearance.StudentID)
	if err != nil {
		return nil, err
	}
	entries, err := s.approvals.ListByClearance(ctx, nil, clearance.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}

	canDecide := false
	switch a := actor.(type) {
	case models.StudentActor:
		if clearance.StudentID != a.UserID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "clearance belongs to another student")
		}
	case models.OfficerActor:
		department, err := s.departments.FindByID(ctx, nil, a.DepartmentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
		}
		if !officerCanView(a, student, *clearance, *department, entries) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "clearance is outside your department")
		}
		canDecide = (clearance.Status == models.ClearancePending || clearance.Status == models.ClearanceInProgress) &&
			workflow.CanReview(a, student, *clearance, *department)
	case models.AdminActor:
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unsupported role")
	}

	reg, err := s.registry.Registry(ctx)
	if err != nil {
		return nil, err
	}
	documents, err := s.views.Views(ctx, clearance.ID)
	if err != nil {
		return nil, err
	}
	stages := buildStages(reg, entries, clearance.CurrentDepartmentID)
	return &dto.ClearanceDetail{
		Clearance:             *clearance,
		Student:               userInfo(student),
		FacultyID:             student.FacultyID,
		CurrentDepartmentName: currentStageName(stages),
		Stages:                stages,
		Documents:             documents,
		Progress:              workflow.ProgressPercentage(entries, reg),
		CanDecide:             canDecide,
	}, nil
}

func (s *ClearanceService) loadAggregate(ctx context.Context, tx sqlx.ExtContext, clearance *models.Clearance) (workflow.Aggregate, error) {
	entries, err := s.approvals.ListByClearance(ctx, tx, clearance.ID)
	if err != nil {
		return workflow.Aggregate{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	documents, err := s.documents.CountByClearance(ctx, tx, clearance.ID)
	if err != nil {
		return workflow.Aggregate{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count documents")
	}
	return workflow.Aggregate{Clearance: *clearance, Entries: entries, DocumentCount: documents}, nil
}

// apply persists a transition in ledger-first order so the clearance row can
// reference a freshly created entry.
func (s *ClearanceService) apply(ctx context.Context, tx sqlx.ExtContext, t *workflow.Transition) error {
	if t.DeleteEntries {
		if err := s.approvals.DeleteByClearance(ctx, tx, t.Clearance.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset approvals")
		}
	}
	for i := range t.NewEntries {
		if _, err := s.approvals.CreateIfAbsent(ctx, tx, &t.NewEntries[i]); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create approval entry")
		}
	}
	if t.ResetEntryID != "" {
		if err := s.approvals.ResetToPending(ctx, tx, t.ResetEntryID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset approval entry")
		}
	}
	if t.Decided != nil {
		if err := s.approvals.UpdateDecision(ctx, tx, t.Decided); err != nil {
			if errors.Is(err, repository.ErrEntryNotPending) {
				return appErrors.Clone(appErrors.ErrAlreadyDecided, "this stage has already been decided")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
		}
	}
	if err := s.clearances.Update(ctx, tx, &t.Clearance); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return appErrors.Clone(appErrors.ErrStaleState, "clearance changed while processing the request")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update clearance")
	}
	return nil
}

func (s *ClearanceService) afterCommit(ctx context.Context, t *workflow.Transition) {
	s.logger.Info("clearance transition",
		zap.String("clearance_id", t.Clearance.ID),
		zap.String("outcome", string(t.Outcome)),
		zap.String("status", string(t.Clearance.Status)),
		zap.Int("progress", t.Progress()),
	)
	if t.Outcome == workflow.OutcomeStalled {
		s.logger.Warn("last stage approved without full approval",
			zap.String("clearance_id", t.Clearance.ID),
			zap.Int("approved", t.Approved),
			zap.Int("active", t.Active),
		)
	}
	if err := s.cache.Invalidate(ctx, dashboardCachePattern); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

func (s *ClearanceService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return user, nil
}

// officerCanView allows officers to read clearances that reached or passed
// through their department, within their faculty assignment.
func officerCanView(officer models.OfficerActor, student *models.User, c models.Clearance, dept models.Department, entries []models.ApprovalView) bool {
	if dept.FacultyScoped && officer.FacultyAssignmentID != nil {
		if student == nil || student.FacultyID == nil || *student.FacultyID != *officer.FacultyAssignmentID {
			return false
		}
	}
	if c.CurrentDepartmentID != nil && *c.CurrentDepartmentID == officer.DepartmentID {
		return true
	}
	for _, e := range entries {
		if e.DepartmentID == officer.DepartmentID {
			return true
		}
	}
	return false
}

// buildStages lists the active stages in order with their ledger decision,
// followed by entries of departments that have since left the registry.
func buildStages(reg *workflow.Registry, entries []models.ApprovalView, current *string) []dto.StageStatus {
	byDept := make(map[string]models.ApprovalView, len(entries))
	for _, e := range entries {
		byDept[e.DepartmentID] = e
	}
	isCurrent := func(id string) bool { return current != nil && *current == id }

	stages := make([]dto.StageStatus, 0, reg.Len())
	for _, d := range reg.ListActiveOrdered() {
		stage := dto.StageStatus{
			DepartmentID:   d.ID,
			DepartmentName: d.Name,
			SequenceOrder:  d.SequenceOrder,
			Decision:       models.DecisionPending,
			Current:        isCurrent(d.ID),
		}
		if e, ok := byDept[d.ID]; ok {
			stage.Decision = e.Decision
			stage.Comment = e.Comment
			stage.ReviewerName = e.ReviewerName
			stage.DecidedAt = e.DecidedAt
		}
		stages = append(stages, stage)
	}
	for _, e := range entries {
		if reg.Contains(e.DepartmentID) {
			continue
		}
		stages = append(stages, dto.StageStatus{
			DepartmentID:   e.DepartmentID,
			DepartmentName: e.DepartmentName,
			SequenceOrder:  e.SequenceOrder,
			Decision:       e.Decision,
			Comment:        e.Comment,
			ReviewerName:   e.ReviewerName,
			DecidedAt:      e.DecidedAt,
			Current:        isCurrent(e.DepartmentID),
		})
	}
	return stages
}

func currentStageName(stages []dto.StageStatus) *string {
	for _, st := range stages {
		if st.Current {
			name := st.DepartmentName
			return &name
		}
	}
	return nil
}

func transitionResponse(t *workflow.Transition) *dto.TransitionResponse {
	return &dto.TransitionResponse{
		ClearanceID:         t.Clearance.ID,
		Outcome:             string(t.Outcome),
		Status:              t.Clearance.Status,
		CurrentDepartmentID: t.Clearance.CurrentDepartmentID,
		Progress:            t.Progress(),
	}
}
