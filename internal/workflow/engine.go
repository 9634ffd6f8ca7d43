package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

// Outcome names the branch a transition took.
type Outcome string

const (
	OutcomeSubmitted          Outcome = "submitted"
	OutcomeResubmittedToStage Outcome = "resubmitted_to_stage"
	OutcomeResubmittedRestart Outcome = "resubmitted_restart"
	OutcomeAdvanced           Outcome = "advanced"
	OutcomeCompleted          Outcome = "completed"
	OutcomeRejected           Outcome = "rejected"
	OutcomeStalled            Outcome = "stalled"
)

// Aggregate is a clearance with its ledger, loaded under the row lock.
type Aggregate struct {
	Clearance     models.Clearance
	Entries       []models.ApprovalView
	DocumentCount int
}

// Transition is the mutation set produced by Submit or Decide. Nothing is
// persisted by the engine; the caller applies it in one transaction.
type Transition struct {
	Outcome   Outcome
	Clearance models.Clearance

	// DeleteEntries wipes the ledger before NewEntries are created.
	DeleteEntries bool
	NewEntries    []models.ApprovalEntry
	ResetEntryID  string
	Decided       *models.ApprovalEntry

	// Stage is the department the transition acted on or moved to.
	Stage models.Department

	Approved int
	Active   int
}

// Progress is the completion percentage after the transition.
func (t *Transition) Progress() int {
	return percentage(t.Approved, t.Active)
}

// Engine runs clearance state transitions against a registry snapshot.
type Engine struct {
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// NewEngine constructs an engine using wall-clock time and random UUIDs.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{now: time.Now, newID: uuid.NewString, logger: logger}
}

// Submit moves a not_started or rejected clearance into review.
func (e *Engine) Submit(agg Aggregate, reg *Registry) (*Transition, error) {
	c := agg.Clearance
	if c.Status != models.ClearanceNotStarted && c.Status != models.ClearanceRejected {
		return nil, appErrors.Clone(appErrors.ErrStaleState, fmt.Sprintf("clearance is already %s", c.Status))
	}
	if agg.DocumentCount < 1 {
		return nil, appErrors.ErrNoDocuments
	}
	first, ok := reg.First()
	if !ok {
		return nil, appErrors.ErrNoActiveDepartments
	}

	now := e.now().UTC()
	t := &Transition{Clearance: c, Active: reg.Len()}
	t.Clearance.SubmittedAt = &now
	t.Clearance.RejectedEntryID = nil

	if c.Status == models.ClearanceNotStarted {
		t.Outcome = OutcomeSubmitted
		t.NewEntries = e.pendingEntries(c.ID, reg, agg.Entries)
		t.Clearance.Status = models.ClearancePending
		t.Clearance.CurrentDepartmentID = strPtr(first.ID)
		t.Stage = first
		t.Approved = countApproved(agg.Entries, reg)
		return t, nil
	}

	if rejected, ok := findRejected(agg.Entries, c.RejectedEntryID); ok {
		t.Outcome = OutcomeResubmittedToStage
		t.ResetEntryID = rejected.ID
		t.Clearance.Status = models.ClearanceInProgress
		t.Clearance.CurrentDepartmentID = strPtr(rejected.DepartmentID)
		t.Stage = stageOf(rejected, reg)
		t.Approved = countApproved(agg.Entries, reg)
		return t, nil
	}

	e.logger.Warn("rejected clearance has no rejected entry, restarting ledger",
		zap.String("clearance_id", c.ID),
		zap.Int("entries", len(agg.Entries)),
	)
	t.Outcome = OutcomeResubmittedRestart
	t.DeleteEntries = true
	t.NewEntries = e.pendingEntries(c.ID, reg, nil)
	t.Clearance.Status = models.ClearanceInProgress
	t.Clearance.CurrentDepartmentID = strPtr(first.ID)
	t.Stage = first
	return t, nil
}

// DecideInput carries an officer's decision on a stage.
type DecideInput struct {
	Department models.Department
	Decision   models.Decision
	ReviewerID string
	Comment    string
}

// Decide records an approval or rejection at the clearance's current stage.
func (e *Engine) Decide(agg Aggregate, reg *Registry, in DecideInput) (*Transition, error) {
	if err := ValidateDecision(in.Decision, in.Comment); err != nil {
		return nil, err
	}
	c := agg.Clearance
	if c.CurrentDepartmentID == nil || *c.CurrentDepartmentID != in.Department.ID {
		return nil, appErrors.Clone(appErrors.ErrNotAtStage, fmt.Sprintf("%s is not the current stage of this clearance", in.Department.Name))
	}
	if c.Status != models.ClearancePending && c.Status != models.ClearanceInProgress {
		return nil, appErrors.Clone(appErrors.ErrStaleState, fmt.Sprintf("clearance is %s", c.Status))
	}

	now := e.now().UTC()
	t := &Transition{Clearance: c, Stage: in.Department, Active: reg.Len()}

	var entry models.ApprovalEntry
	if view, ok := entryFor(agg.Entries, in.Department.ID); ok {
		entry = view.ApprovalEntry
	} else {
		entry = models.ApprovalEntry{
			ID:           e.newID(),
			ClearanceID:  c.ID,
			DepartmentID: in.Department.ID,
			Decision:     models.DecisionPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		t.NewEntries = append(t.NewEntries, entry)
	}
	if entry.Decision != models.DecisionPending {
		return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, fmt.Sprintf("%s has already %s this clearance", in.Department.Name, entry.Decision))
	}

	entry.Decision = in.Decision
	entry.ReviewerID = strPtr(in.ReviewerID)
	entry.Comment = strings.TrimSpace(in.Comment)
	entry.DecidedAt = &now
	entry.UpdatedAt = now
	t.Decided = &entry

	approved := countApproved(agg.Entries, reg)
	if in.Decision == models.DecisionRejected {
		t.Outcome = OutcomeRejected
		t.Clearance.Status = models.ClearanceRejected
		t.Clearance.RejectedEntryID = strPtr(entry.ID)
		t.Approved = approved
		return t, nil
	}

	if reg.Contains(in.Department.ID) {
		approved++
	}
	t.Approved = approved

	if next, ok := reg.NextAfter(in.Department); ok {
		t.Outcome = OutcomeAdvanced
		t.Clearance.Status = models.ClearanceInProgress
		t.Clearance.CurrentDepartmentID = strPtr(next.ID)
		t.Stage = next
		return t, nil
	}

	t.Clearance.CurrentDepartmentID = nil
	if IsFullyApproved(approved, reg.Len()) {
		t.Outcome = OutcomeCompleted
		t.Clearance.Status = models.ClearanceApproved
		t.Clearance.CompletedAt = &now
		return t, nil
	}

	e.logger.Warn("last stage approved but clearance is not fully approved",
		zap.String("clearance_id", c.ID),
		zap.Int("approved", approved),
		zap.Int("active", reg.Len()),
	)
	t.Outcome = OutcomeStalled
	return t, nil
}

// ValidateDecision rejects unknown decisions and rejections without a comment.
func ValidateDecision(decision models.Decision, comment string) error {
	switch decision {
	case models.DecisionApproved:
		return nil
	case models.DecisionRejected:
		if strings.TrimSpace(comment) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "a comment is required when rejecting")
		}
		return nil
	default:
		return appErrors.Clone(appErrors.ErrValidation, "decision must be approved or rejected")
	}
}

// ProgressPercentage is floor(100 * approved / active) over active stages.
func ProgressPercentage(entries []models.ApprovalView, reg *Registry) int {
	return percentage(countApproved(entries, reg), reg.Len())
}

// IsFullyApproved reports whether every active stage has approved.
func IsFullyApproved(approved, active int) bool {
	return active > 0 && approved == active
}

// Review reports whether officer may decide the clearance's current stage for
// student. A different current stage is a NotAtStage conflict; a faculty
// mismatch on a faculty-scoped stage is Forbidden.
func Review(officer models.OfficerActor, student *models.User, c models.Clearance, dept models.Department) error {
	if c.CurrentDepartmentID == nil || *c.CurrentDepartmentID != officer.DepartmentID || dept.ID != officer.DepartmentID {
		return appErrors.Clone(appErrors.ErrNotAtStage, "this clearance is not waiting at your department")
	}
	if !dept.FacultyScoped || officer.FacultyAssignmentID == nil {
		return nil
	}
	if student == nil || student.FacultyID == nil || *student.FacultyID != *officer.FacultyAssignmentID {
		return appErrors.Clone(appErrors.ErrForbidden, "student belongs to another faculty")
	}
	return nil
}

// CanReview is the boolean form of Review.
func CanReview(officer models.OfficerActor, student *models.User, c models.Clearance, dept models.Department) bool {
	return Review(officer, student, c, dept) == nil
}

func (e *Engine) pendingEntries(clearanceID string, reg *Registry, existing []models.ApprovalView) []models.ApprovalEntry {
	now := e.now().UTC()
	entries := make([]models.ApprovalEntry, 0, reg.Len())
	for _, d := range reg.ListActiveOrdered() {
		if _, ok := entryFor(existing, d.ID); ok {
			continue
		}
		entries = append(entries, models.ApprovalEntry{
			ID:           e.newID(),
			ClearanceID:  clearanceID,
			DepartmentID: d.ID,
			Decision:     models.DecisionPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return entries
}

// findRejected prefers the entry the record points at, then the lowest-order
// rejected entry.
func findRejected(entries []models.ApprovalView, pointer *string) (models.ApprovalView, bool) {
	if pointer != nil {
		for _, e := range entries {
			if e.ID == *pointer && e.Decision == models.DecisionRejected {
				return e, true
			}
		}
	}
	var (
		found models.ApprovalView
		ok    bool
	)
	for _, e := range entries {
		if e.Decision != models.DecisionRejected {
			continue
		}
		if !ok || e.SequenceOrder < found.SequenceOrder {
			found, ok = e, true
		}
	}
	return found, ok
}

func entryFor(entries []models.ApprovalView, departmentID string) (models.ApprovalView, bool) {
	for _, e := range entries {
		if e.DepartmentID == departmentID {
			return e, true
		}
	}
	return models.ApprovalView{}, false
}

func countApproved(entries []models.ApprovalView, reg *Registry) int {
	n := 0
	for _, e := range entries {
		if e.Decision == models.DecisionApproved && reg.Contains(e.DepartmentID) {
			n++
		}
	}
	return n
}

func stageOf(entry models.ApprovalView, reg *Registry) models.Department {
	if d, ok := reg.Get(entry.DepartmentID); ok {
		return d
	}
	return models.Department{ID: entry.DepartmentID, Name: entry.DepartmentName, SequenceOrder: entry.SequenceOrder}
}

func percentage(approved, active int) int {
	if active <= 0 {
		return 0
	}
	if approved > active {
		approved = active
	}
	return approved * 100 / active
}

func strPtr(v string) *string {
	return &v
}
