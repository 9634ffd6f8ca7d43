package service

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type clearanceFixture struct {
	db     *memoryDB
	outbox *recordingOutbox
	mock   sqlmock.Sqlmock
	svc    *ClearanceService
}

var (
	studentActor   = models.StudentActor{UserID: "student-1", FacultyID: strPtr("sci")}
	facultyOfficer = models.OfficerActor{UserID: "officer-fac", DepartmentID: "faculty", FacultyAssignmentID: strPtr("sci")}
	libraryOfficer = models.OfficerActor{UserID: "officer-lib", DepartmentID: "library"}
	bursaryOfficer = models.OfficerActor{UserID: "officer-bur", DepartmentID: "bursary"}
)

func newClearanceFixture(t *testing.T) *clearanceFixture {
	t.Helper()
	db := newMemoryDB(
		models.Department{ID: "faculty", Name: "Faculty", SequenceOrder: 1, Active: true, FacultyScoped: true},
		models.Department{ID: "library", Name: "Library", SequenceOrder: 2, Active: true},
		models.Department{ID: "bursary", Name: "Bursary", SequenceOrder: 3, Active: true},
	)
	db.users["student-1"] = models.User{ID: "student-1", Email: "ada@student.edu", FullName: "Ada Obi", Role: models.RoleStudent, FacultyID: strPtr("sci"), Active: true}
	db.clearances["clearance-1"] = models.Clearance{ID: "clearance-1", StudentID: "student-1", Status: models.ClearanceNotStarted, Version: 1}
	db.documents["clearance-1"] = 1

	tx, mock := newTxProviderMock(t)
	outbox := &recordingOutbox{}
	svc := NewClearanceService(ClearanceDeps{
		Clearances:  memClearances{db},
		Approvals:   memApprovals{db},
		Documents:   memDocuments{db},
		Views:       memDocuments{db},
		Users:       memUsers{db},
		Departments: memDepartments{db},
		Registry:    staticRegistry{reg: db.registry(t)},
		Outbox:      outbox,
		Tx:          tx,
	}, nil, nil, nil)
	return &clearanceFixture{db: db, outbox: outbox, mock: mock, svc: svc}
}

func (f *clearanceFixture) submit(t *testing.T) *dto.TransitionResponse {
	t.Helper()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	resp, err := f.svc.Submit(context.Background(), studentActor, RequestMeta{IP: "10.0.0.1"})
	require.NoError(t, err)
	return resp
}

func (f *clearanceFixture) decide(t *testing.T, officer models.OfficerActor, decision models.Decision, comment string) *dto.TransitionResponse {
	t.Helper()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	resp, err := f.svc.Decide(context.Background(), officer, "clearance-1", dto.DecisionRequest{Decision: decision, Comment: comment}, RequestMeta{})
	require.NoError(t, err)
	return resp
}

func TestClearanceServiceSubmitCreatesLedger(t *testing.T) {
	f := newClearanceFixture(t)

	resp := f.submit(t)
	assert.Equal(t, "submitted", resp.Outcome)
	assert.Equal(t, models.ClearancePending, resp.Status)
	require.NotNil(t, resp.CurrentDepartmentID)
	assert.Equal(t, "faculty", *resp.CurrentDepartmentID)
	assert.Equal(t, 0, resp.Progress)

	entries := f.db.entries["clearance-1"]
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, models.DecisionPending, e.Decision)
	}
	stored := f.db.clearance("clearance-1")
	assert.Equal(t, 2, stored.Version)
	assert.NotNil(t, stored.SubmittedAt)

	audits := f.outbox.audits(t)
	require.Len(t, audits, 1)
	assert.Equal(t, models.AuditActionClearanceSubmit, audits[0].Action)
	assert.Equal(t, "10.0.0.1", audits[0].IPAddress)
	notes := f.outbox.notifications(t)
	require.Len(t, notes, 1)
	assert.Equal(t, "ada@student.edu", notes[0].To)
	assert.Contains(t, notes[0].Subject, "Under Review")
	for _, inTx := range f.outbox.inTx {
		assert.True(t, inTx, "events must be written in the transition transaction")
	}
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClearanceServiceApprovesThroughEveryStage(t *testing.T) {
	f := newClearanceFixture(t)
	f.submit(t)

	resp := f.decide(t, facultyOfficer, models.DecisionApproved, "")
	assert.Equal(t, "advanced", resp.Outcome)
	assert.Equal(t, models.ClearanceInProgress, resp.Status)
	assert.Equal(t, "library", *resp.CurrentDepartmentID)
	assert.Equal(t, 33, resp.Progress)

	resp = f.decide(t, libraryOfficer, models.DecisionApproved, "")
	assert.Equal(t, "bursary", *resp.CurrentDepartmentID)
	assert.Equal(t, 66, resp.Progress)

	resp = f.decide(t, bursaryOfficer, models.DecisionApproved, "all fees paid")
	assert.Equal(t, "completed", resp.Outcome)
	assert.Equal(t, models.ClearanceApproved, resp.Status)
	assert.Nil(t, resp.CurrentDepartmentID)
	assert.Equal(t, 100, resp.Progress)

	stored := f.db.clearance("clearance-1")
	assert.NotNil(t, stored.CompletedAt)

	notes := f.outbox.notifications(t)
	require.Len(t, notes, 4)
	assert.Equal(t, "Final Year Clearance Completed", notes[3].Subject)
	assert.Len(t, f.outbox.audits(t), 4)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClearanceServiceRejectAndResubmitToStage(t *testing.T) {
	f := newClearanceFixture(t)
	f.submit(t)
	f.decide(t, facultyOfficer, models.DecisionApproved, "")

	resp := f.decide(t, libraryOfficer, models.DecisionRejected, "overdue books")
	assert.Equal(t, "rejected", resp.Outcome)
	assert.Equal(t, models.ClearanceRejected, resp.Status)
	assert.Equal(t, "library", *resp.CurrentDepartmentID)

	audits := f.outbox.audits(t)
	last := audits[len(audits)-1]
	assert.Equal(t, models.AuditActionApprovalReject, last.Action)
	assert.Contains(t, last.Description, "overdue books")
	notes := f.outbox.notifications(t)
	assert.Contains(t, notes[len(notes)-1].Body, "Feedback from Library: overdue books")

	resp = f.submit(t)
	assert.Equal(t, "resubmitted_to_stage", resp.Outcome)
	assert.Equal(t, models.ClearanceInProgress, resp.Status)
	assert.Equal(t, "library", *resp.CurrentDepartmentID)
	assert.Equal(t, 33, resp.Progress)

	decisions := map[string]models.Decision{}
	for _, e := range f.db.entries["clearance-1"] {
		decisions[e.DepartmentID] = e.Decision
	}
	assert.Equal(t, models.DecisionApproved, decisions["faculty"])
	assert.Equal(t, models.DecisionPending, decisions["library"])
	assert.Nil(t, f.db.clearance("clearance-1").RejectedEntryID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClearanceServiceDecideConflicts(t *testing.T) {
	f := newClearanceFixture(t)
	f.submit(t)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.Decide(context.Background(), libraryOfficer, "clearance-1", dto.DecisionRequest{Decision: models.DecisionApproved}, RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotAtStage))

	outsider := models.OfficerActor{UserID: "officer-arts", DepartmentID: "faculty", FacultyAssignmentID: strPtr("arts")}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.Decide(context.Background(), outsider, "clearance-1", dto.DecisionRequest{Decision: models.DecisionApproved}, RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.Decide(context.Background(), facultyOfficer, "missing", dto.DecisionRequest{Decision: models.DecisionApproved}, RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	assert.Len(t, f.outbox.events, 1, "only the submission queued events")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClearanceServiceDecideValidatesBeforeLocking(t *testing.T) {
	f := newClearanceFixture(t)

	_, err := f.svc.Decide(context.Background(), facultyOfficer, "clearance-1", dto.DecisionRequest{Decision: models.DecisionRejected, Comment: "  "}, RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Decide(context.Background(), facultyOfficer, "clearance-1", dto.DecisionRequest{Decision: "maybe"}, RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClearanceServiceSubmitRequiresDocuments(t *testing.T) {
	f := newClearanceFixture(t)
	f.db.documents["clearance-1"] = 0

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.Submit(context.Background(), studentActor, RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNoDocuments))
	assert.Empty(t, f.db.entries["clearance-1"])
	assert.Empty(t, f.outbox.events)
	assert.Equal(t, models.ClearanceNotStarted, f.db.clearance("clearance-1").Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClearanceServiceSubmitTwiceIsStale(t *testing.T) {
	f := newClearanceFixture(t)
	f.submit(t)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.Submit(context.Background(), studentActor, RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrStaleState))
	assert.True(t, appErrors.IsStateConflict(err))
}

func TestClearanceServiceVersionConflictRollsBack(t *testing.T) {
	f := newClearanceFixture(t)
	f.db.updateErr = repository.ErrVersionConflict

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.Submit(context.Background(), studentActor, RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrStaleState))
	assert.Empty(t, f.outbox.events)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClearanceServiceOutboxFailureAbortsTransition(t *testing.T) {
	f := newClearanceFixture(t)
	f.outbox.err = errBoom

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.Submit(context.Background(), studentActor, RequestMeta{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestClearanceServiceDashboard(t *testing.T) {
	f := newClearanceFixture(t)

	dash, err := f.svc.Dashboard(context.Background(), studentActor)
	require.NoError(t, err)
	assert.True(t, dash.CanSubmit)
	assert.True(t, dash.CanEditDocuments)
	assert.Len(t, dash.Stages, 3)
	assert.Nil(t, dash.CurrentDepartmentName)

	f.submit(t)
	f.decide(t, facultyOfficer, models.DecisionApproved, "")

	dash, err = f.svc.Dashboard(context.Background(), studentActor)
	require.NoError(t, err)
	assert.False(t, dash.CanSubmit)
	assert.False(t, dash.CanEditDocuments)
	assert.Equal(t, 33, dash.Progress)
	require.NotNil(t, dash.CurrentDepartmentName)
	assert.Equal(t, "Library", *dash.CurrentDepartmentName)
	assert.Equal(t, models.DecisionApproved, dash.Stages[0].Decision)
	assert.True(t, dash.Stages[1].Current)
}

func TestClearanceServiceDetailAccess(t *testing.T) {
	f := newClearanceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Detail(ctx, models.StudentActor{UserID: "student-2"}, "clearance-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.Detail(ctx, libraryOfficer, "clearance-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden), "not submitted yet")

	f.submit(t)

	detail, err := f.svc.Detail(ctx, facultyOfficer, "clearance-1")
	require.NoError(t, err)
	assert.True(t, detail.CanDecide)
	assert.Equal(t, "ada@student.edu", detail.Student.Email)

	detail, err = f.svc.Detail(ctx, libraryOfficer, "clearance-1")
	require.NoError(t, err)
	assert.False(t, detail.CanDecide)

	outsider := models.OfficerActor{UserID: "officer-arts", DepartmentID: "faculty", FacultyAssignmentID: strPtr("arts")}
	_, err = f.svc.Detail(ctx, outsider, "clearance-1")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	detail, err = f.svc.Detail(ctx, models.AdminActor{UserID: "admin"}, "clearance-1")
	require.NoError(t, err)
	assert.False(t, detail.CanDecide)
	assert.Len(t, detail.Documents, 1)
}

func TestBuildStagesKeepsRetiredDepartments(t *testing.T) {
	f := newClearanceFixture(t)
	reg := f.db.registry(t)
	entries := []models.ApprovalView{
		{ApprovalEntry: models.ApprovalEntry{DepartmentID: "library", Decision: models.DecisionApproved}, DepartmentName: "Library", SequenceOrder: 2},
		{ApprovalEntry: models.ApprovalEntry{DepartmentID: "hostel", Decision: models.DecisionApproved}, DepartmentName: "Hostel", SequenceOrder: 4},
	}

	stages := buildStages(reg, entries, strPtr("bursary"))
	require.Len(t, stages, 4)
	assert.Equal(t, models.DecisionPending, stages[0].Decision)
	assert.Equal(t, models.DecisionApproved, stages[1].Decision)
	assert.True(t, stages[2].Current)
	assert.Equal(t, "hostel", stages[3].DepartmentID)
	assert.Equal(t, "Bursary", *currentStageName(stages))
}
