package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type stubOfficerApprovals struct {
	stubDepartmentStats
	filter  models.QueueFilter
	queue   []models.QueueItem
	history []models.ReviewHistoryItem
}

func (s *stubOfficerApprovals) ListPendingForDepartment(ctx context.Context, filter models.QueueFilter) ([]models.QueueItem, int, error) {
	s.filter = filter
	return s.queue, len(s.queue), nil
}

func (s *stubOfficerApprovals) ListByReviewer(ctx context.Context, reviewerID string, page, pageSize int) ([]models.ReviewHistoryItem, int, error) {
	return s.history, len(s.history), nil
}

func newOfficerFixture() (*OfficerService, *stubOfficerApprovals) {
	db := newMemoryDB(
		models.Department{ID: "faculty", Name: "Faculty", SequenceOrder: 1, Active: true, FacultyScoped: true},
		models.Department{ID: "library", Name: "Library", SequenceOrder: 2, Active: true},
	)
	approvals := &stubOfficerApprovals{
		stubDepartmentStats: stubDepartmentStats{{DepartmentID: "library", DepartmentName: "Library", SequenceOrder: 2, Pending: 5, Approved: 7}},
		queue:               []models.QueueItem{{ClearanceID: "c1"}},
		history:             []models.ReviewHistoryItem{{ClearanceID: "c0"}, {ClearanceID: "c9"}},
	}
	return NewOfficerService(approvals, memDepartments{db}, nil), approvals
}

func TestOfficerServiceQueueScopesByFaculty(t *testing.T) {
	svc, approvals := newOfficerFixture()
	ctx := context.Background()

	items, page, err := svc.Queue(ctx, facultyOfficer, "  ada ", 0, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, page)
	assert.Equal(t, "faculty", approvals.filter.DepartmentID)
	require.NotNil(t, approvals.filter.FacultyID)
	assert.Equal(t, "sci", *approvals.filter.FacultyID)
	assert.Equal(t, "ada", approvals.filter.Search)

	// assignment is ignored on departments that are not faculty scoped
	scoped := models.OfficerActor{UserID: "o", DepartmentID: "library", FacultyAssignmentID: strPtr("sci")}
	_, _, err = svc.Queue(ctx, scoped, "", 2, 10)
	require.NoError(t, err)
	assert.Nil(t, approvals.filter.FacultyID)

	_, _, err = svc.Queue(ctx, models.OfficerActor{UserID: "o", DepartmentID: "gone"}, "", 1, 10)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestOfficerServiceStats(t *testing.T) {
	svc, _ := newOfficerFixture()

	stats, err := svc.Stats(context.Background(), libraryOfficer)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Department.Pending)
	assert.Equal(t, 2, stats.Reviewed)

	stats, err = svc.Stats(context.Background(), facultyOfficer)
	require.NoError(t, err)
	assert.Equal(t, "Faculty", stats.Department.DepartmentName)
	assert.Zero(t, stats.Department.Pending)

	history, page, err := svc.History(context.Background(), libraryOfficer, 1, 50)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, 50, page.PageSize)
}
