package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

const (
	facultyDeptID = "3f2b8c1e-9a4d-4e6b-8c2a-1d5e7f9a0b3c"
	libraryDeptID = "6a1c2d3e-4f5a-4b6c-9d7e-8f9a0b1c2d3e"
)

type stubAdminClearances struct {
	items   []models.ClearanceListItem
	filter  models.ClearanceFilter
	remarks map[string]string
}

func (s *stubAdminClearances) FindByID(ctx context.Context, id string) (*models.Clearance, error) {
	r, ok := s.remarks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.Clearance{ID: id, Remarks: r, Status: models.ClearancePending}, nil
}

func (s *stubAdminClearances) List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceListItem, int, error) {
	s.filter = filter
	return s.items, len(s.items), nil
}

func (s *stubAdminClearances) ListAll(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceListItem, error) {
	s.filter = filter
	return s.items, nil
}

func (s *stubAdminClearances) UpdateRemarks(ctx context.Context, id, remarks string) error {
	if _, ok := s.remarks[id]; !ok {
		return sql.ErrNoRows
	}
	s.remarks[id] = remarks
	return nil
}

type stubAdminUsers struct {
	existing map[string]models.User
	created  []*models.User
	filter   models.UserFilter
}

func (s *stubAdminUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := s.existing[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (s *stubAdminUsers) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	s.filter = filter
	return nil, 0, nil
}

func (s *stubAdminUsers) Create(ctx context.Context, exec sqlx.ExtContext, user *models.User) error {
	s.created = append(s.created, user)
	return nil
}

func newAdminFixture() (*AdminService, *stubAdminClearances, *stubAdminUsers, *recordingOutbox) {
	db := newMemoryDB(
		models.Department{ID: facultyDeptID, Name: "Faculty", SequenceOrder: 1, Active: true, FacultyScoped: true},
		models.Department{ID: libraryDeptID, Name: "Library", SequenceOrder: 2, Active: true},
	)
	submitted := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	clearances := &stubAdminClearances{
		items: []models.ClearanceListItem{
			{ID: "c1", StudentName: "Ada Obi", StudentEmail: "ada@student.edu", MatricNumber: strPtr("20H12345"), Status: models.ClearancePending, SubmittedAt: &submitted, CurrentDepartmentName: strPtr("Library")},
			{ID: "c2", StudentName: "=cmd|' /C calc'!A0", StudentEmail: "x@student.edu", Status: models.ClearanceNotStarted},
		},
		remarks: map[string]string{"c1": ""},
	}
	users := &stubAdminUsers{existing: map[string]models.User{"taken@acu.edu": {ID: "u9"}}}
	outbox := &recordingOutbox{}
	svc := NewAdminService(AdminServiceParams{
		Clearances:  clearances,
		Users:       users,
		Departments: memDepartments{db},
		Faculties:   stubFaculties{scienceFacultyID: {ID: scienceFacultyID, Active: true}},
		Outbox:      outbox,
	})
	return svc, clearances, users, outbox
}

func TestAdminServiceClearancesValidatesStatus(t *testing.T) {
	svc, clearances, _, _ := newAdminFixture()

	bogus := models.ClearanceStatus("archived")
	_, _, err := svc.Clearances(context.Background(), models.ClearanceFilter{Status: &bogus})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	items, page, err := svc.Clearances(context.Background(), models.ClearanceFilter{Search: " ada ", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, "ada", clearances.filter.Search)
}

func TestAdminServiceExportClearances(t *testing.T) {
	svc, _, _, _ := newAdminFixture()

	body, filename, err := svc.ExportClearances(context.Background(), models.ClearanceFilter{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filename, "clearances_"))
	assert.True(t, strings.HasSuffix(filename, ".csv"))

	csv := string(body)
	assert.Contains(t, csv, "Matric Number,Student,Email")
	assert.Contains(t, csv, "20H12345,Ada Obi,ada@student.edu,,pending,Library,2026-05-04T09:30:00Z,")
	assert.Contains(t, csv, ",'=cmd", "formula cells are neutralised")
}

func TestAdminServiceUpdateRemarks(t *testing.T) {
	svc, clearances, _, outbox := newAdminFixture()

	c, err := svc.UpdateRemarks(context.Background(), "admin-1", "c1", dto.UpdateRemarksRequest{Remarks: "  library fine waived "}, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "library fine waived", c.Remarks)
	assert.Equal(t, models.ClearancePending, c.Status)
	assert.Equal(t, "library fine waived", clearances.remarks["c1"])

	audits := outbox.audits(t)
	require.Len(t, audits, 1)
	assert.Equal(t, models.AuditActionAdminOverride, audits[0].Action)

	_, err = svc.UpdateRemarks(context.Background(), "admin-1", "nope", dto.UpdateRemarksRequest{Remarks: "x"}, RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestAdminServiceCreateOfficer(t *testing.T) {
	svc, _, users, outbox := newAdminFixture()
	ctx := context.Background()

	officer, err := svc.CreateOfficer(ctx, "admin-1", dto.CreateOfficerRequest{
		Email:               "Dean.Sci@ACU.edu",
		Password:            "password123",
		FullName:            "Dr. Bello",
		DepartmentID:        facultyDeptID,
		FacultyAssignmentID: strPtr(scienceFacultyID),
	}, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "dean.sci@acu.edu", officer.Email)
	assert.Equal(t, models.RoleOfficer, officer.Role)
	require.Len(t, users.created, 1)
	assert.Len(t, outbox.audits(t), 1)

	cases := []struct {
		name string
		req  dto.CreateOfficerRequest
		want *appErrors.Error
	}{
		{"email taken", dto.CreateOfficerRequest{Email: "taken@acu.edu", Password: "password123", FullName: "X", DepartmentID: libraryDeptID}, appErrors.ErrConflict},
		{"unknown department", dto.CreateOfficerRequest{Email: "a@acu.edu", Password: "password123", FullName: "X", DepartmentID: scienceFacultyID}, appErrors.ErrValidation},
		{"faculty on unscoped department", dto.CreateOfficerRequest{Email: "b@acu.edu", Password: "password123", FullName: "X", DepartmentID: libraryDeptID, FacultyAssignmentID: strPtr(scienceFacultyID)}, appErrors.ErrValidation},
		{"unknown faculty", dto.CreateOfficerRequest{Email: "c@acu.edu", Password: "password123", FullName: "X", DepartmentID: facultyDeptID, FacultyAssignmentID: strPtr(libraryDeptID)}, appErrors.ErrValidation},
		{"short password", dto.CreateOfficerRequest{Email: "d@acu.edu", Password: "short", FullName: "X", DepartmentID: libraryDeptID}, appErrors.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOfficer(ctx, "admin-1", tc.req, RequestMeta{})
			require.Error(t, err)
			assert.Equal(t, tc.want.Code, appErrors.FromError(err).Code)
		})
	}
	assert.Len(t, users.created, 1)
}

func TestAdminServiceOfficersFiltersRole(t *testing.T) {
	svc, _, users, _ := newAdminFixture()

	_, page, err := svc.Officers(context.Background(), libraryDeptID, " bello ", 1, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, page.PageSize)
	require.NotNil(t, users.filter.Role)
	assert.Equal(t, models.RoleOfficer, *users.filter.Role)
	assert.Equal(t, libraryDeptID, users.filter.DepartmentID)
	assert.Equal(t, "bello", users.filter.Search)
}
