package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.User
	filter    models.UserFilter
	listErr   error
	updates   int
	revoked   []string
	revokeErr error
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.filter = filter
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	copy := *user
	m.users[user.ID] = &copy
	m.updates++
	return nil
}

func (m *mockUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return m.revokeErr
}

func newUserFixture() (*UserService, *mockUserRepo, *recordingOutbox) {
	db := newMemoryDB(
		models.Department{ID: facultyDeptID, Name: "Faculty", SequenceOrder: 1, Active: true, FacultyScoped: true},
		models.Department{ID: libraryDeptID, Name: "Library", SequenceOrder: 2, Active: true},
	)
	repo := &mockUserRepo{users: map[string]*models.User{
		"officer-1": {ID: "officer-1", Email: "dean.sci@acu.edu", FullName: "Dr. Bello", Role: models.RoleOfficer, DepartmentID: strPtr(facultyDeptID), FacultyAssignmentID: strPtr(scienceFacultyID), Active: true},
		"student-1": {ID: "student-1", Email: "ada@student.edu", FullName: "Ada Obi", Role: models.RoleStudent, Active: true},
		"admin-1":   {ID: "admin-1", Email: "registrar@acu.edu", FullName: "Registrar", Role: models.RoleAdmin, Active: true},
	}}
	outbox := &recordingOutbox{}
	svc := NewUserService(repo, memDepartments{db}, stubFaculties{scienceFacultyID: {ID: scienceFacultyID, Active: true}}, outbox, nil, nil, nil)
	return svc, repo, outbox
}

func TestUserServiceList(t *testing.T) {
	svc, repo, _ := newUserFixture()

	role := models.RoleOfficer
	_, page, err := svc.List(context.Background(), models.UserFilter{Role: &role, Search: "  bello ", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, "bello", repo.filter.Search)

	bogus := models.UserRole("BURSAR")
	_, _, err = svc.List(context.Background(), models.UserFilter{Role: &bogus})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	repo.listErr = errors.New("boom")
	_, _, err = svc.List(context.Background(), models.UserFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestUserServiceGetNotFound(t *testing.T) {
	svc, _, _ := newUserFixture()

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceReassignOfficer(t *testing.T) {
	svc, repo, outbox := newUserFixture()

	updated, err := svc.Update(context.Background(), "admin-1", "officer-1", dto.UpdateUserRequest{
		DepartmentID: strPtr(libraryDeptID),
	}, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, libraryDeptID, *updated.DepartmentID)
	assert.Nil(t, updated.FacultyAssignmentID, "faculty scope is dropped outside the faculty stage")
	assert.Equal(t, 1, repo.updates)

	audits := outbox.audits(t)
	require.Len(t, audits, 1)
	assert.Equal(t, models.AuditActionUserUpdate, audits[0].Action)
	assert.Contains(t, audits[0].Description, "assignment")
}

func TestUserServiceDeactivateRevokesTokens(t *testing.T) {
	svc, repo, _ := newUserFixture()

	updated, err := svc.Update(context.Background(), "admin-1", "officer-1", dto.UpdateUserRequest{Active: boolPtr(false)}, RequestMeta{})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, []string{"officer-1"}, repo.revoked)

	_, err = svc.Update(context.Background(), "admin-1", "officer-1", dto.UpdateUserRequest{Active: boolPtr(true)}, RequestMeta{})
	require.NoError(t, err)
	assert.Len(t, repo.revoked, 1)
	assert.True(t, repo.users["officer-1"].Active)
}

func TestUserServiceUpdateNoChangesSkipsWrite(t *testing.T) {
	svc, repo, outbox := newUserFixture()

	_, err := svc.Update(context.Background(), "admin-1", "student-1", dto.UpdateUserRequest{FullName: strPtr(" Ada Obi ")}, RequestMeta{})
	require.NoError(t, err)
	assert.Zero(t, repo.updates)
	assert.Empty(t, outbox.audits(t))
}

func TestUserServiceUpdateRejections(t *testing.T) {
	svc, repo, _ := newUserFixture()

	cases := []struct {
		name   string
		userID string
		req    dto.UpdateUserRequest
		want   *appErrors.Error
	}{
		{"unknown user", "missing", dto.UpdateUserRequest{FullName: strPtr("X")}, appErrors.ErrNotFound},
		{"self deactivation", "admin-1", dto.UpdateUserRequest{Active: boolPtr(false)}, appErrors.ErrValidation},
		{"blank name", "student-1", dto.UpdateUserRequest{FullName: strPtr("   ")}, appErrors.ErrValidation},
		{"student assignment", "student-1", dto.UpdateUserRequest{DepartmentID: strPtr(libraryDeptID)}, appErrors.ErrValidation},
		{"unknown department", "officer-1", dto.UpdateUserRequest{DepartmentID: strPtr(scienceFacultyID)}, appErrors.ErrValidation},
		{"faculty on unscoped department", "officer-1", dto.UpdateUserRequest{DepartmentID: strPtr(libraryDeptID), FacultyAssignmentID: strPtr(scienceFacultyID)}, appErrors.ErrValidation},
		{"unknown faculty", "officer-1", dto.UpdateUserRequest{FacultyAssignmentID: strPtr(libraryDeptID)}, appErrors.ErrValidation},
		{"malformed department", "officer-1", dto.UpdateUserRequest{DepartmentID: strPtr("library")}, appErrors.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), "admin-1", tc.userID, tc.req, RequestMeta{})
			require.Error(t, err)
			assert.Equal(t, tc.want.Code, appErrors.FromError(err).Code)
		})
	}
	assert.Zero(t, repo.updates)
}
