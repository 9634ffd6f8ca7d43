package main

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/clearance-api/internal/models"
)

type memDepartmentSeeder struct {
	byName  map[string]models.Department
	updates int
}

func (m *memDepartmentSeeder) FindByName(_ context.Context, name string) (*models.Department, error) {
	d, ok := m.byName[name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (m *memDepartmentSeeder) Create(_ context.Context, d *models.Department) error {
	m.byName[d.Name] = *d
	return nil
}

func (m *memDepartmentSeeder) Update(_ context.Context, d *models.Department) error {
	m.updates++
	m.byName[d.Name] = *d
	return nil
}

type memFacultySeeder map[string]models.Faculty

func (m memFacultySeeder) UpsertByCode(_ context.Context, f *models.Faculty) (bool, error) {
	_, exists := m[f.Code]
	m[f.Code] = *f
	return !exists, nil
}

func TestSeedDepartmentsIsIdempotent(t *testing.T) {
	repo := &memDepartmentSeeder{byName: map[string]models.Department{
		"Library": {ID: "lib", Name: "Library", SequenceOrder: 9, Active: false},
	}}

	result, err := seedDepartments(context.Background(), repo, defaultDepartments)
	require.NoError(t, err)
	assert.Equal(t, seedResult{created: 5, updated: 1}, result)
	assert.Equal(t, 2, repo.byName["Library"].SequenceOrder)
	assert.True(t, repo.byName["Library"].Active)
	assert.True(t, repo.byName["Faculty"].FacultyScoped)

	result, err = seedDepartments(context.Background(), repo, defaultDepartments)
	require.NoError(t, err)
	assert.Equal(t, seedResult{updated: 6}, result)
	assert.Len(t, repo.byName, 6)
}

func TestSeedFaculties(t *testing.T) {
	repo := memFacultySeeder{"LAW": {Code: "LAW"}}

	result, err := seedFaculties(context.Background(), repo, defaultFaculties)
	require.NoError(t, err)
	assert.Equal(t, seedResult{created: 6, updated: 1}, result)
	assert.True(t, repo["SCI"].Active)
}

func TestWorkflowTable(t *testing.T) {
	out := workflowTable([]models.Department{
		{Name: "Faculty", SequenceOrder: 1, FacultyScoped: true, Active: true},
		{Name: "Hostel", SequenceOrder: 5, Active: false},
	})
	assert.Contains(t, out, "Clearance Workflow Order")
	assert.Contains(t, out, "per faculty")
	assert.Contains(t, out, "retired")
}

type memAdminRepo struct {
	users map[string]models.User
}

func (m *memAdminRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (m *memAdminRepo) Create(_ context.Context, _ sqlx.ExtContext, u *models.User) error {
	u.ID = "admin-1"
	m.users[u.Email] = *u
	return nil
}

func TestCreateAdmin(t *testing.T) {
	repo := &memAdminRepo{users: map[string]models.User{}}

	user, err := createAdmin(context.Background(), repo, " Registrar@ACU.edu ", "Registrar", "password123")
	require.NoError(t, err)
	assert.Equal(t, "registrar@acu.edu", user.Email)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")))

	_, err = createAdmin(context.Background(), repo, "registrar@acu.edu", "Again", "password123")
	assert.Error(t, err)

	_, err = createAdmin(context.Background(), repo, "short@acu.edu", "X", "short")
	assert.Error(t, err)
}
