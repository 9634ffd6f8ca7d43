package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
)

var clearanceRowColumns = []string{"id", "student_id", "status", "current_department_id", "rejected_entry_id", "remarks", "version", "submitted_at", "completed_at", "created_at", "updated_at"}

func TestGetForUpdateLocksRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + clearanceColumns + " FROM clearances WHERE id = $1 FOR UPDATE")).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows(clearanceRowColumns).AddRow("c-1", "s-1", "pending", "d-1", nil, "", 3, now, nil, now, now))
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)
	clearance, err := repo.GetForUpdate(context.Background(), tx, "c-1")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, models.ClearancePending, clearance.Status)
	assert.Equal(t, 3, clearance.Version)
	require.NotNil(t, clearance.CurrentDepartmentID)
	assert.Equal(t, "d-1", *clearance.CurrentDepartmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateClearanceBumpsVersion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectExec(`UPDATE clearances SET .*version = version \+ 1.*WHERE id = \$\d+ AND version = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	clearance := &models.Clearance{ID: "c-1", Status: models.ClearanceInProgress, Version: 4}
	require.NoError(t, repo.Update(context.Background(), nil, clearance))
	assert.Equal(t, 5, clearance.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateClearanceDetectsVersionConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	mock.ExpectExec("UPDATE clearances SET").WillReturnResult(sqlmock.NewResult(0, 0))

	clearance := &models.Clearance{ID: "c-1", Status: models.ClearanceInProgress, Version: 4}
	err := repo.Update(context.Background(), nil, clearance)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, 4, clearance.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListClearancesWithFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClearanceRepository(db)

	now := time.Now()
	status := models.ClearanceRejected
	mock.ExpectQuery(`FROM clearances c.*WHERE 1=1 AND c.status = \$1 AND \(LOWER\(u.full_name\) LIKE \$2.*ORDER BY c.updated_at DESC LIMIT 10 OFFSET 10`).
		WithArgs(status, "%ada%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "student_name", "student_email", "matric_number", "faculty_name", "status", "current_department_id", "current_department_name", "submitted_at", "completed_at", "updated_at"}).
			AddRow("c-1", "s-1", "Ada Obi", "ada@acu.edu.ng", "20H12345", "Faculty of Humanities", "rejected", "d-3", "Bursary", now, nil, now))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM clearances c JOIN users u`).
		WithArgs(status, "%ada%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	items, total, err := repo.List(context.Background(), models.ClearanceFilter{Status: &status, Search: " Ada ", Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Bursary", *items[0].CurrentDepartmentName)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
