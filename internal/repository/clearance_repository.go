package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clearance-api/internal/models"
)

// ErrVersionConflict is returned when a clearance changed since it was read.
var ErrVersionConflict = errors.New("clearance version conflict")

const clearanceColumns = `id, student_id, status, current_department_id, rejected_entry_id, remarks, version, submitted_at, completed_at, created_at, updated_at`

const clearanceListSelect = `
SELECT
	c.id,
	c.student_id,
	u.full_name AS student_name,
	u.email AS student_email,
	u.matric_number,
	f.name AS faculty_name,
	c.status,
	c.current_department_id,
	d.name AS current_department_name,
	c.submitted_at,
	c.completed_at,
	c.updated_at
FROM clearances c
JOIN users u ON u.id = c.student_id
LEFT JOIN faculties f ON f.id = u.faculty_id
LEFT JOIN departments d ON d.id = c.current_department_id`

// ClearanceRepository stores clearance records.
type ClearanceRepository struct {
	db *sqlx.DB
}

// NewClearanceRepository constructs the repository.
func NewClearanceRepository(db *sqlx.DB) *ClearanceRepository {
	return &ClearanceRepository{db: db}
}

func (r *ClearanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a clearance record in not_started state.
func (r *ClearanceRepository) Create(ctx context.Context, exec sqlx.ExtContext, clearance *models.Clearance) error {
	if clearance.ID == "" {
		clearance.ID = uuid.NewString()
	}
	if clearance.Status == "" {
		clearance.Status = models.ClearanceNotStarted
	}
	now := time.Now().UTC()
	clearance.CreatedAt = now
	clearance.UpdatedAt = now
	const query = `INSERT INTO clearances (id, student_id, status, remarks, version, created_at, updated_at)
VALUES (:id, :student_id, :status, :remarks, :version, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, clearance); err != nil {
		return fmt.Errorf("create clearance: %w", err)
	}
	return nil
}

// FindByID loads a clearance without locking.
func (r *ClearanceRepository) FindByID(ctx context.Context, id string) (*models.Clearance, error) {
	return r.get(ctx, r.db, `SELECT `+clearanceColumns+` FROM clearances WHERE id = $1`, id)
}

// FindByStudent loads the clearance owned by a student.
func (r *ClearanceRepository) FindByStudent(ctx context.Context, studentID string) (*models.Clearance, error) {
	return r.get(ctx, r.db, `SELECT `+clearanceColumns+` FROM clearances WHERE student_id = $1`, studentID)
}

// GetForUpdate loads and row-locks a clearance for the rest of the transaction.
func (r *ClearanceRepository) GetForUpdate(ctx context.Context, tx sqlx.ExtContext, id string) (*models.Clearance, error) {
	return r.get(ctx, tx, `SELECT `+clearanceColumns+` FROM clearances WHERE id = $1 FOR UPDATE`, id)
}

// GetByStudentForUpdate is GetForUpdate keyed by the owning student.
func (r *ClearanceRepository) GetByStudentForUpdate(ctx context.Context, tx sqlx.ExtContext, studentID string) (*models.Clearance, error) {
	return r.get(ctx, tx, `SELECT `+clearanceColumns+` FROM clearances WHERE student_id = $1 FOR UPDATE`, studentID)
}

func (r *ClearanceRepository) get(ctx context.Context, q sqlx.QueryerContext, query string, arg string) (*models.Clearance, error) {
	var clearance models.Clearance
	if err := sqlx.GetContext(ctx, q, &clearance, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get clearance: %w", err)
	}
	return &clearance, nil
}

// Update persists a transition. The write only applies when the stored
// version still matches; the in-memory version is bumped on success.
func (r *ClearanceRepository) Update(ctx context.Context, exec sqlx.ExtContext, clearance *models.Clearance) error {
	clearance.UpdatedAt = time.Now().UTC()
	const query = `UPDATE clearances SET
	status = :status,
	current_department_id = :current_department_id,
	rejected_entry_id = :rejected_entry_id,
	remarks = :remarks,
	submitted_at = :submitted_at,
	completed_at = :completed_at,
	version = version + 1,
	updated_at = :updated_at
WHERE id = :id AND version = :version`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, clearance)
	if err != nil {
		return fmt.Errorf("update clearance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("clearance rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	clearance.Version++
	return nil
}

// UpdateRemarks sets the admin remarks without touching workflow state.
func (r *ClearanceRepository) UpdateRemarks(ctx context.Context, id, remarks string) error {
	const query = `UPDATE clearances SET remarks = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, remarks, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update clearance remarks: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("clearance rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List searches clearances joined with their student and current stage.
func (r *ClearanceRepository) List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceListItem, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where += fmt.Sprintf(" AND c.status = $%d", len(args))
	}
	if filter.DepartmentID != "" {
		args = append(args, filter.DepartmentID)
		where += fmt.Sprintf(" AND c.current_department_id = $%d", len(args))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+strings.ToLower(s)+"%")
		where += fmt.Sprintf(" AND (LOWER(u.full_name) LIKE $%d OR LOWER(COALESCE(u.matric_number, '')) LIKE $%d OR LOWER(u.email) LIKE $%d)", len(args), len(args), len(args))
	}

	_, pageSize, offset := normalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s%s ORDER BY c.updated_at DESC LIMIT %d OFFSET %d", clearanceListSelect, where, pageSize, offset)

	var items []models.ClearanceListItem
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list clearances: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM clearances c JOIN users u ON u.id = c.student_id` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count clearances: %w", err)
	}
	return items, total, nil
}

// ListAll returns every clearance matching filter without pagination, for exports.
func (r *ClearanceRepository) ListAll(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceListItem, error) {
	filter.Page = 1
	filter.PageSize = 100
	var all []models.ClearanceListItem
	for {
		items, total, err := r.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) == 0 || len(all) >= total {
			return all, nil
		}
		filter.Page++
	}
}

// CountByStatus aggregates clearances per status.
func (r *ClearanceRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM clearances GROUP BY status ORDER BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count clearances by status: %w", err)
	}
	return counts, nil
}

// Recent returns the most recently updated clearances.
func (r *ClearanceRepository) Recent(ctx context.Context, limit int) ([]models.ClearanceListItem, error) {
	if limit <= 0 {
		limit = 10
	}
	query := clearanceListSelect + ` ORDER BY c.updated_at DESC LIMIT $1`
	var items []models.ClearanceListItem
	if err := r.db.SelectContext(ctx, &items, query, limit); err != nil {
		return nil, fmt.Errorf("recent clearances: %w", err)
	}
	return items, nil
}
