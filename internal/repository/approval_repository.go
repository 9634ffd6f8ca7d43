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

// ErrEntryNotPending is returned when a decision targets an entry that was already decided.
var ErrEntryNotPending = errors.New("approval entry is not pending")

const approvalViewSelect = `
SELECT
	a.id,
	a.clearance_id,
	a.department_id,
	a.decision,
	a.reviewer_id,
	a.comment,
	a.decided_at,
	a.created_at,
	a.updated_at,
	d.name AS department_name,
	d.sequence_order,
	rv.full_name AS reviewer_name
FROM clearance_approvals a
JOIN departments d ON d.id = a.department_id
LEFT JOIN users rv ON rv.id = a.reviewer_id`

// ApprovalRepository is the approval ledger.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

func (r *ApprovalRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateIfAbsent inserts a pending entry unless one exists for the same
// (clearance, department). It reports whether a row was inserted.
func (r *ApprovalRepository) CreateIfAbsent(ctx context.Context, exec sqlx.ExtContext, entry *models.ApprovalEntry) (bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Decision == "" {
		entry.Decision = models.DecisionPending
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	const query = `INSERT INTO clearance_approvals (id, clearance_id, department_id, decision, comment, created_at, updated_at)
VALUES (:id, :clearance_id, :department_id, :decision, :comment, :created_at, :updated_at)
ON CONFLICT (clearance_id, department_id) DO NOTHING`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry)
	if err != nil {
		return false, fmt.Errorf("create approval entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approval rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListByClearance returns the ledger ordered by department sequence.
func (r *ApprovalRepository) ListByClearance(ctx context.Context, exec sqlx.ExtContext, clearanceID string) ([]models.ApprovalView, error) {
	query := approvalViewSelect + ` WHERE a.clearance_id = $1 ORDER BY d.sequence_order ASC`
	var entries []models.ApprovalView
	if err := sqlx.SelectContext(ctx, r.exec(exec), &entries, query, clearanceID); err != nil {
		return nil, fmt.Errorf("list approval entries: %w", err)
	}
	return entries, nil
}

// Get returns the entry for (clearance, department).
func (r *ApprovalRepository) Get(ctx context.Context, exec sqlx.ExtContext, clearanceID, departmentID string) (*models.ApprovalView, error) {
	query := approvalViewSelect + ` WHERE a.clearance_id = $1 AND a.department_id = $2`
	var entry models.ApprovalView
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, clearanceID, departmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get approval entry: %w", err)
	}
	return &entry, nil
}

// FindRejected returns the rejected entry with the lowest department sequence.
func (r *ApprovalRepository) FindRejected(ctx context.Context, exec sqlx.ExtContext, clearanceID string) (*models.ApprovalView, error) {
	query := approvalViewSelect + ` WHERE a.clearance_id = $1 AND a.decision = 'rejected' ORDER BY d.sequence_order ASC LIMIT 1`
	var entry models.ApprovalView
	if err := sqlx.GetContext(ctx, r.exec(exec), &entry, query, clearanceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find rejected entry: %w", err)
	}
	return &entry, nil
}

// UpdateDecision stamps a decision on a pending entry.
func (r *ApprovalRepository) UpdateDecision(ctx context.Context, exec sqlx.ExtContext, entry *models.ApprovalEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE clearance_approvals SET decision = :decision, reviewer_id = :reviewer_id, comment = :comment, decided_at = :decided_at, updated_at = :updated_at
WHERE id = :id AND decision = 'pending'`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry)
	if err != nil {
		return fmt.Errorf("update approval decision: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("approval rows affected: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotPending
	}
	return nil
}

// ResetToPending clears a decision so the stage can be reviewed again.
func (r *ApprovalRepository) ResetToPending(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `UPDATE clearance_approvals SET decision = 'pending', reviewer_id = NULL, comment = '', decided_at = NULL, updated_at = $2 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset approval entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("approval rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByClearance wipes the ledger of a clearance.
func (r *ApprovalRepository) DeleteByClearance(ctx context.Context, exec sqlx.ExtContext, clearanceID string) error {
	const query = `DELETE FROM clearance_approvals WHERE clearance_id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, clearanceID); err != nil {
		return fmt.Errorf("delete approval entries: %w", err)
	}
	return nil
}

// CountApproved counts approved entries belonging to active departments.
func (r *ApprovalRepository) CountApproved(ctx context.Context, exec sqlx.ExtContext, clearanceID string) (int, error) {
	const query = `SELECT COUNT(*) FROM clearance_approvals a JOIN departments d ON d.id = a.department_id
WHERE a.clearance_id = $1 AND a.decision = 'approved' AND d.active = TRUE`
	var total int
	if err := sqlx.GetContext(ctx, r.exec(exec), &total, query, clearanceID); err != nil {
		return 0, fmt.Errorf("count approved entries: %w", err)
	}
	return total, nil
}

// ListPendingForDepartment returns clearances waiting at a department, oldest first.
func (r *ApprovalRepository) ListPendingForDepartment(ctx context.Context, filter models.QueueFilter) ([]models.QueueItem, int, error) {
	from := `
FROM clearances c
JOIN clearance_approvals a ON a.clearance_id = c.id AND a.department_id = c.current_department_id
JOIN users u ON u.id = c.student_id
LEFT JOIN faculties f ON f.id = u.faculty_id
WHERE c.current_department_id = $1
	AND c.status IN ('pending', 'in_progress')
	AND a.decision = 'pending'`
	args := []interface{}{filter.DepartmentID}
	if filter.FacultyID != nil {
		args = append(args, *filter.FacultyID)
		from += fmt.Sprintf(" AND u.faculty_id = $%d", len(args))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+strings.ToLower(s)+"%")
		from += fmt.Sprintf(" AND (LOWER(u.full_name) LIKE $%d OR LOWER(COALESCE(u.matric_number, '')) LIKE $%d)", len(args), len(args))
	}

	_, pageSize, offset := normalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf(`SELECT
	a.id AS approval_id,
	c.id AS clearance_id,
	u.id AS student_id,
	u.full_name AS student_name,
	u.matric_number,
	u.faculty_id,
	f.name AS faculty_name,
	c.status,
	c.submitted_at,
	a.updated_at AS waiting_since
%s ORDER BY a.updated_at ASC LIMIT %d OFFSET %d`, from, pageSize, offset)

	var items []models.QueueItem
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list department queue: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+from, args...); err != nil {
		return nil, 0, fmt.Errorf("count department queue: %w", err)
	}
	return items, total, nil
}

// ListByReviewer returns decisions made by an officer, newest first.
func (r *ApprovalRepository) ListByReviewer(ctx context.Context, reviewerID string, page, pageSize int) ([]models.ReviewHistoryItem, int, error) {
	_, size, offset := normalizePage(page, pageSize)
	query := fmt.Sprintf(`SELECT
	a.id AS approval_id,
	a.clearance_id,
	u.full_name AS student_name,
	u.matric_number,
	a.decision,
	a.comment,
	a.decided_at
FROM clearance_approvals a
JOIN clearances c ON c.id = a.clearance_id
JOIN users u ON u.id = c.student_id
WHERE a.reviewer_id = $1
ORDER BY a.decided_at DESC NULLS LAST LIMIT %d OFFSET %d`, size, offset)
	var items []models.ReviewHistoryItem
	if err := r.db.SelectContext(ctx, &items, query, reviewerID); err != nil {
		return nil, 0, fmt.Errorf("list reviewer history: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM clearance_approvals WHERE reviewer_id = $1`, reviewerID); err != nil {
		return nil, 0, fmt.Errorf("count reviewer history: %w", err)
	}
	return items, total, nil
}

// DepartmentStats counts entry decisions per department. An empty
// departmentID returns every department.
func (r *ApprovalRepository) DepartmentStats(ctx context.Context, departmentID string) ([]models.DepartmentStat, error) {
	query := `SELECT
	d.id AS department_id,
	d.name AS department_name,
	d.sequence_order,
	COUNT(a.id) FILTER (WHERE a.decision = 'pending') AS pending,
	COUNT(a.id) FILTER (WHERE a.decision = 'approved') AS approved,
	COUNT(a.id) FILTER (WHERE a.decision = 'rejected') AS rejected
FROM departments d
LEFT JOIN clearance_approvals a ON a.department_id = d.id`
	var args []interface{}
	if departmentID != "" {
		query += ` WHERE d.id = $1`
		args = append(args, departmentID)
	}
	query += ` GROUP BY d.id, d.name, d.sequence_order ORDER BY d.sequence_order ASC`
	var stats []models.DepartmentStat
	if err := r.db.SelectContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("department stats: %w", err)
	}
	return stats, nil
}
