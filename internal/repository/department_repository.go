package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clearance-api/internal/models"
)

const departmentColumns = `id, name, sequence_order, description, active, faculty_scoped, created_at, updated_at`

// DepartmentRepository stores the workflow stages.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository constructs the repository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

func (r *DepartmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns departments ordered by sequence.
func (r *DepartmentRepository) List(ctx context.Context, activeOnly bool) ([]models.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY sequence_order ASC`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// FindByID loads a department, active or not.
func (r *DepartmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE id = $1`
	var department models.Department
	if err := sqlx.GetContext(ctx, r.exec(exec), &department, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find department: %w", err)
	}
	return &department, nil
}

// FindByName loads a department by its unique name.
func (r *DepartmentRepository) FindByName(ctx context.Context, name string) (*models.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE name = $1`
	var department models.Department
	if err := r.db.GetContext(ctx, &department, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find department by name: %w", err)
	}
	return &department, nil
}

// OrderTaken reports whether another department already uses order.
func (r *DepartmentRepository) OrderTaken(ctx context.Context, order int, excludeID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM departments WHERE sequence_order = $1 AND id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, order, excludeID); err != nil {
		return false, fmt.Errorf("check department order: %w", err)
	}
	return exists, nil
}

// Create inserts a department.
func (r *DepartmentRepository) Create(ctx context.Context, department *models.Department) error {
	if department.ID == "" {
		department.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	department.CreatedAt = now
	department.UpdatedAt = now
	const query = `INSERT INTO departments (id, name, sequence_order, description, active, faculty_scoped, created_at, updated_at)
VALUES (:id, :name, :sequence_order, :description, :active, :faculty_scoped, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, department); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of a department.
func (r *DepartmentRepository) Update(ctx context.Context, department *models.Department) error {
	department.UpdatedAt = time.Now().UTC()
	const query = `UPDATE departments SET name = :name, sequence_order = :sequence_order, description = :description, active = :active, faculty_scoped = :faculty_scoped, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, department)
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("department rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
