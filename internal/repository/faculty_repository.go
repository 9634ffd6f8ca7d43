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

// FacultyRepository stores faculties.
type FacultyRepository struct {
	db *sqlx.DB
}

// NewFacultyRepository constructs the repository.
func NewFacultyRepository(db *sqlx.DB) *FacultyRepository {
	return &FacultyRepository{db: db}
}

// List returns faculties ordered by name.
func (r *FacultyRepository) List(ctx context.Context, activeOnly bool) ([]models.Faculty, error) {
	query := `SELECT id, name, code, description, dean_name, active, created_at FROM faculties`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY name ASC`
	var faculties []models.Faculty
	if err := r.db.SelectContext(ctx, &faculties, query); err != nil {
		return nil, fmt.Errorf("list faculties: %w", err)
	}
	return faculties, nil
}

// FindByID returns a faculty by id.
func (r *FacultyRepository) FindByID(ctx context.Context, id string) (*models.Faculty, error) {
	const query = `SELECT id, name, code, description, dean_name, active, created_at FROM faculties WHERE id = $1`
	var faculty models.Faculty
	if err := r.db.GetContext(ctx, &faculty, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find faculty: %w", err)
	}
	return &faculty, nil
}

// UpsertByCode inserts a faculty or refreshes its name and description. It
// reports whether a new row was created.
func (r *FacultyRepository) UpsertByCode(ctx context.Context, faculty *models.Faculty) (bool, error) {
	if faculty.ID == "" {
		faculty.ID = uuid.NewString()
	}
	if faculty.CreatedAt.IsZero() {
		faculty.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO faculties (id, name, code, description, dean_name, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description
RETURNING id, (xmax = 0) AS inserted`
	var row struct {
		ID       string `db:"id"`
		Inserted bool   `db:"inserted"`
	}
	if err := r.db.GetContext(ctx, &row, query, faculty.ID, faculty.Name, faculty.Code, faculty.Description, faculty.DeanName, faculty.Active, faculty.CreatedAt); err != nil {
		return false, fmt.Errorf("upsert faculty: %w", err)
	}
	faculty.ID = row.ID
	return row.Inserted, nil
}
