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

const documentColumns = `id, clearance_id, kind, blob_key, file_name, mime_type, size_bytes, uploaded_at`

// DocumentRepository stores document metadata; blobs live in pkg/storage.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts document metadata.
func (r *DocumentRepository) Create(ctx context.Context, exec sqlx.ExtContext, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO documents (id, clearance_id, kind, blob_key, file_name, mime_type, size_bytes, uploaded_at)
VALUES (:id, :clearance_id, :kind, :blob_key, :file_name, :mime_type, :size_bytes, :uploaded_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// FindByID loads a document.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return &doc, nil
}

// ListByClearance returns documents newest first.
func (r *DocumentRepository) ListByClearance(ctx context.Context, clearanceID string) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE clearance_id = $1 ORDER BY uploaded_at DESC, id DESC`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, clearanceID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// CountByClearance counts attached documents.
func (r *DocumentRepository) CountByClearance(ctx context.Context, exec sqlx.ExtContext, clearanceID string) (int, error) {
	const query = `SELECT COUNT(*) FROM documents WHERE clearance_id = $1`
	var total int
	if err := sqlx.GetContext(ctx, r.exec(exec), &total, query, clearanceID); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return total, nil
}

// Delete removes document metadata.
func (r *DocumentRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM documents WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("document rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
