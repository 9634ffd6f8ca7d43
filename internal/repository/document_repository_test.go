package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentsNewestFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	now := time.Now()
	mock.ExpectQuery(`FROM documents WHERE clearance_id = \$1 ORDER BY uploaded_at DESC`).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "clearance_id", "kind", "blob_key", "file_name", "mime_type", "size_bytes", "uploaded_at"}).
			AddRow("doc-2", "c-1", "id_card", "k2", "id.png", "image/png", 2048, now).
			AddRow("doc-1", "c-1", "fee_receipt", "k1", "receipt.pdf", "application/pdf", 1024, now.Add(-time.Hour)))

	docs, err := repo.ListByClearance(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-2", docs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingDocument(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDocumentRepository(db)

	mock.ExpectExec(`DELETE FROM documents WHERE id = \$1`).WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), nil, "nope"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
