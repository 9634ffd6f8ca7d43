package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clearance-api/internal/models"
)

// AuditRepository persists and lists the audit trail.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create stores an audit log entry.
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, description, clearance_id, ip_address, user_agent, created_at)
VALUES (:id, :user_id, :action, :description, :clearance_id, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// List returns audit logs newest first together with the total count.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where += fmt.Sprintf(" AND l.action = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(" AND l.user_id = $%d", len(args))
	}
	if filter.ClearanceID != "" {
		args = append(args, filter.ClearanceID)
		where += fmt.Sprintf(" AND l.clearance_id = $%d", len(args))
	}
	_, pageSize, offset := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT l.id, l.user_id, l.action, l.description, l.clearance_id, l.ip_address, l.user_agent, l.created_at, u.full_name AS user_name
FROM audit_logs l LEFT JOIN users u ON u.id = l.user_id%s ORDER BY l.created_at DESC LIMIT %d OFFSET %d`, where, pageSize, offset)
	var logs []models.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs l`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	return logs, total, nil
}
