package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clearance-api/internal/models"
)

const outboxColumns = `id, kind, payload, status, attempts, last_error, available_at, created_at, processed_at`

// OutboxRepository stores side-effect intents written alongside state changes.
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs the repository.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert queues an event, normally inside the transaction of the change it describes.
func (r *OutboxRepository) Insert(ctx context.Context, exec sqlx.ExtContext, event *models.OutboxEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.AvailableAt.IsZero() {
		event.AvailableAt = now
	}
	if event.Status == "" {
		event.Status = models.OutboxPending
	}
	const query = `INSERT INTO outbox_events (id, kind, payload, status, attempts, last_error, available_at, created_at)
VALUES (:id, :kind, :payload, :status, :attempts, :last_error, :available_at, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, event); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// Claim moves up to limit due events to processing and returns them. Rows
// locked by another dispatcher are skipped.
func (r *OutboxRepository) Claim(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `UPDATE outbox_events SET status = 'processing', attempts = attempts + 1, available_at = $1
WHERE id IN (
	SELECT id FROM outbox_events
	WHERE status = 'pending' AND available_at <= $1
	ORDER BY created_at ASC
	LIMIT $2
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + outboxColumns
	var events []models.OutboxEvent
	if err := r.db.SelectContext(ctx, &events, query, now, limit); err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}
	return events, nil
}

// MarkDelivered finalises a delivered event.
func (r *OutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE outbox_events SET status = 'delivered', last_error = '', processed_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("mark outbox delivered: %w", err)
	}
	return nil
}

// MarkRetry returns an event to pending after a failed attempt.
func (r *OutboxRepository) MarkRetry(ctx context.Context, id, lastErr string, availableAt time.Time) error {
	const query = `UPDATE outbox_events SET status = 'pending', last_error = $2, available_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, lastErr, availableAt); err != nil {
		return fmt.Errorf("mark outbox retry: %w", err)
	}
	return nil
}

// MarkFailed gives up on an event.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id, lastErr string, at time.Time) error {
	const query = `UPDATE outbox_events SET status = 'failed', last_error = $2, processed_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, lastErr, at); err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

// RequeueStale releases events stuck in processing since before cutoff, for
// example after a crash between claim and delivery.
func (r *OutboxRepository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `UPDATE outbox_events SET status = 'pending' WHERE status = 'processing' AND available_at < $1`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox events: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox rows affected: %w", err)
	}
	return affected, nil
}

// CountByStatus reports the backlog per status.
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS count FROM outbox_events GROUP BY status`
	var rows []struct {
		Status models.OutboxStatus `db:"status"`
		Count  int                 `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count outbox events: %w", err)
	}
	out := make(map[models.OutboxStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
