package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type outboxWriter interface {
	Insert(ctx context.Context, exec sqlx.ExtContext, event *models.OutboxEvent) error
}

func newOutboxEvent(kind models.OutboxKind, payload interface{}) (*models.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", kind, err)
	}
	now := time.Now().UTC()
	return &models.OutboxEvent{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     types.JSONText(raw),
		Status:      models.OutboxPending,
		AvailableAt: now,
		CreatedAt:   now,
	}, nil
}

// auditIntent builds the payload for an audit event about actorID.
func auditIntent(actorID, action, description string, clearanceID string, meta RequestMeta) models.AuditIntent {
	intent := models.AuditIntent{
		Action:      action,
		Description: description,
		IPAddress:   meta.IP,
		UserAgent:   meta.UserAgent,
	}
	if actorID != "" {
		intent.UserID = &actorID
	}
	if clearanceID != "" {
		intent.ClearanceID = &clearanceID
	}
	return intent
}

// RequestMeta carries the caller's network details into audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// outboxBatch collects the side effects of one state change so they can be
// written in the same transaction.
type outboxBatch struct {
	events []*models.OutboxEvent
	err    error
}

func (b *outboxBatch) audit(intent models.AuditIntent) {
	b.add(models.OutboxKindAudit, intent)
}

func (b *outboxBatch) notify(intent *models.NotificationIntent) {
	if intent == nil || intent.To == "" {
		return
	}
	b.add(models.OutboxKindNotification, intent)
}

func (b *outboxBatch) add(kind models.OutboxKind, payload interface{}) {
	if b.err != nil {
		return
	}
	event, err := newOutboxEvent(kind, payload)
	if err != nil {
		b.err = err
		return
	}
	b.events = append(b.events, event)
}

func (b *outboxBatch) write(ctx context.Context, w outboxWriter, exec sqlx.ExtContext) error {
	if b.err != nil {
		return b.err
	}
	for _, event := range b.events {
		if err := w.Insert(ctx, exec, event); err != nil {
			return err
		}
	}
	return nil
}

// queueAudit records an audit event outside any transaction. Failures are
// logged and otherwise ignored.
func queueAudit(ctx context.Context, w outboxWriter, logger *zap.Logger, intent models.AuditIntent) {
	if w == nil {
		return
	}
	var batch outboxBatch
	batch.audit(intent)
	if err := batch.write(ctx, w, nil); err != nil {
		logger.Warn("failed to queue audit event", zap.String("action", intent.Action), zap.Error(err))
	}
}
