package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// OutboxKind selects the collaborator an event is delivered to.
type OutboxKind string

const (
	OutboxKindAudit        OutboxKind = "audit"
	OutboxKindNotification OutboxKind = "notification"
)

// OutboxStatus tracks delivery progress.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxDelivered  OutboxStatus = "delivered"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxEvent is a side effect recorded in the same transaction as the state change.
type OutboxEvent struct {
	ID          string         `db:"id"`
	Kind        OutboxKind     `db:"kind"`
	Payload     types.JSONText `db:"payload"`
	Status      OutboxStatus   `db:"status"`
	Attempts    int            `db:"attempts"`
	LastError   string         `db:"last_error"`
	AvailableAt time.Time      `db:"available_at"`
	CreatedAt   time.Time      `db:"created_at"`
	ProcessedAt *time.Time     `db:"processed_at"`
}

// AuditIntent is the payload of an audit outbox event.
type AuditIntent struct {
	UserID      *string `json:"user_id,omitempty"`
	Action      string  `json:"action"`
	Description string  `json:"description"`
	ClearanceID *string `json:"clearance_id,omitempty"`
	IPAddress   string  `json:"ip_address,omitempty"`
	UserAgent   string  `json:"user_agent,omitempty"`
}

// NotificationIntent is the payload of a notification outbox event.
type NotificationIntent struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
