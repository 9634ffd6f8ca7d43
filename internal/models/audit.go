package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionLogout           = "LOGOUT"
	AuditActionUserCreate       = "USER_CREATE"
	AuditActionUserUpdate       = "USER_UPDATE"
	AuditActionPasswordChange   = "PASSWORD_CHANGE"
	AuditActionClearanceSubmit  = "CLEARANCE_SUBMIT"
	AuditActionApprovalApprove  = "APPROVAL_APPROVE"
	AuditActionApprovalReject   = "APPROVAL_REJECT"
	AuditActionDocumentUpload   = "DOCUMENT_UPLOAD"
	AuditActionDocumentDelete   = "DOCUMENT_DELETE"
	AuditActionAdminOverride    = "ADMIN_OVERRIDE"
	AuditActionDepartmentCreate = "DEPARTMENT_CREATE"
	AuditActionDepartmentUpdate = "DEPARTMENT_UPDATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID          string    `db:"id" json:"id"`
	UserID      *string   `db:"user_id" json:"user_id,omitempty"`
	Action      string    `db:"action" json:"action"`
	Description string    `db:"description" json:"description"`
	ClearanceID *string   `db:"clearance_id" json:"clearance_id,omitempty"`
	IPAddress   string    `db:"ip_address" json:"ip_address"`
	UserAgent   string    `db:"user_agent" json:"user_agent"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UserName    *string   `db:"user_name" json:"user_name,omitempty"`
}

// AuditLogFilter narrows the admin audit listing.
type AuditLogFilter struct {
	Action      string
	UserID      string
	ClearanceID string
	Page        int
	PageSize    int
}
