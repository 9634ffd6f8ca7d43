package dto

import (
	"time"

	"github.com/noah-isme/clearance-api/internal/models"
)

// SystemMetrics is a lightweight view of the process counters.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"avgRequestDurationMs"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	TransitionsTotal         uint64    `json:"transitionsTotal"`
	OutboxDelivered          uint64    `json:"outboxDelivered"`
	OutboxFailed             uint64    `json:"outboxFailed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

// AdminDashboardResponse aggregates registry-wide clearance figures.
type AdminDashboardResponse struct {
	Students         int                        `json:"students"`
	Officers         int                        `json:"officers"`
	ByStatus         []models.StatusCount       `json:"byStatus"`
	Departments      []models.DepartmentStat    `json:"departments"`
	RecentClearances []models.ClearanceListItem `json:"recentClearances"`
	RecentAudit      []models.AuditLog          `json:"recentAudit"`
	Outbox           map[string]int             `json:"outbox"`
	System           SystemMetrics              `json:"system"`
	GeneratedAt      time.Time                  `json:"generatedAt"`
}

// CreateOfficerRequest provisions a department officer.
type CreateOfficerRequest struct {
	Email               string  `json:"email" validate:"required,email"`
	Password            string  `json:"password" validate:"required,min=8"`
	FullName            string  `json:"fullName" validate:"required,max=150"`
	DepartmentID        string  `json:"departmentId" validate:"required,uuid"`
	FacultyAssignmentID *string `json:"facultyAssignmentId" validate:"omitempty,uuid"`
}

// UpdateRemarksRequest sets the admin remarks on a clearance.
type UpdateRemarksRequest struct {
	Remarks string `json:"remarks" validate:"max=2000"`
}

// OfficerStatsResponse summarises an officer's department.
type OfficerStatsResponse struct {
	Department models.DepartmentStat `json:"department"`
	Reviewed   int                   `json:"reviewed"`
}

// UpdateUserRequest carries the account fields an admin may change. An empty
// facultyAssignmentId clears the officer's faculty scope.
type UpdateUserRequest struct {
	FullName            *string `json:"fullName" validate:"omitempty,max=150"`
	DepartmentID        *string `json:"departmentId" validate:"omitempty,uuid"`
	FacultyAssignmentID *string `json:"facultyAssignmentId" validate:"omitempty,uuid"`
	Active              *bool   `json:"active"`
}
