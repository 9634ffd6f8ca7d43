package models

import "time"

// ClearanceStatus is the state of a student's clearance record.
type ClearanceStatus string

const (
	ClearanceNotStarted ClearanceStatus = "not_started"
	ClearancePending    ClearanceStatus = "pending"
	ClearanceInProgress ClearanceStatus = "in_progress"
	ClearanceRejected   ClearanceStatus = "rejected"
	ClearanceApproved   ClearanceStatus = "approved"
)

// Valid reports whether s is a known status.
func (s ClearanceStatus) Valid() bool {
	switch s {
	case ClearanceNotStarted, ClearancePending, ClearanceInProgress, ClearanceRejected, ClearanceApproved:
		return true
	}
	return false
}

// Clearance is the per-student workflow record.
type Clearance struct {
	ID                  string          `db:"id" json:"id"`
	StudentID           string          `db:"student_id" json:"student_id"`
	Status              ClearanceStatus `db:"status" json:"status"`
	CurrentDepartmentID *string         `db:"current_department_id" json:"current_department_id,omitempty"`
	RejectedEntryID     *string         `db:"rejected_entry_id" json:"-"`
	Remarks             string          `db:"remarks" json:"remarks"`
	Version             int             `db:"version" json:"version"`
	SubmittedAt         *time.Time      `db:"submitted_at" json:"submitted_at,omitempty"`
	CompletedAt         *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// DocumentsDeletable reports whether attached documents may still be removed.
func (c *Clearance) DocumentsDeletable() bool {
	return c.Status == ClearanceNotStarted || c.Status == ClearanceRejected
}

// ClearanceListItem is a clearance joined with its student and current stage.
type ClearanceListItem struct {
	ID                    string          `db:"id" json:"id"`
	StudentID             string          `db:"student_id" json:"student_id"`
	StudentName           string          `db:"student_name" json:"student_name"`
	StudentEmail          string          `db:"student_email" json:"student_email"`
	MatricNumber          *string         `db:"matric_number" json:"matric_number,omitempty"`
	FacultyName           *string         `db:"faculty_name" json:"faculty_name,omitempty"`
	Status                ClearanceStatus `db:"status" json:"status"`
	CurrentDepartmentID   *string         `db:"current_department_id" json:"current_department_id,omitempty"`
	CurrentDepartmentName *string         `db:"current_department_name" json:"current_department_name,omitempty"`
	SubmittedAt           *time.Time      `db:"submitted_at" json:"submitted_at,omitempty"`
	CompletedAt           *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt             time.Time       `db:"updated_at" json:"updated_at"`
}

// ClearanceFilter captures admin search criteria.
type ClearanceFilter struct {
	Search       string
	Status       *ClearanceStatus
	DepartmentID string
	Page         int
	PageSize     int
}

// StatusCount is a per-status aggregate.
type StatusCount struct {
	Status ClearanceStatus `db:"status" json:"status"`
	Count  int             `db:"count" json:"count"`
}
