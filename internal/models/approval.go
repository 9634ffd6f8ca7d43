package models

import "time"

// Decision is the outcome recorded on an approval entry.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ApprovalEntry is one department's decision on one clearance.
type ApprovalEntry struct {
	ID           string     `db:"id" json:"id"`
	ClearanceID  string     `db:"clearance_id" json:"clearance_id"`
	DepartmentID string     `db:"department_id" json:"department_id"`
	Decision     Decision   `db:"decision" json:"decision"`
	ReviewerID   *string    `db:"reviewer_id" json:"reviewer_id,omitempty"`
	Comment      string     `db:"comment" json:"comment"`
	DecidedAt    *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ApprovalView decorates an entry with its department and reviewer names.
type ApprovalView struct {
	ApprovalEntry
	DepartmentName string  `db:"department_name" json:"department_name"`
	SequenceOrder  int     `db:"sequence_order" json:"sequence_order"`
	ReviewerName   *string `db:"reviewer_name" json:"reviewer_name,omitempty"`
}

// QueueItem is a clearance waiting at an officer's stage.
type QueueItem struct {
	ApprovalID   string          `db:"approval_id" json:"approval_id"`
	ClearanceID  string          `db:"clearance_id" json:"clearance_id"`
	StudentID    string          `db:"student_id" json:"student_id"`
	StudentName  string          `db:"student_name" json:"student_name"`
	MatricNumber *string         `db:"matric_number" json:"matric_number,omitempty"`
	FacultyID    *string         `db:"faculty_id" json:"faculty_id,omitempty"`
	FacultyName  *string         `db:"faculty_name" json:"faculty_name,omitempty"`
	Status       ClearanceStatus `db:"status" json:"status"`
	SubmittedAt  *time.Time      `db:"submitted_at" json:"submitted_at,omitempty"`
	WaitingSince time.Time       `db:"waiting_since" json:"waiting_since"`
}

// QueueFilter narrows the officer queue.
type QueueFilter struct {
	DepartmentID string
	FacultyID    *string
	Search       string
	Page         int
	PageSize     int
}

// ReviewHistoryItem is a decision previously made by an officer.
type ReviewHistoryItem struct {
	ApprovalID   string     `db:"approval_id" json:"approval_id"`
	ClearanceID  string     `db:"clearance_id" json:"clearance_id"`
	StudentName  string     `db:"student_name" json:"student_name"`
	MatricNumber *string    `db:"matric_number" json:"matric_number,omitempty"`
	Decision     Decision   `db:"decision" json:"decision"`
	Comment      string     `db:"comment" json:"comment"`
	DecidedAt    *time.Time `db:"decided_at" json:"decided_at,omitempty"`
}

// DepartmentStat aggregates entry decisions per department.
type DepartmentStat struct {
	DepartmentID   string `db:"department_id" json:"department_id"`
	DepartmentName string `db:"department_name" json:"department_name"`
	SequenceOrder  int    `db:"sequence_order" json:"sequence_order"`
	Pending        int    `db:"pending" json:"pending"`
	Approved       int    `db:"approved" json:"approved"`
	Rejected       int    `db:"rejected" json:"rejected"`
}
