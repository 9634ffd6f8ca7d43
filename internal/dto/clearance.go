package dto

import (
	"time"

	"github.com/noah-isme/clearance-api/internal/models"
)

// StageStatus is one department row of a clearance's progress view.
type StageStatus struct {
	DepartmentID   string          `json:"departmentId"`
	DepartmentName string          `json:"departmentName"`
	SequenceOrder  int             `json:"sequenceOrder"`
	Decision       models.Decision `json:"decision"`
	Comment        string          `json:"comment,omitempty"`
	ReviewerName   *string         `json:"reviewerName,omitempty"`
	DecidedAt      *time.Time      `json:"decidedAt,omitempty"`
	Current        bool            `json:"current"`
}

// DocumentView is a document with a short-lived download link.
type DocumentView struct {
	models.Document
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ClearanceDashboard is the student's view of their own clearance.
type ClearanceDashboard struct {
	Clearance             models.Clearance `json:"clearance"`
	CurrentDepartmentName *string          `json:"currentDepartmentName,omitempty"`
	Stages                []StageStatus    `json:"stages"`
	Documents             []DocumentView   `json:"documents"`
	Progress              int              `json:"progress"`
	CanSubmit             bool             `json:"canSubmit"`
	CanEditDocuments      bool             `json:"canEditDocuments"`
}

// ClearanceDetail is the officer and admin view of one clearance.
type ClearanceDetail struct {
	Clearance             models.Clearance `json:"clearance"`
	Student               models.UserInfo  `json:"student"`
	FacultyID             *string          `json:"facultyId,omitempty"`
	CurrentDepartmentName *string          `json:"currentDepartmentName,omitempty"`
	Stages                []StageStatus    `json:"stages"`
	Documents             []DocumentView   `json:"documents"`
	Progress              int              `json:"progress"`
	CanDecide             bool             `json:"canDecide"`
}

// DecisionRequest is an officer's approve or reject on the current stage.
type DecisionRequest struct {
	Decision models.Decision `json:"decision" validate:"required"`
	Comment  string          `json:"comment" validate:"max=2000"`
}

// TransitionResponse reports the state after submit or decide.
type TransitionResponse struct {
	ClearanceID         string                 `json:"clearanceId"`
	Outcome             string                 `json:"outcome"`
	Status              models.ClearanceStatus `json:"status"`
	CurrentDepartmentID *string                `json:"currentDepartmentId,omitempty"`
	Progress            int                    `json:"progress"`
}

// UploadDocumentRequest is the metadata half of a multipart upload.
type UploadDocumentRequest struct {
	Kind     models.DocumentKind `validate:"required"`
	FileName string              `validate:"required,max=255"`
	Size     int64               `validate:"gt=0"`
}
