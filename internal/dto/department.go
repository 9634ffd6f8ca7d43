package dto

// DepartmentRequest creates or updates a review stage.
type DepartmentRequest struct {
	Name          string `json:"name" validate:"required,max=100"`
	SequenceOrder int    `json:"sequenceOrder" validate:"required,min=1"`
	Description   string `json:"description" validate:"max=500"`
	Active        *bool  `json:"active"`
	FacultyScoped bool   `json:"facultyScoped"`
}
