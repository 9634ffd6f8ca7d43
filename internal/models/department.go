package models

import "time"

// Department is one review stage of the clearance workflow.
type Department struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	SequenceOrder int       `db:"sequence_order" json:"sequence_order"`
	Description   string    `db:"description" json:"description"`
	Active        bool      `db:"active" json:"active"`
	FacultyScoped bool      `db:"faculty_scoped" json:"faculty_scoped"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Faculty groups students; faculty-scoped stages may be reviewed per faculty.
type Faculty struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description"`
	DeanName    string    `db:"dean_name" json:"dean_name"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
