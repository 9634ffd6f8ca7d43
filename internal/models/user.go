package models

import (
	"regexp"
	"strings"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent UserRole = "STUDENT"
	RoleOfficer UserRole = "OFFICER"
	RoleAdmin   UserRole = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleOfficer, RoleAdmin:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID                  string     `db:"id" json:"id"`
	Email               string     `db:"email" json:"email"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	FullName            string     `db:"full_name" json:"full_name"`
	Role                UserRole   `db:"role" json:"role"`
	MatricNumber        *string    `db:"matric_number" json:"matric_number,omitempty"`
	FacultyID           *string    `db:"faculty_id" json:"faculty_id,omitempty"`
	DepartmentID        *string    `db:"department_id" json:"department_id,omitempty"`
	FacultyAssignmentID *string    `db:"faculty_assignment_id" json:"faculty_assignment_id,omitempty"`
	Active              bool       `db:"active" json:"active"`
	LastLogin           *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role         *UserRole
	DepartmentID string
	Active       *bool
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

var (
	matricFacultyPattern = regexp.MustCompile(`^\d{2}(H|M|S|L|ED|AGR|N|BMS|EV|EG)\d{5}(TS)?$`)
	matricLegacyPattern  = regexp.MustCompile(`^ACU\d{8}(TS)?$`)
)

// NormalizeMatric strips whitespace and upper-cases a matric number.
func NormalizeMatric(v string) string {
	return strings.ToUpper(strings.Join(strings.Fields(v), ""))
}

// ValidMatric accepts the faculty-coded format (20H12345, 21AGR00012TS) and the
// legacy ACU format (ACU20190001).
func ValidMatric(v string) bool {
	n := NormalizeMatric(v)
	return matricFacultyPattern.MatchString(n) || matricLegacyPattern.MatchString(n)
}
