package models

import "fmt"

// Actor is the authenticated principal behind a request. The set of
// implementations is closed: StudentActor, OfficerActor and AdminActor.
type Actor interface {
	ActorID() string
	Role() UserRole
	isActor()
}

// StudentActor owns exactly one clearance.
type StudentActor struct {
	UserID    string
	FacultyID *string
}

// OfficerActor reviews the stage of one department, optionally narrowed to a faculty.
type OfficerActor struct {
	UserID              string
	DepartmentID        string
	FacultyAssignmentID *string
}

// AdminActor has read access everywhere and manages the registry.
type AdminActor struct {
	UserID string
}

func (a StudentActor) ActorID() string { return a.UserID }
func (a OfficerActor) ActorID() string { return a.UserID }
func (a AdminActor) ActorID() string   { return a.UserID }

func (StudentActor) Role() UserRole { return RoleStudent }
func (OfficerActor) Role() UserRole { return RoleOfficer }
func (AdminActor) Role() UserRole   { return RoleAdmin }

func (StudentActor) isActor() {}
func (OfficerActor) isActor() {}
func (AdminActor) isActor()   {}

// ActorFromUser maps a persisted user onto its actor variant.
func ActorFromUser(u *User) (Actor, error) {
	if u == nil {
		return nil, fmt.Errorf("nil user")
	}
	switch u.Role {
	case RoleStudent:
		return StudentActor{UserID: u.ID, FacultyID: u.FacultyID}, nil
	case RoleOfficer:
		if u.DepartmentID == nil || *u.DepartmentID == "" {
			return nil, fmt.Errorf("officer %s has no department", u.ID)
		}
		return OfficerActor{UserID: u.ID, DepartmentID: *u.DepartmentID, FacultyAssignmentID: u.FacultyAssignmentID}, nil
	case RoleAdmin:
		return AdminActor{UserID: u.ID}, nil
	default:
		return nil, fmt.Errorf("unknown role %q", u.Role)
	}
}
