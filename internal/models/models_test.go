package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidMatric(t *testing.T) {
	valid := []string{"20H12345", "21AGR00012TS", "19 bms 11111", "ACU20190001", "acu20190001ts"}
	for _, v := range valid {
		assert.True(t, ValidMatric(v), v)
	}
	invalid := []string{"", "2H12345", "20X12345", "20H1234", "ACU2019001", "20H12345T"}
	for _, v := range invalid {
		assert.False(t, ValidMatric(v), v)
	}
	assert.Equal(t, "19BMS11111", NormalizeMatric(" 19 bms 11111 "))
}

func TestActorFromUser(t *testing.T) {
	dept := "d-1"
	fac := "f-1"

	actor, err := ActorFromUser(&User{ID: "u-1", Role: RoleStudent, FacultyID: &fac})
	require.NoError(t, err)
	assert.Equal(t, StudentActor{UserID: "u-1", FacultyID: &fac}, actor)

	actor, err = ActorFromUser(&User{ID: "u-2", Role: RoleOfficer, DepartmentID: &dept})
	require.NoError(t, err)
	officer, ok := actor.(OfficerActor)
	require.True(t, ok)
	assert.Equal(t, "d-1", officer.DepartmentID)
	assert.Equal(t, RoleOfficer, officer.Role())

	_, err = ActorFromUser(&User{ID: "u-3", Role: RoleOfficer})
	assert.Error(t, err)

	actor, err = ActorFromUser(&User{ID: "u-4", Role: RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "u-4", actor.ActorID())

	_, err = ActorFromUser(&User{ID: "u-5", Role: "BURSAR"})
	assert.Error(t, err)
}

func TestDocumentsDeletable(t *testing.T) {
	for status, want := range map[ClearanceStatus]bool{
		ClearanceNotStarted: true,
		ClearanceRejected:   true,
		ClearancePending:    false,
		ClearanceInProgress: false,
		ClearanceApproved:   false,
	} {
		c := &Clearance{Status: status}
		assert.Equal(t, want, c.DocumentsDeletable(), status)
	}
}
