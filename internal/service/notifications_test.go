package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
)

func TestNotificationsRenderLetters(t *testing.T) {
	n := NewNotifications("")
	student := &models.User{FullName: "Ada Obi", Email: "ada@student.edu"}
	library := models.Department{Name: "Library"}
	bursary := models.Department{Name: "Bursary"}

	msg := n.Advanced(student, library, bursary)
	require.NotNil(t, msg)
	assert.Equal(t, "ada@student.edu", msg.To)
	assert.True(t, strings.HasPrefix(msg.Body, "Dear Ada Obi,\n\n"))
	assert.Contains(t, msg.Body, "approved by Library")
	assert.Contains(t, msg.Body, "forwarded to Bursary")
	assert.True(t, strings.HasSuffix(msg.Body, "Office of the Registrar,\nAjayi Crowther University"))

	rejected := n.Rejected(student, library, "  overdue books ")
	assert.Contains(t, rejected.Body, "Feedback from Library: overdue books\n\n")
	assert.NotContains(t, n.Rejected(student, library, "").Body, "Feedback from")

	assert.Contains(t, NewNotifications("Test University").Welcome(student).Subject, "Test University")
}

func TestNotificationsSkipStudentsWithoutEmail(t *testing.T) {
	n := NewNotifications("Test University")
	assert.Nil(t, n.Submitted(&models.User{FullName: "No Mail"}))
	assert.Nil(t, n.Completed(nil))

	var batch outboxBatch
	batch.notify(n.Completed(nil))
	assert.Empty(t, batch.events)
}
