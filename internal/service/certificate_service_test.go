package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/export"
)

type capturingPDF struct {
	cert export.Certificate
}

func (c *capturingPDF) RenderCertificate(cert export.Certificate) ([]byte, error) {
	c.cert = cert
	return []byte("%PDF-1.3"), nil
}

func TestCertificateServiceRender(t *testing.T) {
	db := newMemoryDB(
		models.Department{ID: "library", Name: "Library", SequenceOrder: 2, Active: true},
		models.Department{ID: "bursary", Name: "Bursary", SequenceOrder: 3, Active: true},
	)
	completed := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	db.users["student-1"] = models.User{ID: "student-1", FullName: "Ada Obi", MatricNumber: strPtr("20H12345"), FacultyID: strPtr(scienceFacultyID)}
	db.clearances["clearance-1"] = models.Clearance{ID: "clearance-1", StudentID: "student-1", Status: models.ClearanceInProgress}
	db.entries["clearance-1"] = []models.ApprovalEntry{
		{ID: "e1", ClearanceID: "clearance-1", DepartmentID: "library", Decision: models.DecisionApproved, DecidedAt: &completed},
		{ID: "e2", ClearanceID: "clearance-1", DepartmentID: "bursary", Decision: models.DecisionApproved, DecidedAt: &completed},
	}
	pdf := &capturingPDF{}
	svc := NewCertificateService(memClearances{db}, memApprovals{db}, memUsers{db},
		stubFaculties{scienceFacultyID: {ID: scienceFacultyID, Name: "Natural Sciences"}}, pdf, "Ajayi Crowther University", nil)

	_, _, err := svc.Render(context.Background(), studentActor)
	assert.True(t, errors.Is(err, appErrors.ErrStaleState))

	c := db.clearances["clearance-1"]
	c.Status = models.ClearanceApproved
	c.CompletedAt = &completed
	db.clearances["clearance-1"] = c

	body, filename, err := svc.Render(context.Background(), studentActor)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.3"), body)
	assert.Equal(t, "clearance_certificate_20H12345.pdf", filename)
	assert.Equal(t, "Natural Sciences", pdf.cert.Faculty)
	assert.Equal(t, completed, pdf.cert.CompletedAt)
	require.Len(t, pdf.cert.Stages, 2)
	assert.Equal(t, "Library", pdf.cert.Stages[0].Department)

	_, _, err = svc.Render(context.Background(), models.StudentActor{UserID: "nobody"})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
