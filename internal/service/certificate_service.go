package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/export"
)

type certificateClearanceReader interface {
	FindByStudent(ctx context.Context, studentID string) (*models.Clearance, error)
}

type certificateLedgerReader interface {
	ListByClearance(ctx context.Context, exec sqlx.ExtContext, clearanceID string) ([]models.ApprovalView, error)
}

type pdfRenderer interface {
	RenderCertificate(cert export.Certificate) ([]byte, error)
}

// CertificateService renders the clearance certificate of a fully approved student.
type CertificateService struct {
	clearances  certificateClearanceReader
	approvals   certificateLedgerReader
	users       userReader
	faculties   facultyReader
	pdf         pdfRenderer
	institution string
	logger      *zap.Logger
}

// NewCertificateService constructs a CertificateService.
func NewCertificateService(clearances certificateClearanceReader, approvals certificateLedgerReader, users userReader, faculties facultyReader, pdf pdfRenderer, institution string, logger *zap.Logger) *CertificateService {
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		clearances:  clearances,
		approvals:   approvals,
		users:       users,
		faculties:   faculties,
		pdf:         pdf,
		institution: institution,
		logger:      logger,
	}
}

// Render returns the certificate PDF and a download filename.
func (s *CertificateService) Render(ctx context.Context, actor models.StudentActor) ([]byte, string, error) {
	clearance, err := s.clearances.FindByStudent(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "clearance not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance")
	}
	if clearance.Status != models.ClearanceApproved {
		return nil, "", appErrors.Clone(appErrors.ErrStaleState, "certificate is available once every department has approved")
	}
	student, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	entries, err := s.approvals.ListByClearance(ctx, nil, clearance.ID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}

	cert := export.Certificate{
		Institution:  s.institution,
		StudentName:  student.FullName,
		MatricNumber: deref(student.MatricNumber),
		ClearanceID:  clearance.ID,
	}
	if clearance.CompletedAt != nil {
		cert.CompletedAt = *clearance.CompletedAt
	}
	if student.FacultyID != nil {
		if faculty, err := s.faculties.FindByID(ctx, *student.FacultyID); err == nil {
			cert.Faculty = faculty.Name
		} else {
			s.logger.Warn("certificate faculty lookup failed", zap.String("faculty_id", *student.FacultyID), zap.Error(err))
		}
	}
	for _, e := range entries {
		if e.Decision != models.DecisionApproved {
			continue
		}
		stage := export.CertificateStage{Order: e.SequenceOrder, Department: e.DepartmentName, Reviewer: deref(e.ReviewerName)}
		if e.DecidedAt != nil {
			stage.ApprovedAt = *e.DecidedAt
		}
		cert.Stages = append(cert.Stages, stage)
	}

	body, err := s.pdf.RenderCertificate(cert)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	name := deref(student.MatricNumber)
	if name == "" {
		name = clearance.ID
	}
	return body, fmt.Sprintf("clearance_certificate_%s.pdf", name), nil
}
