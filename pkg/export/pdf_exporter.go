package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateStage is one signed-off department on the certificate.
type CertificateStage struct {
	Order      int
	Department string
	Reviewer   string
	ApprovedAt time.Time
}

// Certificate carries everything printed on a clearance certificate.
type Certificate struct {
	Institution  string
	StudentName  string
	MatricNumber string
	Faculty      string
	ClearanceID  string
	CompletedAt  time.Time
	Stages       []CertificateStage
}

// PDFExporter renders clearance certificates.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderCertificate lays out a single-page A4 certificate with the approval trail.
func (e *PDFExporter) RenderCertificate(cert Certificate) ([]byte, error) {
	if cert.StudentName == "" || cert.ClearanceID == "" {
		return nil, fmt.Errorf("certificate requires student name and clearance id")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetTitle("Clearance Certificate", true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, strings.ToUpper(cert.Institution), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 8, "FINAL YEAR CLEARANCE CERTIFICATE", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 11)
	pdf.MultiCell(0, 6, fmt.Sprintf(
		"This is to certify that %s (Matric No. %s) of the %s has been cleared by every department listed below.",
		cert.StudentName, cert.MatricNumber, fallback(cert.Faculty, "University"),
	), "", "L", false)
	pdf.Ln(4)

	headers := []string{"#", "Department", "Cleared by", "Date"}
	widths := []float64{12, 68, 60, 40}
	pdf.SetFont("Arial", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, stage := range cert.Stages {
		pdf.CellFormat(widths[0], 7, fmt.Sprintf("%d", stage.Order), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 7, stage.Department, "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[2], 7, fallback(stage.Reviewer, "-"), "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[3], 7, formatDate(stage.ApprovedAt), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "Date of completion: "+formatDate(cert.CompletedAt), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, "Reference: "+cert.ClearanceID, "", 1, "", false, 0, "")
	pdf.Ln(12)
	pdf.SetFont("Arial", "I", 10)
	pdf.CellFormat(0, 6, "Office of the Registrar", "", 1, "", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02 Jan 2006")
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
