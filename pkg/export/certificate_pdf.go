package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateDocument holds the text printed on a certificate.
type CertificateDocument struct {
	Code        string
	Title       string
	Description string
	StudentName string
	CourseTitle string
	TutorName   string
	IssuedAt    time.Time
}

// CertificateRenderer draws single page certificates.
type CertificateRenderer struct {
	Issuer string
}

// NewCertificateRenderer constructs a renderer signing documents as issuer.
func NewCertificateRenderer(issuer string) *CertificateRenderer {
	if issuer == "" {
		issuer = "Learnify"
	}
	return &CertificateRenderer{Issuer: issuer}
}

// Render produces the certificate PDF.
func (r *CertificateRenderer) Render(doc CertificateDocument) ([]byte, error) {
	if doc.Code == "" || doc.StudentName == "" {
		return nil, fmt.Errorf("certificate code and student name required")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(doc.Title, true)
	pdf.SetAuthor(r.Issuer, true)
	pdf.SetCreationDate(doc.IssuedAt)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	w, h := pdf.GetPageSize()
	pdf.SetDrawColor(32, 64, 128)
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, w-20, h-20, "D")
	pdf.SetLineWidth(0.4)
	pdf.Rect(14, 14, w-28, h-28, "D")

	pdf.SetY(36)
	pdf.SetFont("Times", "B", 30)
	pdf.SetTextColor(32, 64, 128)
	pdf.CellFormat(0, 14, tr(doc.Title), "", 1, "C", false, 0, "")

	pdf.SetTextColor(40, 40, 40)
	pdf.SetFont("Times", "", 14)
	pdf.CellFormat(0, 12, tr("This certifies that"), "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "BI", 26)
	pdf.CellFormat(0, 16, tr(doc.StudentName), "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "", 14)
	pdf.CellFormat(0, 10, tr("has completed the course"), "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "B", 18)
	pdf.CellFormat(0, 12, tr(doc.CourseTitle), "", 1, "C", false, 0, "")

	if doc.Description != "" {
		pdf.Ln(4)
		pdf.SetFont("Times", "", 12)
		pdf.SetX(40)
		pdf.MultiCell(w-80, 6, tr(doc.Description), "", "C", false)
	}

	pdf.SetY(h - 48)
	pdf.SetFont("Times", "", 11)
	half := (w - 40) / 2
	pdf.SetX(20)
	pdf.CellFormat(half, 6, tr("Tutor: "+doc.TutorName), "", 0, "L", false, 0, "")
	pdf.CellFormat(half, 6, tr("Issued "+doc.IssuedAt.UTC().Format("2 January 2006")), "", 1, "R", false, 0, "")
	pdf.SetX(20)
	pdf.SetFont("Courier", "", 10)
	pdf.CellFormat(w-40, 6, "Certificate "+doc.Code, "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
