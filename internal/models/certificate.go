package models

import (
	"fmt"
	"time"
)

// Certificate asserts that a student completed a course. At most one exists per (course, student).
type Certificate struct {
	ID            string    `db:"id" json:"id"`
	CertificateNo int64     `db:"certificate_no" json:"certificate_no"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	CourseID      string    `db:"course_id" json:"course_id"`
	TutorID       string    `db:"tutor_id" json:"tutor_id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	EnrollmentID  *string   `db:"enrollment_id" json:"enrollment_id,omitempty"`
	IssuedAt      time.Time `db:"issued_at" json:"issued_at"`
}

// Code is the human readable certificate reference printed on documents.
func (c *Certificate) Code() string {
	return FormatCertificateCode(c.CertificateNo)
}

// FormatCertificateCode renders a certificate number as LRN-000042.
func FormatCertificateCode(no int64) string {
	return fmt.Sprintf("LRN-%06d", no)
}

// CertificateDetail is a certificate joined with the names printed on it.
type CertificateDetail struct {
	Certificate
	CourseTitle string `db:"course_title" json:"course_title"`
	StudentName string `db:"student_name" json:"student_name"`
	TutorName   string `db:"tutor_name" json:"tutor_name"`
}

// CertificateFilter narrows certificate listings.
type CertificateFilter struct {
	StudentID string
	CourseID  string
	Page      int
	PageSize  int
}

// IssueStatus describes the outcome of an issuance attempt.
type IssueStatus string

const (
	IssueStatusIssued        IssueStatus = "ISSUED"
	IssueStatusAlreadyIssued IssueStatus = "ALREADY_ISSUED"
	IssueStatusNotApplicable IssueStatus = "NOT_APPLICABLE"
)

// IssueResult is returned by the certificate issuer.
type IssueResult struct {
	Status        IssueStatus  `json:"status"`
	AlreadyIssued bool         `json:"already_issued"`
	Certificate   *Certificate `json:"certificate,omitempty"`
}
