package dto

import "time"

// IssueCertificateRequest claims the certificate of a completed enrollment.
type IssueCertificateRequest struct {
	EnrollmentID string `json:"enrollmentId" validate:"required,uuid"`
}

// CertificateLinkResponse carries a signed, expiring download URL.
type CertificateLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
