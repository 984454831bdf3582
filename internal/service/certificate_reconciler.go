package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/learnify-api/internal/models"
)

type completedEnrollmentLister interface {
	ListCompletedWithoutCertificate(ctx context.Context, limit int) ([]models.Enrollment, error)
	MarkCertificateAttempt(ctx context.Context, id string, at time.Time) error
}

// CertificateReconciler issues certificates for enrollments that reached 100 without one,
// which happens when issuance failed after the completion was committed.
type CertificateReconciler struct {
	enrollments completedEnrollmentLister
	issuer      certificateIssuer
	batchSize   int
	logger      *zap.Logger
}

// NewCertificateReconciler constructs a CertificateReconciler.
func NewCertificateReconciler(enrollments completedEnrollmentLister, issuer certificateIssuer, batchSize int, logger *zap.Logger) *CertificateReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &CertificateReconciler{enrollments: enrollments, issuer: issuer, batchSize: batchSize, logger: logger}
}

// Run performs one reconciliation pass.
func (r *CertificateReconciler) Run(ctx context.Context) error {
	pending, err := r.enrollments.ListCompletedWithoutCertificate(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("list enrollments missing certificates: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	var issued, failed int
	for i := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		enrollment := &pending[i]
		result, err := r.issuer.IssueIfComplete(ctx, enrollment)
		if err != nil {
			failed++
			r.logger.Error("reconcile certificate failed", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
			if markErr := r.enrollments.MarkCertificateAttempt(ctx, enrollment.ID, time.Now().UTC()); markErr != nil {
				r.logger.Warn("failed to record certificate attempt", zap.String("enrollment_id", enrollment.ID), zap.Error(markErr))
			}
			continue
		}
		if result.Status == models.IssueStatusIssued {
			issued++
		}
	}

	r.logger.Info("certificate reconciliation finished",
		zap.Int("candidates", len(pending)),
		zap.Int("issued", issued),
		zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d certificates could not be issued", failed, len(pending))
	}
	return nil
}
