package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnify-api/internal/models"
)

func TestReconcilerIssuesMissingCertificates(t *testing.T) {
	enrollments := newFakeEnrollmentRepo()
	enrollments.completed = []models.Enrollment{*completedEnrollment()}
	certs := newFakeCertificateRepo()
	issuer := NewCertificateService(certs, newFakeCourseRepo(sixUnitCourse()), enrollments, nil, nil, nil, nil)
	reconciler := NewCertificateReconciler(enrollments, issuer, 0, nil)

	require.NoError(t, reconciler.Run(context.Background()))
	assert.EqualValues(t, 1, certs.inserts.Load())

	require.NoError(t, reconciler.Run(context.Background()))
	assert.EqualValues(t, 1, certs.inserts.Load())
}

func TestReconcilerReportsFailures(t *testing.T) {
	enrollments := newFakeEnrollmentRepo()
	orphan := *completedEnrollment()
	orphan.ID = "1b2c3d4e-0000-4000-8000-000000000002"
	orphan.CourseID = unknown
	enrollments.completed = []models.Enrollment{*completedEnrollment(), orphan}
	certs := newFakeCertificateRepo()
	issuer := NewCertificateService(certs, newFakeCourseRepo(sixUnitCourse()), enrollments, nil, nil, nil, nil)

	err := NewCertificateReconciler(enrollments, issuer, 10, nil).Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.EqualValues(t, 1, certs.inserts.Load())
	assert.Equal(t, []string{orphan.ID}, enrollments.attempted)
}

func TestReconcilerListFailure(t *testing.T) {
	enrollments := newFakeEnrollmentRepo()
	enrollments.listErr = errors.New("db down")

	err := NewCertificateReconciler(enrollments, nil, 10, nil).Run(context.Background())

	assert.ErrorContains(t, err, "db down")
}
