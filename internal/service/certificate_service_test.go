package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnify-api/internal/dto"
	"github.com/noah-isme/learnify-api/internal/models"
	"github.com/noah-isme/learnify-api/internal/repository"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
)

func completedEnrollment() *models.Enrollment {
	return &models.Enrollment{
		ID:               "1b2c3d4e-0000-4000-8000-000000000001",
		CourseID:         courseID,
		StudentID:        studentID,
		Progress:         100,
		CompletedLessons: []string{lesson1, lesson2, lesson3, lesson4},
		CompletedQuizzes: []string{quiz1, quiz2},
	}
}

func newCertificateFixture() (*CertificateService, *fakeCertificateRepo, *fakeEnrollmentRepo, *recordingScheduler) {
	certs := newFakeCertificateRepo()
	enrollments := newFakeEnrollmentRepo()
	renders := &recordingScheduler{}
	svc := NewCertificateService(certs, newFakeCourseRepo(sixUnitCourse()), enrollments, renders, nil, nil, nil)
	return svc, certs, enrollments, renders
}

func TestIssueIfCompleteNotApplicable(t *testing.T) {
	svc, certs, _, _ := newCertificateFixture()
	enrollment := completedEnrollment()
	enrollment.Progress = 99.99

	result, err := svc.IssueIfComplete(context.Background(), enrollment)

	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusNotApplicable, result.Status)
	assert.Nil(t, result.Certificate)
	assert.Zero(t, certs.inserts.Load())
}

func TestIssueIfCompleteCopiesTemplate(t *testing.T) {
	svc, _, _, renders := newCertificateFixture()

	result, err := svc.IssueIfComplete(context.Background(), completedEnrollment())

	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusIssued, result.Status)
	assert.False(t, result.AlreadyIssued)
	cert := result.Certificate
	assert.Equal(t, "Certified Gopher", cert.Title)
	assert.Equal(t, "Completed Go in Production", cert.Description)
	assert.Equal(t, tutorID, cert.TutorID)
	assert.Equal(t, studentID, cert.StudentID)
	require.NotNil(t, cert.EnrollmentID)
	assert.Equal(t, completedEnrollment().ID, *cert.EnrollmentID)
	assert.Equal(t, []string{cert.ID}, renders.ids)
}

func TestIssueIfCompleteConcurrentCallsShareOneCertificate(t *testing.T) {
	svc, certs, _, _ := newCertificateFixture()
	certs.insertDelay = 5 * time.Millisecond

	const callers = 20
	results := make([]*models.IssueResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.IssueIfComplete(context.Background(), completedEnrollment())
			if assert.NoError(t, err) {
				results[i] = result
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, certs.inserts.Load())
	var issued int
	for _, result := range results {
		require.NotNil(t, result)
		assert.Equal(t, results[0].Certificate.ID, result.Certificate.ID)
		switch result.Status {
		case models.IssueStatusIssued:
			issued++
			assert.False(t, result.AlreadyIssued)
		default:
			assert.Equal(t, models.IssueStatusAlreadyIssued, result.Status)
			assert.True(t, result.AlreadyIssued)
		}
	}
	assert.Equal(t, 1, issued)
}

func TestIssueIfCompleteSurvivesAnotherCallersCancellation(t *testing.T) {
	svc, certs, _, _ := newCertificateFixture()
	certs.insertDelay = 50 * time.Millisecond
	started := make(chan struct{}, 1)
	certs.onInsert = func() {
		select {
		case started <- struct{}{}:
		default:
		}
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.IssueIfComplete(leaderCtx, completedEnrollment())
		leaderErr <- err
	}()
	<-started

	type outcome struct {
		result *models.IssueResult
		err    error
	}
	follower := make(chan outcome, 1)
	go func() {
		result, err := svc.IssueIfComplete(context.Background(), completedEnrollment())
		follower <- outcome{result, err}
	}()
	cancel()

	assert.ErrorIs(t, <-leaderErr, context.Canceled)
	got := <-follower
	require.NoError(t, got.err)
	require.NotNil(t, got.result.Certificate)
	assert.True(t, got.result.AlreadyIssued)
	assert.EqualValues(t, 1, certs.inserts.Load())
}

func TestIssueIfCompleteAcrossInstancesKeepsOneWinner(t *testing.T) {
	certs := newFakeCertificateRepo()
	courses := newFakeCourseRepo(sixUnitCourse())
	first := NewCertificateService(certs, courses, nil, nil, nil, nil, nil)
	second := NewCertificateService(certs, courses, nil, nil, nil, nil, nil)

	var (
		wg      sync.WaitGroup
		results [2]*models.IssueResult
	)
	for i, svc := range []*CertificateService{first, second} {
		wg.Add(1)
		go func(i int, svc *CertificateService) {
			defer wg.Done()
			result, err := svc.IssueIfComplete(context.Background(), completedEnrollment())
			assert.NoError(t, err)
			results[i] = result
		}(i, svc)
	}
	wg.Wait()
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])

	assert.EqualValues(t, 1, certs.inserts.Load())
	assert.Equal(t, results[0].Certificate.ID, results[1].Certificate.ID)
	statuses := []models.IssueStatus{results[0].Status, results[1].Status}
	assert.ElementsMatch(t, []models.IssueStatus{models.IssueStatusIssued, models.IssueStatusAlreadyIssued}, statuses)
}

func TestIssueIfCompleteMissingCourseIsDataIntegrity(t *testing.T) {
	svc := NewCertificateService(newFakeCertificateRepo(), newFakeCourseRepo(), nil, nil, nil, nil, nil)

	_, err := svc.IssueIfComplete(context.Background(), completedEnrollment())

	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrDataIntegrity)
}

func TestIssueIfCompleteMissingReferenceIsDataIntegrity(t *testing.T) {
	svc, certs, _, _ := newCertificateFixture()
	certs.insertErr = fmt.Errorf("insert certificate: %w", repository.ErrMissingReference)

	_, err := svc.IssueIfComplete(context.Background(), completedEnrollment())

	assert.ErrorIs(t, err, appErrors.ErrDataIntegrity)
}

func TestIssueIfCompleteStoreFailureIsInternal(t *testing.T) {
	svc, certs, _, renders := newCertificateFixture()
	certs.insertErr = errors.New("connection refused")

	_, err := svc.IssueIfComplete(context.Background(), completedEnrollment())

	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Empty(t, renders.ids)
}

func TestIssueIfCompleteIgnoresRenderSchedulingFailure(t *testing.T) {
	svc, _, _, renders := newCertificateFixture()
	renders.err = errors.New("queue stopped")

	result, err := svc.IssueIfComplete(context.Background(), completedEnrollment())

	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusIssued, result.Status)
}

func TestClaimCertificate(t *testing.T) {
	svc, _, enrollments, _ := newCertificateFixture()
	enrollment := &models.Enrollment{StudentID: studentID, CourseID: courseID}
	require.NoError(t, enrollments.Create(context.Background(), enrollment))

	result, err := svc.Claim(context.Background(), studentID, models.RoleStudent, dto.IssueCertificateRequest{EnrollmentID: enrollment.ID})
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusNotApplicable, result.Status)

	_, err = svc.Claim(context.Background(), student2ID, models.RoleStudent, dto.IssueCertificateRequest{EnrollmentID: enrollment.ID})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Claim(context.Background(), studentID, models.RoleStudent, dto.IssueCertificateRequest{EnrollmentID: unknown})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCertificateGetAccess(t *testing.T) {
	svc, _, _, _ := newCertificateFixture()
	issued, err := svc.IssueIfComplete(context.Background(), completedEnrollment())
	require.NoError(t, err)
	id := issued.Certificate.ID

	for _, tc := range []struct {
		actor string
		role  models.UserRole
		ok    bool
	}{
		{actor: studentID, role: models.RoleStudent, ok: true},
		{actor: student2ID, role: models.RoleStudent, ok: false},
		{actor: tutorID, role: models.RoleTutor, ok: true},
		{actor: "another-tutor", role: models.RoleTutor, ok: false},
		{actor: adminID, role: models.RoleAdmin, ok: true},
	} {
		detail, err := svc.Get(context.Background(), tc.actor, tc.role, id)
		if tc.ok {
			require.NoError(t, err)
			assert.Equal(t, id, detail.ID)
		} else {
			assert.ErrorIs(t, err, appErrors.ErrForbidden)
		}
	}

	_, err = svc.Get(context.Background(), adminID, models.RoleAdmin, unknown)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestListCertificatesForStudent(t *testing.T) {
	svc, _, _, _ := newCertificateFixture()
	_, err := svc.IssueIfComplete(context.Background(), completedEnrollment())
	require.NoError(t, err)

	certs, err := svc.ListForStudent(context.Background(), studentID, models.RoleStudent, dto.StudentRequest{StudentID: studentID})
	require.NoError(t, err)
	assert.Len(t, certs, 1)

	none, err := svc.ListForStudent(context.Background(), student2ID, models.RoleStudent, dto.StudentRequest{StudentID: student2ID})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = svc.ListForStudent(context.Background(), student2ID, models.RoleStudent, dto.StudentRequest{StudentID: studentID})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
