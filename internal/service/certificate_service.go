package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/learnify-api/internal/dto"
	"github.com/noah-isme/learnify-api/internal/models"
	"github.com/noah-isme/learnify-api/internal/repository"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
)

type certificateRepository interface {
	Insert(ctx context.Context, cert *models.Certificate) (bool, error)
	FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Certificate, error)
	FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.CertificateDetail, error)
}

type certificateCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type certificateEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

// issueTimeout bounds a shared issuance once it no longer follows the caller's context.
const issueTimeout = 30 * time.Second

// RenderScheduler queues the PDF rendering of a newly issued certificate.
type RenderScheduler interface {
	ScheduleRender(ctx context.Context, certificateID string) error
}

// CertificateService issues certificates and serves certificate reads.
type CertificateService struct {
	repo        certificateRepository
	courses     certificateCourseReader
	enrollments certificateEnrollmentReader
	renders     RenderScheduler
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	group       singleflight.Group
}

// NewCertificateService constructs a CertificateService. renders may be nil.
func NewCertificateService(repo certificateRepository, courses certificateCourseReader, enrollments certificateEnrollmentReader, renders RenderScheduler, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CertificateService{
		repo:        repo,
		courses:     courses,
		enrollments: enrollments,
		renders:     renders,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// SetRenderScheduler wires the render queue after construction.
func (s *CertificateService) SetRenderScheduler(renders RenderScheduler) {
	s.renders = renders
}

// IssueIfComplete creates the certificate for a completed enrollment. It is idempotent:
// when a certificate already exists for the (course, student) pair that certificate is
// returned with AlreadyIssued set.
func (s *CertificateService) IssueIfComplete(ctx context.Context, enrollment *models.Enrollment) (result *models.IssueResult, err error) {
	if enrollment == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment required")
	}
	ctx, span := tracer.Start(ctx, "CertificateService.IssueIfComplete")
	span.SetAttributes(
		attribute.String("enrollment.id", enrollment.ID),
		attribute.String("course.id", enrollment.CourseID),
		attribute.Float64("enrollment.progress", enrollment.Progress),
	)
	defer func() { endSpan(span, err) }()

	if !enrollment.IsComplete() {
		s.metrics.RecordCertificate(string(models.IssueStatusNotApplicable))
		return &models.IssueResult{Status: models.IssueStatusNotApplicable}, nil
	}

	key := enrollment.CourseID + ":" + enrollment.StudentID
	var led bool
	ch := s.group.DoChan(key, func() (interface{}, error) {
		led = true
		// shared by every caller waiting on key, so one caller's cancellation must not end it
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), issueTimeout)
		defer cancel()
		return s.issue(workCtx, enrollment)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		s.metrics.RecordCertificate("FAILED")
		return nil, res.Err
	}
	issued := res.Val.(*models.IssueResult)
	if !led && issued.Status == models.IssueStatusIssued {
		issued = &models.IssueResult{Status: models.IssueStatusAlreadyIssued, AlreadyIssued: true, Certificate: issued.Certificate}
	}
	s.metrics.RecordCertificate(string(issued.Status))
	span.SetAttributes(attribute.String("certificate.status", string(issued.Status)))
	return issued, nil
}

func (s *CertificateService) issue(ctx context.Context, enrollment *models.Enrollment) (*models.IssueResult, error) {
	course, err := s.courses.FindByID(ctx, enrollment.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("enrollment references a missing course",
				zap.String("enrollment_id", enrollment.ID),
				zap.String("course_id", enrollment.CourseID))
			return nil, appErrors.Clone(appErrors.ErrDataIntegrity, "enrollment references a missing course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	enrollmentID := enrollment.ID
	cert := &models.Certificate{
		Title:        course.CertificateTitle,
		Description:  course.CertificateDescription,
		CourseID:     course.ID,
		TutorID:      course.TutorID,
		StudentID:    enrollment.StudentID,
		EnrollmentID: &enrollmentID,
	}
	inserted, err := s.repo.Insert(ctx, cert)
	if err != nil {
		if errors.Is(err, repository.ErrMissingReference) {
			s.logger.Error("certificate references a missing row",
				zap.String("enrollment_id", enrollment.ID),
				zap.String("course_id", enrollment.CourseID),
				zap.String("student_id", enrollment.StudentID))
			return nil, appErrors.Clone(appErrors.ErrDataIntegrity, "certificate references a missing course, tutor or student")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}

	if !inserted {
		existing, err := s.repo.FindByCourseAndStudent(ctx, enrollment.CourseID, enrollment.StudentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing certificate")
		}
		return &models.IssueResult{Status: models.IssueStatusAlreadyIssued, AlreadyIssued: true, Certificate: existing}, nil
	}

	s.logger.Info("certificate issued",
		zap.String("certificate_id", cert.ID),
		zap.String("code", cert.Code()),
		zap.String("enrollment_id", enrollment.ID))
	if s.renders != nil {
		if err := s.renders.ScheduleRender(ctx, cert.ID); err != nil {
			s.logger.Warn("failed to schedule certificate render", zap.String("certificate_id", cert.ID), zap.Error(err))
		}
	}
	return &models.IssueResult{Status: models.IssueStatusIssued, Certificate: cert}, nil
}

// Claim issues the certificate for an enrollment on explicit request.
func (s *CertificateService) Claim(ctx context.Context, actorID string, role models.UserRole, req dto.IssueCertificateRequest) (*models.IssueResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid certificate request")
	}
	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := authorizeStudentScope(enrollment.StudentID, actorID, role); err != nil {
		return nil, err
	}
	return s.IssueIfComplete(ctx, enrollment)
}

// FindForEnrollment returns the certificate of the enrollment's (course, student) pair, or nil.
func (s *CertificateService) FindForEnrollment(ctx context.Context, enrollment *models.Enrollment) (*models.Certificate, error) {
	cert, err := s.repo.FindByCourseAndStudent(ctx, enrollment.CourseID, enrollment.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return cert, nil
}

// ListForStudent returns a student's certificates.
func (s *CertificateService) ListForStudent(ctx context.Context, actorID string, role models.UserRole, req dto.StudentRequest) ([]models.CertificateDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid certificate list request")
	}
	if err := authorizeStudentScope(req.StudentID, actorID, role); err != nil {
		return nil, err
	}
	certs, err := s.repo.ListByStudent(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}
	if certs == nil {
		certs = []models.CertificateDetail{}
	}
	return certs, nil
}

// Get returns one certificate. Students see their own, tutors those of their courses.
func (s *CertificateService) Get(ctx context.Context, actorID string, role models.UserRole, id string) (*models.CertificateDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	if err := authorizeCertificateAccess(detail, actorID, role); err != nil {
		return nil, err
	}
	return detail, nil
}

func authorizeCertificateAccess(detail *models.CertificateDetail, actorID string, role models.UserRole) error {
	switch role {
	case models.RoleAdmin:
		return nil
	case models.RoleTutor:
		if detail.TutorID != actorID {
			return appErrors.Clone(appErrors.ErrForbidden, "certificate belongs to another tutor's course")
		}
	default:
		if detail.StudentID != actorID {
			return appErrors.Clone(appErrors.ErrForbidden, "certificate belongs to another student")
		}
	}
	return nil
}

// authorizeStudentScope lets students act on their own records and admins on any.
func authorizeStudentScope(studentID, actorID string, role models.UserRole) error {
	if role == models.RoleAdmin {
		return nil
	}
	if role == models.RoleStudent && studentID == actorID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "access to another student's records is not allowed")
}
