package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/learnify-api/internal/dto"
	"github.com/noah-isme/learnify-api/internal/models"
	"github.com/noah-isme/learnify-api/internal/repository"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
)

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	RecordCompletion(ctx context.Context, params repository.RecordCompletionParams) (*models.CompletionResult, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentSummary, error)
}

type enrollmentUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type courseCatalog interface {
	Find(ctx context.Context, id string) (*models.Course, error)
	CountUnits(ctx context.Context, courseID string) (models.CourseUnits, error)
	HasUnit(ctx context.Context, courseID string, kind models.CompletionKind, itemID string) (bool, error)
}

type certificateIssuer interface {
	IssueIfComplete(ctx context.Context, enrollment *models.Enrollment) (*models.IssueResult, error)
	FindForEnrollment(ctx context.Context, enrollment *models.Enrollment) (*models.Certificate, error)
}

// EnrollmentService owns enrollment creation, completion marking and the enrollment read model.
type EnrollmentService struct {
	repo      enrollmentRepository
	users     enrollmentUserReader
	courses   courseCatalog
	issuer    certificateIssuer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, users enrollmentUserReader, courses courseCatalog, issuer certificateIssuer, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentService{
		repo:      repo,
		users:     users,
		courses:   courses,
		issuer:    issuer,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Enroll creates the enrollment of a student in a course.
func (s *EnrollmentService) Enroll(ctx context.Context, actorID string, role models.UserRole, req dto.EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if err := authorizeStudentScope(req.StudentID, actorID, role); err != nil {
		return nil, err
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only students can enroll in courses")
	}
	if _, err := s.courses.Find(ctx, req.CourseID); err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{StudentID: req.StudentID, CourseID: req.CourseID}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this course")
		case errors.Is(err, repository.ErrMissingReference):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student or course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("course_id", enrollment.CourseID))
	return enrollment, nil
}

// MarkLessonComplete adds a lesson to the enrollment's completion set.
func (s *EnrollmentService) MarkLessonComplete(ctx context.Context, actorID string, role models.UserRole, req dto.MarkLessonRequest) (*dto.CompletionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson completion payload")
	}
	return s.markComplete(ctx, actorID, role, req.Command())
}

// MarkQuizComplete adds a quiz to the enrollment's completion set.
func (s *EnrollmentService) MarkQuizComplete(ctx context.Context, actorID string, role models.UserRole, req dto.MarkQuizRequest) (*dto.CompletionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz completion payload")
	}
	return s.markComplete(ctx, actorID, role, req.Command())
}

func (s *EnrollmentService) markComplete(ctx context.Context, actorID string, role models.UserRole, cmd dto.CompletionCommand) (resp *dto.CompletionResponse, err error) {
	ctx, span := tracer.Start(ctx, "EnrollmentService.MarkComplete")
	span.SetAttributes(
		attribute.String("enrollment.id", cmd.EnrollmentID),
		attribute.String("unit.kind", string(cmd.Kind)),
		attribute.String("unit.id", cmd.ItemID),
	)
	defer func() { endSpan(span, err) }()

	enrollment, err := s.loadEnrollment(ctx, cmd.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeStudentScope(enrollment.StudentID, actorID, role); err != nil {
		return nil, err
	}

	belongs, err := s.courses.HasUnit(ctx, enrollment.CourseID, cmd.Kind, cmd.ItemID)
	if err != nil {
		return nil, err
	}
	if !belongs {
		if cmd.Kind == models.CompletionQuiz {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quiz not found in course")
		}
		return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found in course")
	}

	units, err := s.courses.CountUnits(ctx, enrollment.CourseID)
	if err != nil {
		return nil, err
	}
	if cmd.TotalUnitsHint > 0 && cmd.TotalUnitsHint != units.Total() {
		s.logger.Info("client unit count differs from course",
			zap.String("enrollment_id", enrollment.ID),
			zap.Int("client_total", cmd.TotalUnitsHint),
			zap.Int("server_total", units.Total()))
	}

	result, err := s.repo.RecordCompletion(ctx, repository.RecordCompletionParams{
		EnrollmentID: enrollment.ID,
		Kind:         cmd.Kind,
		ItemID:       cmd.ItemID,
		TotalUnits:   units.Total(),
		Progress:     CalculateProgress,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record completion")
	}
	s.metrics.RecordCompletion(cmd.Kind, result.Added)
	span.SetAttributes(attribute.Bool("completion.added", result.Added), attribute.Float64("enrollment.progress", result.Enrollment.Progress))

	resp = &dto.CompletionResponse{Enrollment: result.Enrollment, AlreadyCompleted: !result.Added}
	if !result.Enrollment.IsComplete() {
		return resp, nil
	}

	// Runs on every call at 100 so a retried request recovers an issuance that failed earlier.
	issued, issueErr := s.issuer.IssueIfComplete(ctx, result.Enrollment)
	if issueErr != nil {
		s.logger.Error("completion stored but certificate issuance failed",
			zap.String("enrollment_id", enrollment.ID),
			zap.Bool("reached_completion", result.ReachedCompletion()),
			zap.Error(issueErr))
		resp.CertificateError = appErrors.Wrap(issueErr, appErrors.ErrCertificateIssuance.Code, appErrors.ErrCertificateIssuance.Status, "completion recorded but certificate issuance failed")
		return resp, nil
	}
	resp.CertificateStatus = issued.Status
	resp.Certificate = issued.Certificate
	return resp, nil
}

// GetEnrollment reads an enrollment together with its certificate, if one was issued. It never writes.
func (s *EnrollmentService) GetEnrollment(ctx context.Context, actorID string, role models.UserRole, req dto.GetEnrollmentRequest) (*models.EnrollmentView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment request")
	}
	enrollment, err := s.loadEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if err := authorizeStudentScope(enrollment.StudentID, actorID, role); err != nil {
		return nil, err
	}
	cert, err := s.issuer.FindForEnrollment(ctx, enrollment)
	if err != nil {
		return nil, err
	}
	return &models.EnrollmentView{Enrollment: enrollment, Certificate: cert}, nil
}

// ListForStudent returns a student's enrollments with course titles.
func (s *EnrollmentService) ListForStudent(ctx context.Context, actorID string, role models.UserRole, req dto.StudentRequest) ([]models.EnrollmentSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment list request")
	}
	if err := authorizeStudentScope(req.StudentID, actorID, role); err != nil {
		return nil, err
	}
	summaries, err := s.repo.ListByStudent(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if summaries == nil {
		summaries = []models.EnrollmentSummary{}
	}
	return summaries, nil
}

func (s *EnrollmentService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}
