package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/learnify-api/internal/dto"
	"github.com/noah-isme/learnify-api/internal/models"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
	"github.com/noah-isme/learnify-api/pkg/export"
)

type adminUserRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	DeleteBatch(ctx context.Context, role models.UserRole, ids []string) (int64, error)
	CountByRole(ctx context.Context) (map[models.UserRole]int, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type adminCourseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error)
	DeleteBatch(ctx context.Context, ids []string) (int64, error)
	Count(ctx context.Context) (int, error)
}

type adminEnrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentSummary, int, error)
	DeleteBatch(ctx context.Context, ids []string) (int64, error)
	Count(ctx context.Context) (int, int, error)
}

type adminCertificateRepository interface {
	List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, int, error)
	DeleteBatch(ctx context.Context, ids []string) (int64, error)
	Count(ctx context.Context) (int, error)
}

type catalogInvalidator interface {
	InvalidateAll(ctx context.Context)
}

type tabularRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// Export resources and formats.
const (
	ExportEnrollments  = "enrollments"
	ExportCertificates = "certificates"
	ExportFormatCSV    = "csv"
	ExportFormatPDF    = "pdf"

	exportPageSize = 100
)

// ExportFile is a rendered admin export.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AdminService backs the administration endpoints.
type AdminService struct {
	users        adminUserRepository
	courses      adminCourseRepository
	enrollments  adminEnrollmentRepository
	certificates adminCertificateRepository
	catalog      catalogInvalidator
	metrics      *MetricsService
	renderers    map[string]tabularRenderer
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewAdminService constructs an AdminService.
func NewAdminService(users adminUserRepository, courses adminCourseRepository, enrollments adminEnrollmentRepository, certificates adminCertificateRepository, catalog catalogInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AdminService{
		users:        users,
		courses:      courses,
		enrollments:  enrollments,
		certificates: certificates,
		catalog:      catalog,
		metrics:      metrics,
		renderers: map[string]tabularRenderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListUsers lists the users of one role.
func (s *AdminService) ListUsers(ctx context.Context, role models.UserRole, q dto.ListQuery) ([]models.User, *models.Pagination, error) {
	page, size := models.NormalizePage(q.Page, q.PageSize)
	users, total, err := s.users.List(ctx, models.UserFilter{Role: &role, Search: q.Search, Page: page, PageSize: size, SortBy: "user_no", SortOrder: "ASC"})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListCourses lists every course.
func (s *AdminService) ListCourses(ctx context.Context, q dto.ListQuery) ([]models.CourseSummary, *models.Pagination, error) {
	page, size := models.NormalizePage(q.Page, q.PageSize)
	courses, total, err := s.courses.List(ctx, models.CourseFilter{Search: q.Search, Page: page, PageSize: size})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.CourseSummary{}
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListEnrollments lists enrollments, optionally narrowed to a student or course.
func (s *AdminService) ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentSummary, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	rows, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if rows == nil {
		rows = []models.EnrollmentSummary{}
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// ListCertificates lists certificates, optionally narrowed to a student or course.
func (s *AdminService) ListCertificates(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	rows, total, err := s.certificates.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}
	if rows == nil {
		rows = []models.CertificateDetail{}
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// DeleteBatch removes records of a single type and writes one audit entry for the batch.
func (s *AdminService) DeleteBatch(ctx context.Context, actorID string, req dto.BatchDeleteRequest, meta models.LoginRequest) (*dto.BatchDeleteResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch delete payload")
	}

	var (
		deleted int64
		err     error
	)
	switch req.Type {
	case dto.RecordStudent:
		deleted, err = s.users.DeleteBatch(ctx, models.RoleStudent, req.IDs)
	case dto.RecordTutor:
		deleted, err = s.users.DeleteBatch(ctx, models.RoleTutor, req.IDs)
	case dto.RecordAdmin:
		for _, id := range req.IDs {
			if id == actorID {
				return nil, appErrors.Clone(appErrors.ErrValidation, "admins cannot delete their own account")
			}
		}
		deleted, err = s.users.DeleteBatch(ctx, models.RoleAdmin, req.IDs)
	case dto.RecordCourse:
		deleted, err = s.courses.DeleteBatch(ctx, req.IDs)
	case dto.RecordEnrollment:
		deleted, err = s.enrollments.DeleteBatch(ctx, req.IDs)
	case dto.RecordCertificate:
		deleted, err = s.certificates.DeleteBatch(ctx, req.IDs)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported record type")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to delete %s records", req.Type))
	}

	// tutor deletion cascades to their courses
	if s.catalog != nil && (req.Type == dto.RecordCourse || req.Type == dto.RecordTutor) {
		s.catalog.InvalidateAll(ctx)
	}

	if err := s.users.CreateAuditLog(ctx, &models.AuditLog{
		UserID:    &actorID,
		Action:    models.AuditActionBatchDelete,
		Resource:  req.Type,
		NewValues: marshalAudit(map[string]interface{}{"ids": req.IDs, "deleted": deleted}),
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record batch delete audit log", zap.Error(err))
	}

	s.logger.Info("batch delete", zap.String("type", req.Type), zap.Int("requested", len(req.IDs)), zap.Int64("deleted", deleted))
	return &dto.BatchDeleteResponse{Type: req.Type, Deleted: deleted}, nil
}

// Stats gathers platform counts concurrently.
func (s *AdminService) Stats(ctx context.Context) (*models.PlatformStats, error) {
	var (
		stats  models.PlatformStats
		byRole map[models.UserRole]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byRole, err = s.users.CountByRole(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Courses, err = s.courses.Count(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Enrollments, stats.CompletedEnrollments, err = s.enrollments.Count(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats.Certificates, err = s.certificates.Count(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to gather platform stats")
	}

	stats.Students = byRole[models.RoleStudent]
	stats.Tutors = byRole[models.RoleTutor]
	stats.Admins = byRole[models.RoleAdmin]
	stats.System = s.metrics.Snapshot()
	return &stats, nil
}

// Export renders all enrollments or certificates as CSV or PDF.
func (s *AdminService) Export(ctx context.Context, resource, format string) (*ExportFile, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	var (
		dataset export.Dataset
		err     error
	)
	switch resource {
	case ExportEnrollments:
		dataset, err = s.enrollmentDataset(ctx)
	case ExportCertificates:
		dataset, err = s.certificateDataset(ctx)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "resource must be enrollments or certificates")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build export")
	}

	data, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("%s-%s.%s", resource, s.now().Format("20060102-150405"), format),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func (s *AdminService) enrollmentDataset(ctx context.Context) (export.Dataset, error) {
	dataset := export.Dataset{
		Title:   "Enrollments",
		Headers: []string{"No", "Student", "Course", "Progress", "Enrolled At", "Certificate"},
	}
	for page := 1; ; page++ {
		rows, total, err := s.enrollments.List(ctx, models.EnrollmentFilter{Page: page, PageSize: exportPageSize})
		if err != nil {
			return dataset, err
		}
		for _, row := range rows {
			certificate := "-"
			if row.CertificateID != nil {
				certificate = "issued"
			}
			dataset.Rows = append(dataset.Rows, []string{
				strconv.FormatInt(row.EnrollmentNo, 10),
				row.StudentName,
				row.CourseTitle,
				strconv.FormatFloat(row.Progress, 'f', 2, 64),
				row.EnrolledAt.Format(time.RFC3339),
				certificate,
			})
		}
		if len(rows) == 0 || page*exportPageSize >= total {
			return dataset, nil
		}
	}
}

func (s *AdminService) certificateDataset(ctx context.Context) (export.Dataset, error) {
	dataset := export.Dataset{
		Title:   "Certificates",
		Headers: []string{"Code", "Student", "Course", "Tutor", "Title", "Issued At"},
	}
	for page := 1; ; page++ {
		rows, total, err := s.certificates.List(ctx, models.CertificateFilter{Page: page, PageSize: exportPageSize})
		if err != nil {
			return dataset, err
		}
		for _, row := range rows {
			dataset.Rows = append(dataset.Rows, []string{
				row.Code(),
				row.StudentName,
				row.CourseTitle,
				row.TutorName,
				row.Title,
				row.IssuedAt.Format(time.RFC3339),
			})
		}
		if len(rows) == 0 || page*exportPageSize >= total {
			return dataset, nil
		}
	}
}
