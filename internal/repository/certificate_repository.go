package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/learnify-api/internal/models"
)

const certificateColumns = `cert.id, cert.certificate_no, cert.title, cert.description, cert.course_id, cert.tutor_id, cert.student_id, cert.enrollment_id, cert.issued_at`

const certificateDetailSelect = `SELECT ` + certificateColumns + `, c.title AS course_title, s.full_name AS student_name, t.full_name AS tutor_name
FROM certificates cert
JOIN courses c ON c.id = cert.course_id
JOIN users s ON s.id = cert.student_id
JOIN users t ON t.id = cert.tutor_id`

// CertificateRepository persists issued certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Insert stores a certificate unless one already exists for the same course and student.
// The boolean reports whether this call created the row.
func (r *CertificateRepository) Insert(ctx context.Context, cert *models.Certificate) (bool, error) {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = time.Now().UTC()
	}

	const query = `INSERT INTO certificates (id, title, description, course_id, tutor_id, student_id, enrollment_id, issued_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (course_id, student_id) DO NOTHING
RETURNING certificate_no`
	err := r.db.QueryRowxContext(ctx, query,
		cert.ID, cert.Title, cert.Description, cert.CourseID, cert.TutorID, cert.StudentID, cert.EnrollmentID, cert.IssuedAt,
	).Scan(&cert.CertificateNo)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return false, nil
		case isForeignKeyViolation(err):
			return false, ErrMissingReference
		}
		return false, fmt.Errorf("insert certificate: %w", err)
	}
	return true, nil
}

// FindByCourseAndStudent returns the certificate for a (course, student) pair.
func (r *CertificateRepository) FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates cert WHERE cert.course_id = $1 AND cert.student_id = $2`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, courseID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find certificate by course and student: %w", err)
	}
	return &cert, nil
}

// FindByID returns a certificate by identifier.
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates cert WHERE cert.id = $1`
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return &cert, nil
}

// FindDetailByID returns a certificate with the course, student and tutor names.
func (r *CertificateRepository) FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error) {
	query := certificateDetailSelect + ` WHERE cert.id = $1`
	var detail models.CertificateDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find certificate detail: %w", err)
	}
	return &detail, nil
}

// ListByStudent returns every certificate of one student, newest first.
func (r *CertificateRepository) ListByStudent(ctx context.Context, studentID string) ([]models.CertificateDetail, error) {
	query := certificateDetailSelect + ` WHERE cert.student_id = $1 ORDER BY cert.issued_at DESC`
	var certificates []models.CertificateDetail
	if err := r.db.SelectContext(ctx, &certificates, query, studentID); err != nil {
		return nil, fmt.Errorf("list student certificates: %w", err)
	}
	return certificates, nil
}

// List returns certificates with names for list views, newest first.
func (r *CertificateRepository) List(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		where += fmt.Sprintf(" AND cert.student_id = $%d", len(args))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		where += fmt.Sprintf(" AND cert.course_id = $%d", len(args))
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s%s ORDER BY cert.issued_at DESC LIMIT %d OFFSET %d", certificateDetailSelect, where, size, offsetFor(page, size))

	var certificates []models.CertificateDetail
	if err := r.db.SelectContext(ctx, &certificates, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list certificates: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM certificates cert`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}
	return certificates, total, nil
}

// DeleteBatch removes certificates by id.
func (r *CertificateRepository) DeleteBatch(ctx context.Context, ids []string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM certificates WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete certificates: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of issued certificates.
func (r *CertificateRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM certificates`); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return total, nil
}
