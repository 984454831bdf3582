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

const enrollmentColumns = `e.id, e.enrollment_no, e.course_id, e.student_id, e.enrolled_at, e.progress, e.last_accessed_at, e.version, e.created_at, e.updated_at`

const enrollmentSummarySelect = `SELECT e.id, e.enrollment_no, e.course_id, c.title AS course_title, e.student_id, u.full_name AS student_name,
	e.progress, e.enrolled_at, e.last_accessed_at, cert.id AS certificate_id
FROM enrollments e
JOIN courses c ON c.id = e.course_id
JOIN users u ON u.id = e.student_id
LEFT JOIN certificates cert ON cert.course_id = e.course_id AND cert.student_id = e.student_id`

// completions whose lesson or quiz was removed from the course no longer count.
const countLiveCompletionsQuery = `SELECT COUNT(*) FROM enrollment_completions ec
WHERE ec.enrollment_id = $1 AND (
	(ec.kind = 'LESSON' AND EXISTS (SELECT 1 FROM lessons l WHERE l.id = ec.item_id AND l.course_id = $2))
	OR (ec.kind = 'QUIZ' AND EXISTS (SELECT 1 FROM quizzes q WHERE q.id = ec.item_id AND q.course_id = $2))
)`

// ProgressFunc maps completed and total unit counts to a percentage.
type ProgressFunc func(completed, total int) float64

// RecordCompletionParams describes one completion to record.
type RecordCompletionParams struct {
	EnrollmentID string
	Kind         models.CompletionKind
	ItemID       string
	TotalUnits   int
	Progress     ProgressFunc
}

// EnrollmentRepository persists enrollments and their completion sets.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create inserts a new enrollment. It returns ErrDuplicate when the student is already enrolled.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments (id, course_id, student_id, enrolled_at, progress, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, 0, 0, $5, $5)
ON CONFLICT (student_id, course_id) DO NOTHING
RETURNING enrollment_no`
	err := r.db.QueryRowxContext(ctx, query, enrollment.ID, enrollment.CourseID, enrollment.StudentID, enrollment.EnrolledAt, now).Scan(&enrollment.EnrollmentNo)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return ErrDuplicate
		case isForeignKeyViolation(err):
			return ErrMissingReference
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	enrollment.Progress = 0
	enrollment.Version = 0
	enrollment.CompletedLessons = []string{}
	enrollment.CompletedQuizzes = []string{}
	return nil
}

// FindByID returns the enrollment with its completion sets.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments e WHERE e.id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	if err := loadCompletions(ctx, r.db, &enrollment); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// RecordCompletion adds an item to the completion set and recomputes progress in one
// transaction. The enrollment row is locked for the duration, which serializes
// concurrent completions on the same enrollment. A repeated item leaves the enrollment
// untouched unless the course's unit count changed since progress was last stored.
func (r *EnrollmentRepository) RecordCompletion(ctx context.Context, params RecordCompletionParams) (*models.CompletionResult, error) {
	if params.Progress == nil {
		return nil, fmt.Errorf("record completion: progress func required")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin completion tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var enrollment models.Enrollment
	lockQuery := `SELECT ` + enrollmentColumns + ` FROM enrollments e WHERE e.id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &enrollment, lockQuery, params.EnrollmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock enrollment: %w", err)
	}
	previous := enrollment.Progress

	now := time.Now().UTC()
	const insertQuery = `INSERT INTO enrollment_completions (enrollment_id, kind, item_id, completed_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING
RETURNING item_id`
	var inserted string
	added := true
	if err := tx.QueryRowxContext(ctx, insertQuery, enrollment.ID, params.Kind, params.ItemID, now).Scan(&inserted); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("insert completion: %w", err)
		}
		added = false
	}

	// recount on every call: a course edit can change the denominator without a new completion
	var completed int
	if err := tx.GetContext(ctx, &completed, countLiveCompletionsQuery, enrollment.ID, enrollment.CourseID); err != nil {
		return nil, fmt.Errorf("count completions: %w", err)
	}
	progress := params.Progress(completed, params.TotalUnits)

	switch {
	case added:
		const updateQuery = `UPDATE enrollments SET progress = $2, last_accessed_at = $3, updated_at = $3, version = version + 1 WHERE id = $1 RETURNING version`
		if err := tx.QueryRowxContext(ctx, updateQuery, enrollment.ID, progress, now).Scan(&enrollment.Version); err != nil {
			return nil, fmt.Errorf("update enrollment progress: %w", err)
		}
		enrollment.LastAccessedAt = &now
		enrollment.Progress = progress
		enrollment.UpdatedAt = now
	case progress != enrollment.Progress:
		const resyncQuery = `UPDATE enrollments SET progress = $2, updated_at = $3, version = version + 1 WHERE id = $1 RETURNING version`
		if err := tx.QueryRowxContext(ctx, resyncQuery, enrollment.ID, progress, now).Scan(&enrollment.Version); err != nil {
			return nil, fmt.Errorf("resync enrollment progress: %w", err)
		}
		enrollment.Progress = progress
		enrollment.UpdatedAt = now
	}

	if err := loadCompletions(ctx, tx, &enrollment); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit completion: %w", err)
	}

	return &models.CompletionResult{Enrollment: &enrollment, Added: added, PreviousProgress: previous}, nil
}

// ListByStudent returns the enrollments of one student, newest first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentSummary, error) {
	query := enrollmentSummarySelect + ` WHERE e.student_id = $1 ORDER BY e.enrolled_at DESC`
	var summaries []models.EnrollmentSummary
	if err := r.db.SelectContext(ctx, &summaries, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return summaries, nil
}

// List returns enrollments for admin views with a total count.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentSummary, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		where += fmt.Sprintf(" AND e.student_id = $%d", len(args))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		where += fmt.Sprintf(" AND e.course_id = $%d", len(args))
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s%s ORDER BY e.enrolled_at DESC LIMIT %d OFFSET %d", enrollmentSummarySelect, where, size, offsetFor(page, size))

	var summaries []models.EnrollmentSummary
	if err := r.db.SelectContext(ctx, &summaries, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM enrollments e`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return summaries, total, nil
}

// ListCompletedWithoutCertificate finds finished enrollments that are missing their certificate.
// Never-attempted enrollments come first, then the ones whose last failed attempt is oldest.
func (r *EnrollmentRepository) ListCompletedWithoutCertificate(ctx context.Context, limit int) ([]models.Enrollment, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments e
WHERE e.progress >= 100
AND NOT EXISTS (SELECT 1 FROM certificates c WHERE c.course_id = e.course_id AND c.student_id = e.student_id)
ORDER BY e.certificate_attempted_at NULLS FIRST, e.updated_at
LIMIT $1`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, limit); err != nil {
		return nil, fmt.Errorf("list completed enrollments without certificate: %w", err)
	}
	return enrollments, nil
}

// MarkCertificateAttempt records a failed issuance so the enrollment moves behind untried ones.
func (r *EnrollmentRepository) MarkCertificateAttempt(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE enrollments SET certificate_attempted_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("mark certificate attempt: %w", err)
	}
	return nil
}

// DeleteBatch removes enrollments by id.
func (r *EnrollmentRepository) DeleteBatch(ctx context.Context, ids []string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete enrollments: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of enrollments and how many of them are complete.
func (r *EnrollmentRepository) Count(ctx context.Context) (total int, completed int, err error) {
	var row struct {
		Total     int `db:"total"`
		Completed int `db:"completed"`
	}
	const query = `SELECT COUNT(*) AS total, COUNT(*) FILTER (WHERE progress >= 100) AS completed FROM enrollments`
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return 0, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return row.Total, row.Completed, nil
}

func loadCompletions(ctx context.Context, q sqlx.QueryerContext, enrollment *models.Enrollment) error {
	const query = `SELECT kind, item_id FROM enrollment_completions WHERE enrollment_id = $1 ORDER BY completed_at, item_id`
	var rows []struct {
		Kind   models.CompletionKind `db:"kind"`
		ItemID string                `db:"item_id"`
	}
	if err := sqlx.SelectContext(ctx, q, &rows, query, enrollment.ID); err != nil {
		return fmt.Errorf("load completions: %w", err)
	}
	enrollment.CompletedLessons = []string{}
	enrollment.CompletedQuizzes = []string{}
	for _, row := range rows {
		switch row.Kind {
		case models.CompletionLesson:
			enrollment.CompletedLessons = append(enrollment.CompletedLessons, row.ItemID)
		case models.CompletionQuiz:
			enrollment.CompletedQuizzes = append(enrollment.CompletedQuizzes, row.ItemID)
		}
	}
	return nil
}
