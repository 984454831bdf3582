package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnify-api/internal/models"
)

var enrollmentRowColumns = []string{"id", "enrollment_no", "course_id", "student_id", "enrolled_at", "progress", "last_accessed_at", "version", "created_at", "updated_at"}

func halfProgress(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

func TestEnrollmentCreateReturnsDuplicateOnConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("INSERT INTO enrollments .* ON CONFLICT \\(student_id, course_id\\) DO NOTHING").
		WithArgs(sqlmock.AnyArg(), "course-1", "stu-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"enrollment_no"}))

	err := repo.Create(context.Background(), &models.Enrollment{CourseID: "course-1", StudentID: "stu-1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentCreateInitialisesState(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("INSERT INTO enrollments").
		WillReturnRows(sqlmock.NewRows([]string{"enrollment_no"}).AddRow(7))

	enrollment := &models.Enrollment{CourseID: "course-1", StudentID: "stu-1"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.EqualValues(t, 7, enrollment.EnrollmentNo)
	assert.Zero(t, enrollment.Progress)
	assert.Empty(t, enrollment.CompletedLessons)
	assert.NotNil(t, enrollment.CompletedQuizzes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentFindByIDLoadsCompletionSets(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectQuery("FROM enrollments e WHERE e.id = \\$1").
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).AddRow("enr-1", 1, "course-1", "stu-1", now, 50.0, now, 2, now, now))
	mock.ExpectQuery("SELECT kind, item_id FROM enrollment_completions").
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "item_id"}).
			AddRow("LESSON", "lesson-1").
			AddRow("QUIZ", "quiz-1"))

	enrollment, err := repo.FindByID(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"lesson-1"}, enrollment.CompletedLessons)
	assert.Equal(t, []string{"quiz-1"}, enrollment.CompletedQuizzes)
	assert.Equal(t, 50.0, enrollment.Progress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentFindByIDPassesThroughNoRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("FROM enrollments e WHERE e.id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRecordCompletionAddsItemAndRecomputesProgress(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM enrollments e WHERE e.id = \\$1 FOR UPDATE").
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).AddRow("enr-1", 1, "course-1", "stu-1", now, 0.0, nil, 0, now, now))
	mock.ExpectQuery("INSERT INTO enrollment_completions").
		WithArgs("enr-1", models.CompletionLesson, "lesson-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"item_id"}).AddRow("lesson-1"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM enrollment_completions").
		WithArgs("enr-1", "course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("UPDATE enrollments SET progress").
		WithArgs("enr-1", 50.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectQuery("SELECT kind, item_id FROM enrollment_completions").
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "item_id"}).AddRow("LESSON", "lesson-1"))
	mock.ExpectCommit()

	result, err := repo.RecordCompletion(context.Background(), RecordCompletionParams{
		EnrollmentID: "enr-1",
		Kind:         models.CompletionLesson,
		ItemID:       "lesson-1",
		TotalUnits:   2,
		Progress:     halfProgress,
	})
	require.NoError(t, err)
	assert.True(t, result.Added)
	assert.Zero(t, result.PreviousProgress)
	assert.Equal(t, 50.0, result.Enrollment.Progress)
	assert.Equal(t, 1, result.Enrollment.Version)
	assert.NotNil(t, result.Enrollment.LastAccessedAt)
	assert.Equal(t, []string{"lesson-1"}, result.Enrollment.CompletedLessons)
	assert.False(t, result.ReachedCompletion())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCompletionRepeatLeavesProgressUntouched(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).AddRow("enr-1", 1, "course-1", "stu-1", now, 50.0, now, 1, now, now))
	mock.ExpectQuery("INSERT INTO enrollment_completions").
		WillReturnRows(sqlmock.NewRows([]string{"item_id"}))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM enrollment_completions").
		WithArgs("enr-1", "course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT kind, item_id FROM enrollment_completions").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "item_id"}).AddRow("LESSON", "lesson-1"))
	mock.ExpectCommit()

	result, err := repo.RecordCompletion(context.Background(), RecordCompletionParams{
		EnrollmentID: "enr-1",
		Kind:         models.CompletionLesson,
		ItemID:       "lesson-1",
		TotalUnits:   2,
		Progress:     halfProgress,
	})
	require.NoError(t, err)
	assert.False(t, result.Added)
	assert.Equal(t, 50.0, result.Enrollment.Progress)
	assert.Equal(t, 1, result.Enrollment.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCompletionRepeatResyncsProgressAfterCourseShrinks(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// five of six units were done before the sixth lesson was removed from the course
	stale := halfProgress(5, 6)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).AddRow("enr-1", 1, "course-1", "stu-1", now, stale, now, 5, now, now))
	mock.ExpectQuery("INSERT INTO enrollment_completions").
		WillReturnRows(sqlmock.NewRows([]string{"item_id"}))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM enrollment_completions").
		WithArgs("enr-1", "course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("UPDATE enrollments SET progress = \\$2, updated_at = \\$3").
		WithArgs("enr-1", 100.0, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(6))
	mock.ExpectQuery("SELECT kind, item_id FROM enrollment_completions").
		WillReturnRows(sqlmock.NewRows([]string{"kind", "item_id"}).AddRow("LESSON", "lesson-1"))
	mock.ExpectCommit()

	result, err := repo.RecordCompletion(context.Background(), RecordCompletionParams{
		EnrollmentID: "enr-1",
		Kind:         models.CompletionLesson,
		ItemID:       "lesson-1",
		TotalUnits:   5,
		Progress:     halfProgress,
	})
	require.NoError(t, err)
	assert.False(t, result.Added)
	assert.Equal(t, 100.0, result.Enrollment.Progress)
	assert.Equal(t, 6, result.Enrollment.Version)
	assert.Equal(t, stale, result.PreviousProgress)
	assert.True(t, result.ReachedCompletion())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCompletionRollsBackOnUpdateFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).AddRow("enr-1", 1, "course-1", "stu-1", now, 0.0, nil, 0, now, now))
	mock.ExpectQuery("INSERT INTO enrollment_completions").
		WillReturnRows(sqlmock.NewRows([]string{"item_id"}).AddRow("quiz-1"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("UPDATE enrollments SET progress").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := repo.RecordCompletion(context.Background(), RecordCompletionParams{
		EnrollmentID: "enr-1",
		Kind:         models.CompletionQuiz,
		ItemID:       "quiz-1",
		TotalUnits:   1,
		Progress:     halfProgress,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCompletedWithoutCertificate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectQuery("(?s)WHERE e.progress >= 100\\s+AND NOT EXISTS.*ORDER BY e.certificate_attempted_at NULLS FIRST, e.updated_at").
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).AddRow("enr-9", 9, "course-1", "stu-2", now, 100.0, now, 4, now, now))

	enrollments, err := repo.ListCompletedWithoutCertificate(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, "enr-9", enrollments[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCertificateAttempt(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec("UPDATE enrollments SET certificate_attempted_at = \\$2 WHERE id = \\$1").
		WithArgs("enr-9", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkCertificateAttempt(context.Background(), "enr-9", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentCount(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("COUNT\\(\\*\\) FILTER").
		WillReturnRows(sqlmock.NewRows([]string{"total", "completed"}).AddRow(12, 5))

	total, completed, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.Equal(t, 5, completed)
}
