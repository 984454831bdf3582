package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/learnify-api/internal/models"
)

const courseColumns = `id, course_no, title, description, tutor_id, certificate_title, certificate_description, created_at, updated_at`

const courseSummarySelect = `SELECT c.id, c.course_no, c.title, c.description, c.tutor_id, u.full_name AS tutor_name,
	(SELECT COUNT(*) FROM course_modules m WHERE m.course_id = c.id) AS module_count,
	(SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id) + (SELECT COUNT(*) FROM quizzes q WHERE q.course_id = c.id) AS unit_count,
	c.created_at
FROM courses c
JOIN users u ON u.id = c.tutor_id`

// CourseRepository persists courses and their module tree.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create inserts the course and its full tree in one transaction.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create course tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const query = `INSERT INTO courses (id, title, description, tutor_id, certificate_title, certificate_description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
RETURNING course_no`
	if err := tx.QueryRowxContext(ctx, query, course.ID, course.Title, course.Description, course.TutorID,
		course.CertificateTitle, course.CertificateDescription, now).Scan(&course.CourseNo); err != nil {
		if isForeignKeyViolation(err) {
			return ErrMissingReference
		}
		return fmt.Errorf("create course: %w", err)
	}

	if err := insertTree(ctx, tx, course, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create course: %w", err)
	}
	return nil
}

// ReplaceTree updates the course header and swaps its module subtree. Other courses are untouched.
func (r *CourseRepository) ReplaceTree(ctx context.Context, course *models.Course) error {
	now := time.Now().UTC()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace course tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const update = `UPDATE courses SET title = $2, description = $3, certificate_title = $4, certificate_description = $5, updated_at = $6
WHERE id = $1
RETURNING course_no, tutor_id, created_at`
	if err := tx.QueryRowxContext(ctx, update, course.ID, course.Title, course.Description,
		course.CertificateTitle, course.CertificateDescription, now).Scan(&course.CourseNo, &course.TutorID, &course.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("update course: %w", err)
	}
	course.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, `DELETE FROM course_modules WHERE course_id = $1`, course.ID); err != nil {
		return fmt.Errorf("clear course modules: %w", err)
	}
	if err := insertTree(ctx, tx, course, now); err != nil {
		return err
	}
	if err := resyncCourseProgress(ctx, tx, course.ID, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace course: %w", err)
	}
	return nil
}

// recomputes stored progress against the edited tree; must match the service-side formula.
const resyncProgressQuery = `WITH units AS (
	SELECT (SELECT COUNT(*) FROM lessons WHERE course_id = $1) + (SELECT COUNT(*) FROM quizzes WHERE course_id = $1) AS total
), fresh AS (
	SELECT e.id,
		CASE WHEN u.total <= 0 THEN 0::double precision
		ELSE LEAST(100, COUNT(ec.item_id)::double precision / u.total::double precision * 100) END AS progress
	FROM enrollments e
	CROSS JOIN units u
	LEFT JOIN enrollment_completions ec ON ec.enrollment_id = e.id AND (
		(ec.kind = 'LESSON' AND EXISTS (SELECT 1 FROM lessons l WHERE l.id = ec.item_id AND l.course_id = $1))
		OR (ec.kind = 'QUIZ' AND EXISTS (SELECT 1 FROM quizzes q WHERE q.id = ec.item_id AND q.course_id = $1))
	)
	WHERE e.course_id = $1
	GROUP BY e.id, u.total
)
UPDATE enrollments e SET progress = fresh.progress, updated_at = $2, version = e.version + 1
FROM fresh
WHERE e.id = fresh.id AND e.progress <> fresh.progress`

// resyncCourseProgress locks the course's enrollments first so the recount sees every
// completion committed before the lock was taken.
func resyncCourseProgress(ctx context.Context, tx *sqlx.Tx, courseID string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `SELECT id FROM enrollments WHERE course_id = $1 FOR UPDATE`, courseID); err != nil {
		return fmt.Errorf("lock course enrollments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, resyncProgressQuery, courseID, now); err != nil {
		return fmt.Errorf("resync course progress: %w", err)
	}
	return nil
}

func insertTree(ctx context.Context, tx *sqlx.Tx, course *models.Course, now time.Time) error {
	for mi := range course.Modules {
		module := &course.Modules[mi]
		if module.ID == "" {
			module.ID = uuid.NewString()
		}
		module.CourseID = course.ID
		module.Position = mi
		module.CreatedAt = now
		const moduleQuery = `INSERT INTO course_modules (id, course_id, position, title, description, created_at) VALUES (:id, :course_id, :position, :title, :description, :created_at)`
		if _, err := tx.NamedExecContext(ctx, moduleQuery, module); err != nil {
			return fmt.Errorf("insert course module: %w", err)
		}

		for li := range module.Lessons {
			lesson := &module.Lessons[li]
			if lesson.ID == "" {
				lesson.ID = uuid.NewString()
			}
			lesson.ModuleID = module.ID
			lesson.CourseID = course.ID
			lesson.Position = li
			lesson.CreatedAt = now
			const lessonQuery = `INSERT INTO lessons (id, module_id, course_id, position, title, description, created_at) VALUES (:id, :module_id, :course_id, :position, :title, :description, :created_at)`
			if _, err := tx.NamedExecContext(ctx, lessonQuery, lesson); err != nil {
				return fmt.Errorf("insert lesson: %w", err)
			}

			for ti := range lesson.Topics {
				topic := &lesson.Topics[ti]
				if topic.ID == "" {
					topic.ID = uuid.NewString()
				}
				topic.LessonID = lesson.ID
				topic.Position = ti
				topic.CreatedAt = now
				if topic.LearningOutcomes == nil {
					topic.LearningOutcomes = pq.StringArray{}
				}
				if topic.Links == nil {
					topic.Links = pq.StringArray{}
				}
				const topicQuery = `INSERT INTO topics (id, lesson_id, position, title, content, learning_outcomes, links, images, created_at) VALUES (:id, :lesson_id, :position, :title, :content, :learning_outcomes, :links, :images, :created_at)`
				if _, err := tx.NamedExecContext(ctx, topicQuery, topic); err != nil {
					return fmt.Errorf("insert topic: %w", err)
				}
			}
		}

		for qi := range module.Quizzes {
			quiz := &module.Quizzes[qi]
			if quiz.ID == "" {
				quiz.ID = uuid.NewString()
			}
			quiz.ModuleID = module.ID
			quiz.CourseID = course.ID
			quiz.Position = qi
			quiz.CreatedAt = now
			const quizQuery = `INSERT INTO quizzes (id, module_id, course_id, position, title, created_at) VALUES (:id, :module_id, :course_id, :position, :title, :created_at)`
			if _, err := tx.NamedExecContext(ctx, quizQuery, quiz); err != nil {
				return fmt.Errorf("insert quiz: %w", err)
			}

			for qqi := range quiz.Questions {
				question := &quiz.Questions[qqi]
				if question.ID == "" {
					question.ID = uuid.NewString()
				}
				question.QuizID = quiz.ID
				question.Position = qqi
				if question.Options == nil {
					question.Options = pq.StringArray{}
				}
				const questionQuery = `INSERT INTO quiz_questions (id, quiz_id, position, question_text, question_type, options, correct_answer) VALUES (:id, :quiz_id, :position, :question_text, :question_type, :options, :correct_answer)`
				if _, err := tx.NamedExecContext(ctx, questionQuery, question); err != nil {
					return fmt.Errorf("insert quiz question: %w", err)
				}
			}
		}
	}
	return nil
}

// FindByID returns the course header without its tree.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// LoadTree returns the course with modules, lessons, topics, quizzes and questions in position order.
func (r *CourseRepository) LoadTree(ctx context.Context, id string) (*models.Course, error) {
	course, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var modules []models.CourseModule
	if err := r.db.SelectContext(ctx, &modules, `SELECT id, course_id, position, title, description, created_at FROM course_modules WHERE course_id = $1 ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("load course modules: %w", err)
	}
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, `SELECT id, module_id, course_id, position, title, description, created_at FROM lessons WHERE course_id = $1 ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("load lessons: %w", err)
	}
	var topics []models.Topic
	if err := r.db.SelectContext(ctx, &topics, `SELECT t.id, t.lesson_id, t.position, t.title, t.content, t.learning_outcomes, t.links, t.images, t.created_at FROM topics t JOIN lessons l ON l.id = t.lesson_id WHERE l.course_id = $1 ORDER BY t.position`, id); err != nil {
		return nil, fmt.Errorf("load topics: %w", err)
	}
	var quizzes []models.Quiz
	if err := r.db.SelectContext(ctx, &quizzes, `SELECT id, module_id, course_id, position, title, created_at FROM quizzes WHERE course_id = $1 ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("load quizzes: %w", err)
	}
	var questions []models.QuizQuestion
	if err := r.db.SelectContext(ctx, &questions, `SELECT qq.id, qq.quiz_id, qq.position, qq.question_text, qq.question_type, qq.options, qq.correct_answer FROM quiz_questions qq JOIN quizzes q ON q.id = qq.quiz_id WHERE q.course_id = $1 ORDER BY qq.position`, id); err != nil {
		return nil, fmt.Errorf("load quiz questions: %w", err)
	}

	topicsByLesson := make(map[string][]models.Topic)
	for _, t := range topics {
		topicsByLesson[t.LessonID] = append(topicsByLesson[t.LessonID], t)
	}
	questionsByQuiz := make(map[string][]models.QuizQuestion)
	for _, q := range questions {
		questionsByQuiz[q.QuizID] = append(questionsByQuiz[q.QuizID], q)
	}
	lessonsByModule := make(map[string][]models.Lesson)
	for _, l := range lessons {
		l.Topics = topicsByLesson[l.ID]
		if l.Topics == nil {
			l.Topics = []models.Topic{}
		}
		lessonsByModule[l.ModuleID] = append(lessonsByModule[l.ModuleID], l)
	}
	quizzesByModule := make(map[string][]models.Quiz)
	for _, q := range quizzes {
		q.Questions = questionsByQuiz[q.ID]
		if q.Questions == nil {
			q.Questions = []models.QuizQuestion{}
		}
		quizzesByModule[q.ModuleID] = append(quizzesByModule[q.ModuleID], q)
	}
	for i := range modules {
		modules[i].Lessons = lessonsByModule[modules[i].ID]
		if modules[i].Lessons == nil {
			modules[i].Lessons = []models.Lesson{}
		}
		modules[i].Quizzes = quizzesByModule[modules[i].ID]
		if modules[i].Quizzes == nil {
			modules[i].Quizzes = []models.Quiz{}
		}
	}
	course.Modules = modules
	if course.Modules == nil {
		course.Modules = []models.CourseModule{}
	}
	return course, nil
}

// List returns catalog summaries with a total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error) {
	var conditions []string
	var args []interface{}
	if filter.TutorID != "" {
		args = append(args, filter.TutorID)
		conditions = append(conditions, fmt.Sprintf("c.tutor_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.title) LIKE $%d OR LOWER(c.description) LIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s%s ORDER BY c.created_at DESC LIMIT %d OFFSET %d", courseSummarySelect, where, size, offsetFor(page, size))

	var courses []models.CourseSummary
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM courses c`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Delete removes a course and everything that cascades from it.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete course rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteBatch removes courses by id.
func (r *CourseRepository) DeleteBatch(ctx context.Context, ids []string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete courses: %w", err)
	}
	return res.RowsAffected()
}

// CountUnits returns how many lessons and quizzes the course currently holds.
func (r *CourseRepository) CountUnits(ctx context.Context, courseID string) (models.CourseUnits, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM lessons WHERE course_id = $1) AS lessons,
	(SELECT COUNT(*) FROM quizzes WHERE course_id = $1) AS quizzes`
	var units models.CourseUnits
	if err := r.db.GetContext(ctx, &units, query, courseID); err != nil {
		return models.CourseUnits{}, fmt.Errorf("count course units: %w", err)
	}
	return units, nil
}

// HasUnit reports whether the lesson or quiz belongs to the course.
func (r *CourseRepository) HasUnit(ctx context.Context, courseID string, kind models.CompletionKind, itemID string) (bool, error) {
	table := "lessons"
	if kind == models.CompletionQuiz {
		table = "quizzes"
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND course_id = $2)`, table)
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, itemID, courseID); err != nil {
		return false, fmt.Errorf("check course unit: %w", err)
	}
	return exists, nil
}

// Count returns the number of courses.
func (r *CourseRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM courses`); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return total, nil
}
