package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Course is the root of the course tree. The certificate template fields are
// copied onto every certificate issued for the course.
type Course struct {
	ID                     string         `db:"id" json:"id"`
	CourseNo               int64          `db:"course_no" json:"course_no"`
	Title                  string         `db:"title" json:"title"`
	Description            string         `db:"description" json:"description"`
	TutorID                string         `db:"tutor_id" json:"tutor_id"`
	CertificateTitle       string         `db:"certificate_title" json:"certificate_title"`
	CertificateDescription string         `db:"certificate_description" json:"certificate_description"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at" json:"updated_at"`
	Modules                []CourseModule `db:"-" json:"modules,omitempty"`
}

// CourseModule groups lessons and quizzes.
type CourseModule struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Position    int       `db:"position" json:"position"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	Lessons     []Lesson  `db:"-" json:"lessons"`
	Quizzes     []Quiz    `db:"-" json:"quizzes"`
}

// Lesson is a countable unit made of topics.
type Lesson struct {
	ID          string    `db:"id" json:"id"`
	ModuleID    string    `db:"module_id" json:"module_id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Position    int       `db:"position" json:"position"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	Topics      []Topic   `db:"-" json:"topics"`
}

// Topic holds lesson content.
type Topic struct {
	ID               string         `db:"id" json:"id"`
	LessonID         string         `db:"lesson_id" json:"lesson_id"`
	Position         int            `db:"position" json:"position"`
	Title            string         `db:"title" json:"title"`
	Content          string         `db:"content" json:"content"`
	LearningOutcomes pq.StringArray `db:"learning_outcomes" json:"learning_outcomes"`
	Links            pq.StringArray `db:"links" json:"links"`
	Images           TopicImages    `db:"images" json:"images"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// TopicImage references an image kept by an external file store.
type TopicImage struct {
	Title    string `json:"title"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
}

// TopicImages is stored as a JSONB array.
type TopicImages []TopicImage

// Value implements driver.Valuer.
func (t TopicImages) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner.
func (t *TopicImages) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = TopicImages{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan topic images: unsupported type %T", src)
	}
	return json.Unmarshal(raw, t)
}

// Quiz is a countable unit made of questions.
type Quiz struct {
	ID        string         `db:"id" json:"id"`
	ModuleID  string         `db:"module_id" json:"module_id"`
	CourseID  string         `db:"course_id" json:"course_id"`
	Position  int            `db:"position" json:"position"`
	Title     string         `db:"title" json:"title"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	Questions []QuizQuestion `db:"-" json:"questions"`
}

// QuizQuestion is a single question of a quiz.
type QuizQuestion struct {
	ID            string         `db:"id" json:"id"`
	QuizID        string         `db:"quiz_id" json:"quiz_id"`
	Position      int            `db:"position" json:"position"`
	QuestionText  string         `db:"question_text" json:"question_text"`
	QuestionType  string         `db:"question_type" json:"question_type"`
	Options       pq.StringArray `db:"options" json:"options"`
	CorrectAnswer string         `db:"correct_answer" json:"correct_answer,omitempty"`
}

// CourseSummary is the catalog projection of a course.
type CourseSummary struct {
	ID          string    `db:"id" json:"id"`
	CourseNo    int64     `db:"course_no" json:"course_no"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	TutorID     string    `db:"tutor_id" json:"tutor_id"`
	TutorName   string    `db:"tutor_name" json:"tutor_name"`
	ModuleCount int       `db:"module_count" json:"module_count"`
	UnitCount   int       `db:"unit_count" json:"unit_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	TutorID  string
	Search   string
	Page     int
	PageSize int
}

// CourseUnits counts the countable units of a course.
type CourseUnits struct {
	Lessons int `db:"lessons" json:"lessons"`
	Quizzes int `db:"quizzes" json:"quizzes"`
}

// Total is the progress denominator.
func (u CourseUnits) Total() int {
	return u.Lessons + u.Quizzes
}

// UnitCount sums lessons and quizzes over an already loaded tree.
func (c *Course) UnitCount() CourseUnits {
	var units CourseUnits
	for _, m := range c.Modules {
		units.Lessons += len(m.Lessons)
		units.Quizzes += len(m.Quizzes)
	}
	return units
}
