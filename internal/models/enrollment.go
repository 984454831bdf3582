package models

import "time"

// CompletionKind distinguishes the two countable unit types.
type CompletionKind string

const (
	CompletionLesson CompletionKind = "LESSON"
	CompletionQuiz   CompletionKind = "QUIZ"
)

// ProgressComplete is the progress value at which a certificate is due.
const ProgressComplete = 100.0

// Enrollment links one student to one course.
type Enrollment struct {
	ID               string     `db:"id" json:"id"`
	EnrollmentNo     int64      `db:"enrollment_no" json:"enrollment_no"`
	CourseID         string     `db:"course_id" json:"course_id"`
	StudentID        string     `db:"student_id" json:"student_id"`
	EnrolledAt       time.Time  `db:"enrolled_at" json:"enrolled_at"`
	Progress         float64    `db:"progress" json:"progress"`
	LastAccessedAt   *time.Time `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
	Version          int        `db:"version" json:"version"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	CompletedLessons []string   `db:"-" json:"completed_lessons"`
	CompletedQuizzes []string   `db:"-" json:"completed_quizzes"`
}

// IsComplete reports whether the enrollment reached full progress.
func (e *Enrollment) IsComplete() bool {
	return e != nil && e.Progress >= ProgressComplete
}

// CompletedCount is the numerator of the progress calculation.
func (e *Enrollment) CompletedCount() int {
	return len(e.CompletedLessons) + len(e.CompletedQuizzes)
}

// HasCompleted reports whether the item is already in the relevant completion set.
func (e *Enrollment) HasCompleted(kind CompletionKind, itemID string) bool {
	set := e.CompletedLessons
	if kind == CompletionQuiz {
		set = e.CompletedQuizzes
	}
	for _, id := range set {
		if id == itemID {
			return true
		}
	}
	return false
}

// EnrollmentSummary is an enrollment joined with its course for list views.
type EnrollmentSummary struct {
	ID             string     `db:"id" json:"id"`
	EnrollmentNo   int64      `db:"enrollment_no" json:"enrollment_no"`
	CourseID       string     `db:"course_id" json:"course_id"`
	CourseTitle    string     `db:"course_title" json:"course_title"`
	StudentID      string     `db:"student_id" json:"student_id"`
	StudentName    string     `db:"student_name" json:"student_name"`
	Progress       float64    `db:"progress" json:"progress"`
	EnrolledAt     time.Time  `db:"enrolled_at" json:"enrolled_at"`
	LastAccessedAt *time.Time `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
	CertificateID  *string    `db:"certificate_id" json:"certificate_id,omitempty"`
}

// EnrollmentFilter narrows enrollment listings.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Page      int
	PageSize  int
}

// CompletionResult is the outcome of recording one completion.
type CompletionResult struct {
	Enrollment       *Enrollment
	Added            bool
	PreviousProgress float64
}

// ReachedCompletion reports whether this call moved progress to 100, either through a new
// completion or a recount after the course lost units.
func (r *CompletionResult) ReachedCompletion() bool {
	return r != nil && r.PreviousProgress < ProgressComplete && r.Enrollment.IsComplete()
}

// EnrollmentView is the read model returned by the enrollment query path.
type EnrollmentView struct {
	Enrollment  *Enrollment  `json:"enrollment"`
	Certificate *Certificate `json:"certificate,omitempty"`
}
