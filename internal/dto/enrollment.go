package dto

import "github.com/noah-isme/learnify-api/internal/models"

// EnrollRequest enrolls a student in a course.
type EnrollRequest struct {
	StudentID string `json:"studentId" validate:"required,uuid"`
	CourseID  string `json:"courseId" validate:"required,uuid"`
}

// MarkLessonRequest marks a lesson complete. TotalLessonAndQuiz is accepted from
// older clients but the server derives the denominator itself.
type MarkLessonRequest struct {
	LessonID           string `json:"lessonId" validate:"required,uuid"`
	EnrollmentID       string `json:"enrollmentId" validate:"required,uuid"`
	TotalLessonAndQuiz int    `json:"totalLessonAndQuiz" validate:"gte=0"`
}

// MarkQuizRequest marks a quiz complete.
type MarkQuizRequest struct {
	QuizID             string `json:"quizId" validate:"required,uuid"`
	EnrollmentID       string `json:"enrollmentId" validate:"required,uuid"`
	TotalLessonAndQuiz int    `json:"totalLessonAndQuiz" validate:"gte=0"`
}

// CompletionCommand is the kind-agnostic form of the two mark requests.
type CompletionCommand struct {
	EnrollmentID   string                `validate:"required,uuid"`
	Kind           models.CompletionKind `validate:"required,oneof=LESSON QUIZ"`
	ItemID         string                `validate:"required,uuid"`
	TotalUnitsHint int
}

// Command converts the request.
func (r MarkLessonRequest) Command() CompletionCommand {
	return CompletionCommand{EnrollmentID: r.EnrollmentID, Kind: models.CompletionLesson, ItemID: r.LessonID, TotalUnitsHint: r.TotalLessonAndQuiz}
}

// Command converts the request.
func (r MarkQuizRequest) Command() CompletionCommand {
	return CompletionCommand{EnrollmentID: r.EnrollmentID, Kind: models.CompletionQuiz, ItemID: r.QuizID, TotalUnitsHint: r.TotalLessonAndQuiz}
}

// GetEnrollmentRequest reads one enrollment.
type GetEnrollmentRequest struct {
	EnrollmentID string `json:"enrollmentId" validate:"required,uuid"`
}

// StudentRequest scopes a list read to one student.
type StudentRequest struct {
	StudentID string `json:"studentId" validate:"required,uuid"`
}

// CompletionResponse is returned by add-lesson and add-quiz.
type CompletionResponse struct {
	Enrollment        *models.Enrollment  `json:"enrollment"`
	AlreadyCompleted  bool                `json:"already_completed"`
	CertificateStatus models.IssueStatus  `json:"certificate_status,omitempty"`
	Certificate       *models.Certificate `json:"certificate,omitempty"`
	// CertificateError is set when the completion was stored but issuance failed.
	CertificateError error `json:"-"`
}
