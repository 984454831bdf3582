package dto

import "github.com/noah-isme/learnify-api/internal/models"

// CourseRequest creates or replaces a course with its whole tree.
// Ids are optional; when they match an existing node of the same course the node keeps its id.
type CourseRequest struct {
	Title       string                     `json:"title" validate:"required,max=200"`
	Description string                     `json:"description" validate:"required"`
	Certificate CertificateTemplateRequest `json:"certificate" validate:"required"`
	Modules     []ModuleRequest            `json:"modules" validate:"dive"`
}

// CertificateTemplateRequest holds the fields copied onto issued certificates.
type CertificateTemplateRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required"`
}

// ModuleRequest describes one module.
type ModuleRequest struct {
	ID          string          `json:"id,omitempty" validate:"omitempty,uuid"`
	Title       string          `json:"title" validate:"required"`
	Description string          `json:"description" validate:"required"`
	Lessons     []LessonRequest `json:"lessons" validate:"dive"`
	Quizzes     []QuizRequest   `json:"quizzes" validate:"dive"`
}

// LessonRequest describes one lesson.
type LessonRequest struct {
	ID          string         `json:"id,omitempty" validate:"omitempty,uuid"`
	Title       string         `json:"title" validate:"required"`
	Description string         `json:"description"`
	Topics      []TopicRequest `json:"topics" validate:"dive"`
}

// TopicRequest describes one topic.
type TopicRequest struct {
	Title            string              `json:"title" validate:"required"`
	Content          string              `json:"content"`
	LearningOutcomes []string            `json:"learningOutcomes"`
	Images           []models.TopicImage `json:"images"`
	Links            []string            `json:"links" validate:"dive,url"`
}

// QuizRequest describes one quiz.
type QuizRequest struct {
	ID        string            `json:"id,omitempty" validate:"omitempty,uuid"`
	Title     string            `json:"title" validate:"required"`
	Questions []QuestionRequest `json:"questions" validate:"dive"`
}

// QuestionRequest describes one quiz question.
type QuestionRequest struct {
	QuestionText  string   `json:"questionText" validate:"required"`
	QuestionType  string   `json:"questionType" validate:"required,oneof=single multiple text boolean"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}
