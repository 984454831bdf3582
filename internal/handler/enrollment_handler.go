package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnify-api/internal/dto"
	"github.com/noah-isme/learnify-api/internal/middleware"
	"github.com/noah-isme/learnify-api/internal/models"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
	"github.com/noah-isme/learnify-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, actorID string, role models.UserRole, req dto.EnrollRequest) (*models.Enrollment, error)
	MarkLessonComplete(ctx context.Context, actorID string, role models.UserRole, req dto.MarkLessonRequest) (*dto.CompletionResponse, error)
	MarkQuizComplete(ctx context.Context, actorID string, role models.UserRole, req dto.MarkQuizRequest) (*dto.CompletionResponse, error)
	GetEnrollment(ctx context.Context, actorID string, role models.UserRole, req dto.GetEnrollmentRequest) (*models.EnrollmentView, error)
	ListForStudent(ctx context.Context, actorID string, role models.UserRole, req dto.StudentRequest) ([]models.EnrollmentSummary, error)
}

// EnrollmentHandler exposes enrollment and progress endpoints.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler constructs an enrollment handler.
func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Enroll godoc
// @Summary Enroll a student in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.EnrollRequest true "Enrollment"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.EnrollRequest
	if !bindJSON(c, &req, "invalid enrollment payload") {
		return
	}
	enrollment, err := h.service.Enroll(c.Request.Context(), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"enrollment": enrollment})
}

// AddLesson godoc
// @Summary Mark a lesson complete
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.MarkLessonRequest true "Lesson completion"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /add-lesson [post]
func (h *EnrollmentHandler) AddLesson(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.MarkLessonRequest
	if !bindJSON(c, &req, "invalid lesson completion payload") {
		return
	}
	res, err := h.service.MarkLessonComplete(c.Request.Context(), claims.UserID, claims.Role, req)
	h.respondCompletion(c, res, err)
}

// AddQuiz godoc
// @Summary Mark a quiz complete
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.MarkQuizRequest true "Quiz completion"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /add-quiz [post]
func (h *EnrollmentHandler) AddQuiz(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.MarkQuizRequest
	if !bindJSON(c, &req, "invalid quiz completion payload") {
		return
	}
	res, err := h.service.MarkQuizComplete(c.Request.Context(), claims.UserID, claims.Role, req)
	h.respondCompletion(c, res, err)
}

// respondCompletion answers 200 even when issuance failed; the failure goes to meta.certificate_error.
func (h *EnrollmentHandler) respondCompletion(c *gin.Context, res *dto.CompletionResponse, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.CertificateError != nil {
		appErr := appErrors.FromError(res.CertificateError)
		middleware.SetMeta(c, "certificate_error", gin.H{"code": appErr.Code, "message": appErr.Message})
	}
	response.JSON(c, http.StatusOK, res, nil, middleware.ExtractMeta(c))
}

// GetEnrollment godoc
// @Summary Read an enrollment with its certificate
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.GetEnrollmentRequest true "Enrollment"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /get-enrollment [post]
func (h *EnrollmentHandler) GetEnrollment(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.GetEnrollmentRequest
	if !bindJSON(c, &req, "invalid enrollment payload") {
		return
	}
	view, err := h.service.GetEnrollment(c.Request.Context(), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// ListForStudent godoc
// @Summary Enrollments of a student
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.StudentRequest true "Student"
// @Success 200 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) ListForStudent(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.StudentRequest
	if !bindJSON(c, &req, "invalid student payload") {
		return
	}
	list, err := h.service.ListForStudent(c.Request.Context(), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"enrollments": list}, nil)
}
