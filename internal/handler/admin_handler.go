package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnify-api/internal/dto"
	"github.com/noah-isme/learnify-api/internal/models"
	"github.com/noah-isme/learnify-api/internal/service"
	"github.com/noah-isme/learnify-api/pkg/response"
)

type adminService interface {
	ListUsers(ctx context.Context, role models.UserRole, q dto.ListQuery) ([]models.User, *models.Pagination, error)
	ListCourses(ctx context.Context, q dto.ListQuery) ([]models.CourseSummary, *models.Pagination, error)
	ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentSummary, *models.Pagination, error)
	ListCertificates(ctx context.Context, filter models.CertificateFilter) ([]models.CertificateDetail, *models.Pagination, error)
	DeleteBatch(ctx context.Context, actorID string, req dto.BatchDeleteRequest, meta models.LoginRequest) (*dto.BatchDeleteResponse, error)
	Stats(ctx context.Context) (*models.PlatformStats, error)
	Export(ctx context.Context, resource, format string) (*service.ExportFile, error)
}

// AdminHandler exposes administration endpoints.
type AdminHandler struct {
	service adminService
}

// NewAdminHandler constructs an admin handler.
func NewAdminHandler(svc adminService) *AdminHandler {
	return &AdminHandler{service: svc}
}

// ListStudents godoc
// @Summary List students
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param search query string false "Name or email search"
// @Success 200 {object} response.Envelope
// @Router /admin/students [get]
func (h *AdminHandler) ListStudents(c *gin.Context) {
	h.listUsers(c, models.RoleStudent)
}

// ListTutors godoc
// @Summary List tutors
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/tutors [get]
func (h *AdminHandler) ListTutors(c *gin.Context) {
	h.listUsers(c, models.RoleTutor)
}

// ListAdmins godoc
// @Summary List admins
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/admins [get]
func (h *AdminHandler) ListAdmins(c *gin.Context) {
	h.listUsers(c, models.RoleAdmin)
}

func (h *AdminHandler) listUsers(c *gin.Context, role models.UserRole) {
	users, pagination, err := h.service.ListUsers(c.Request.Context(), role, parseListQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// ListCourses godoc
// @Summary List courses
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/courses [get]
func (h *AdminHandler) ListCourses(c *gin.Context) {
	courses, pagination, err := h.service.ListCourses(c.Request.Context(), parseListQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// ListEnrollments godoc
// @Summary List enrollments
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param student_id query string false "Student"
// @Param course_id query string false "Course"
// @Success 200 {object} response.Envelope
// @Router /admin/enrollments [get]
func (h *AdminHandler) ListEnrollments(c *gin.Context) {
	q := parseListQuery(c)
	filter := models.EnrollmentFilter{
		StudentID: strings.TrimSpace(c.Query("student_id")),
		CourseID:  strings.TrimSpace(c.Query("course_id")),
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
	list, pagination, err := h.service.ListEnrollments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, pagination)
}

// ListCertificates godoc
// @Summary List certificates
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param student_id query string false "Student"
// @Param course_id query string false "Course"
// @Success 200 {object} response.Envelope
// @Router /admin/certificates [get]
func (h *AdminHandler) ListCertificates(c *gin.Context) {
	q := parseListQuery(c)
	filter := models.CertificateFilter{
		StudentID: strings.TrimSpace(c.Query("student_id")),
		CourseID:  strings.TrimSpace(c.Query("course_id")),
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
	list, pagination, err := h.service.ListCertificates(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, pagination)
}

// DeleteBatch godoc
// @Summary Delete records of one type
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.BatchDeleteRequest true "Records"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/delete-batch [post]
func (h *AdminHandler) DeleteBatch(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.BatchDeleteRequest
	if !bindJSON(c, &req, "invalid delete payload") {
		return
	}
	res, err := h.service.DeleteBatch(c.Request.Context(), claims.UserID, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Stats godoc
// @Summary Platform statistics
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Export godoc
// @Summary Export enrollments or certificates
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param resource path string true "enrollments or certificates"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /admin/export/{resource} [get]
func (h *AdminHandler) Export(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", service.ExportFormatCSV))
	file, err := h.service.Export(c.Request.Context(), c.Param("resource"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func parseListQuery(c *gin.Context) dto.ListQuery {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return dto.ListQuery{Page: page, PageSize: size, Search: strings.TrimSpace(c.Query("search"))}
}
