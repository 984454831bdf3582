package main

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/learnify-api/internal/handler"
	"github.com/noah-isme/learnify-api/internal/middleware"
	"github.com/noah-isme/learnify-api/internal/models"
)

type routeDeps struct {
	auth   middleware.TokenValidator
	audit  middleware.AuditRecorder
	logger *zap.Logger

	metrics      *handler.MetricsHandler
	authH        *handler.AuthHandler
	users        *handler.UserHandler
	courses      *handler.CourseHandler
	enrollments  *handler.EnrollmentHandler
	certificates *handler.CertificateHandler
	admin        *handler.AdminHandler
}

func registerRoutes(r *gin.Engine, prefix string, d routeDeps) {
	r.GET("/health", d.metrics.Health)
	r.GET("/ready", d.metrics.Ready)
	r.GET("/metrics", d.metrics.Prometheus)

	api := r.Group(prefix)

	auth := api.Group("/auth")
	auth.POST("/register", d.authH.Register)
	auth.POST("/login", d.authH.Login)

	// signed links carry their own authorization
	api.GET("/certificates/download/:token", d.certificates.Download)

	// catalog is browsable before sign-in
	api.GET("/courses", d.courses.List)
	api.GET("/courses/:id", d.courses.Get)

	secured := api.Group("")
	secured.Use(middleware.JWT(d.auth))

	secured.GET("/auth/me", d.authH.Me)
	secured.PUT("/users/me", d.users.UpdateMe)

	tutorOrAdmin := middleware.RequireRoles(models.RoleTutor, models.RoleAdmin)
	secured.GET("/courses/mine", middleware.RequireRoles(models.RoleTutor), d.courses.Mine)
	secured.POST("/courses", middleware.RequireRoles(models.RoleTutor),
		middleware.Audit(d.audit, d.logger, models.AuditActionCourseCreate, "courses"), d.courses.Create)
	secured.PUT("/courses/:id", tutorOrAdmin,
		middleware.Audit(d.audit, d.logger, models.AuditActionCourseUpdate, "courses"), d.courses.Update)
	secured.DELETE("/courses/:id", tutorOrAdmin,
		middleware.Audit(d.audit, d.logger, models.AuditActionCourseDelete, "courses"), d.courses.Delete)

	secured.POST("/enroll", d.enrollments.Enroll)
	secured.POST("/add-lesson", d.enrollments.AddLesson)
	secured.POST("/add-quiz", d.enrollments.AddQuiz)
	secured.POST("/get-enrollment", d.enrollments.GetEnrollment)
	secured.POST("/enrollments", d.enrollments.ListForStudent)

	secured.POST("/certificates", d.certificates.ListForStudent)
	secured.POST("/certificates/issue", d.certificates.Issue)
	secured.GET("/certificates/:id", d.certificates.Get)
	secured.GET("/certificates/:id/pdf", d.certificates.PDF)
	secured.POST("/certificates/:id/link", d.certificates.Link)

	admin := secured.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/students", d.admin.ListStudents)
	admin.GET("/tutors", d.admin.ListTutors)
	admin.GET("/admins", d.admin.ListAdmins)
	admin.GET("/courses", d.admin.ListCourses)
	admin.GET("/enrollments", d.admin.ListEnrollments)
	admin.GET("/certificates", d.admin.ListCertificates)
	admin.POST("/delete-batch", d.admin.DeleteBatch)
	admin.GET("/export/:resource", d.admin.Export)
	admin.GET("/stats", d.admin.Stats)
}
