package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/learnify-api/internal/dto"
	"github.com/noah-isme/learnify-api/internal/handler"
	"github.com/noah-isme/learnify-api/internal/models"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
)

type rejectingValidator struct{}

func (rejectingValidator) ValidateToken(string) (*models.JWTClaims, error) {
	return nil, appErrors.ErrUnauthorized
}

type catalogStub struct{}

func (catalogStub) Create(context.Context, string, dto.CourseRequest) (*models.Course, error) {
	return &models.Course{}, nil
}

func (catalogStub) Update(context.Context, string, models.UserRole, string, dto.CourseRequest) (*models.Course, error) {
	return &models.Course{}, nil
}

func (catalogStub) Get(_ context.Context, id string) (*models.Course, error) {
	return &models.Course{ID: id}, nil
}

func (catalogStub) List(_ context.Context, filter models.CourseFilter) ([]models.CourseSummary, *models.Pagination, error) {
	return []models.CourseSummary{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (catalogStub) Delete(context.Context, string, models.UserRole, string) error {
	return nil
}

func TestRoutesCatalogIsPublic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	registerRoutes(r, "/api/v1", routeDeps{
		auth:    rejectingValidator{},
		courses: handler.NewCourseHandler(catalogStub{}),
	})

	cases := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/v1/courses", http.StatusOK},
		{http.MethodGet, "/api/v1/courses/c-1", http.StatusOK},
		{http.MethodGet, "/api/v1/courses/mine", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/courses", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/enroll", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.status, rec.Code, "%s %s", tc.method, tc.path)
	}
}
