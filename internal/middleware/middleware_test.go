package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnify-api/internal/models"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator struct {
	claims *models.JWTClaims
	err    error
	seen   string
}

func (s *stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	s.seen = token
	return s.claims, s.err
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (r *recordingAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return r.err
}

type recordingObserver struct {
	method string
	path   string
	status int
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	r.method, r.path, r.status = method, path, status
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *appErrors.Error {
	t.Helper()
	var body struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	validator := &stubValidator{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}}
	router := gin.New()
	router.GET("/me", JWT(validator), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, header := range []string{"", "Token abc", "Bearer ", "Bearer"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.Equal(t, appErrors.ErrUnauthorized.Code, decodeError(t, rec).Code)
	}
	assert.Empty(t, validator.seen)
}

func TestJWTStoresClaims(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleTutor}
	validator := &stubValidator{claims: claims}
	router := gin.New()
	router.GET("/me", JWT(validator), func(c *gin.Context) {
		got, ok := CurrentClaims(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"user": got.UserID})
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer signed.token.value")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "signed.token.value", validator.seen)
	assert.JSONEq(t, `{"user":"u1"}`, rec.Body.String())
}

func TestJWTPropagatesValidatorError(t *testing.T) {
	validator := &stubValidator{err: appErrors.Clone(appErrors.ErrUnauthorized, "token expired")}
	router := gin.New()
	router.GET("/me", JWT(validator), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer x")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token expired", decodeError(t, rec).Message)
}

func TestRequireRoles(t *testing.T) {
	withClaims := func(role models.UserRole) gin.HandlerFunc {
		return func(c *gin.Context) {
			if role != "" {
				c.Set(ContextUserKey, &models.JWTClaims{UserID: "u1", Role: role})
			}
			c.Next()
		}
	}

	cases := []struct {
		name   string
		role   models.UserRole
		status int
	}{
		{"allowed", models.RoleAdmin, http.StatusOK},
		{"second allowed role", models.RoleTutor, http.StatusOK},
		{"forbidden", models.RoleStudent, http.StatusForbidden},
		{"anonymous", "", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/courses", withClaims(tc.role), RequireRoles(models.RoleAdmin, models.RoleTutor), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses", nil))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	recorder := &recordingAudit{}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "tutor-1", Role: models.RoleTutor})
		c.Next()
	})
	router.PUT("/courses/:id", Audit(recorder, nil, models.AuditActionCourseUpdate, "courses"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.DELETE("/courses/:id", Audit(recorder, nil, models.AuditActionCourseDelete, "courses"), func(c *gin.Context) {
		c.Status(http.StatusForbidden)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/courses/c-1", nil)
	req.Header.Set("User-Agent", "go-test")
	router.ServeHTTP(rec, req)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/courses/c-1", nil))

	require.Len(t, recorder.logs, 1)
	entry := recorder.logs[0]
	assert.Equal(t, models.AuditActionCourseUpdate, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "tutor-1", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "c-1", *entry.ResourceID)
	assert.Equal(t, "go-test", entry.UserAgent)
	assert.Contains(t, string(entry.NewValues), `"/courses/:id"`)
}

func TestAuditFailureDoesNotAffectResponse(t *testing.T) {
	recorder := &recordingAudit{err: errors.New("db down")}
	router := gin.New()
	router.POST("/courses", Audit(recorder, nil, models.AuditActionCourseCreate, "courses"), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/courses", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, recorder.logs, 1)
	assert.Nil(t, recorder.logs[0].UserID)
	assert.Nil(t, recorder.logs[0].ResourceID)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	observer := &recordingObserver{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/certificates/:id", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/certificates/abc", nil))
	assert.Equal(t, "/certificates/:id", observer.path)
	assert.Equal(t, http.StatusAccepted, observer.status)
	assert.Equal(t, http.MethodGet, observer.method)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, "unmatched", observer.path)
	assert.Equal(t, http.StatusNotFound, observer.status)
}

func TestResponseMeta(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	assert.Nil(t, ExtractMeta(c))

	SetMeta(c, "certificate_error", "boom")
	assert.Equal(t, "boom", ExtractMeta(c)["certificate_error"])

	var captured map[string]interface{}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Next()
		captured = ExtractMeta(c)
	})
	router.Use(WithResponseMeta())
	router.GET("/x", func(c *gin.Context) {
		SetMeta(c, "cache_hit", true)
		c.Status(http.StatusOK)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	require.NotNil(t, captured)
	assert.Equal(t, true, captured["cache_hit"])
	assert.Contains(t, captured, "processing_time_ms")
}
