package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnify-api/internal/middleware"
	"github.com/noah-isme/learnify-api/internal/models"
)

const (
	studentID = "0b1c6a8e-0c53-4c3f-9a57-1f0d8d1d0a01"
	tutorID   = "0b1c6a8e-0c53-4c3f-9a57-1f0d8d1d0a02"
	adminID   = "0b1c6a8e-0c53-4c3f-9a57-1f0d8d1d0a03"
	otherID   = "0b1c6a8e-0c53-4c3f-9a57-1f0d8d1d0a04"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *errorBody             `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// newContext builds a test context with an optional JSON body and authenticated caller.
func newContext(method, target string, body interface{}, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	var reader *bytes.Reader
	if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

func asStudent() *models.JWTClaims {
	return &models.JWTClaims{UserID: studentID, Role: models.RoleStudent}
}

func asTutor() *models.JWTClaims {
	return &models.JWTClaims{UserID: tutorID, Role: models.RoleTutor}
}

func asAdmin() *models.JWTClaims {
	return &models.JWTClaims{UserID: adminID, Role: models.RoleAdmin}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodeData(t *testing.T, env responseEnvelope, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dest))
}
