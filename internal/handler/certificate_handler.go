package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnify-api/internal/dto"
	"github.com/noah-isme/learnify-api/internal/models"
	"github.com/noah-isme/learnify-api/internal/service"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
	"github.com/noah-isme/learnify-api/pkg/response"
)

const pdfContentType = "application/pdf"

type certificateService interface {
	Claim(ctx context.Context, actorID string, role models.UserRole, req dto.IssueCertificateRequest) (*models.IssueResult, error)
	ListForStudent(ctx context.Context, actorID string, role models.UserRole, req dto.StudentRequest) ([]models.CertificateDetail, error)
	Get(ctx context.Context, actorID string, role models.UserRole, id string) (*models.CertificateDetail, error)
}

type certificateDocuments interface {
	Render(ctx context.Context, actorID string, role models.UserRole, certificateID string) (*service.CertificateDocument, error)
	Link(ctx context.Context, actorID string, role models.UserRole, certificateID string) (*dto.CertificateLinkResponse, error)
	Open(ctx context.Context, token string) (*os.File, string, error)
}

// CertificateHandler exposes certificate reads, claims and documents.
type CertificateHandler struct {
	service   certificateService
	documents certificateDocuments
}

// NewCertificateHandler constructs a certificate handler.
func NewCertificateHandler(svc certificateService, documents certificateDocuments) *CertificateHandler {
	return &CertificateHandler{service: svc, documents: documents}
}

// ListForStudent godoc
// @Summary Certificates of a student
// @Tags Certificates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.StudentRequest true "Student"
// @Success 200 {object} response.Envelope
// @Router /certificates [post]
func (h *CertificateHandler) ListForStudent(c *gin.Context) {
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
	response.JSON(c, http.StatusOK, gin.H{"certificates": list}, nil)
}

// Get godoc
// @Summary Certificate detail
// @Tags Certificates
// @Produce json
// @Security BearerAuth
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/{id} [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Issue godoc
// @Summary Claim the certificate of a completed enrollment
// @Tags Certificates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.IssueCertificateRequest true "Enrollment"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Router /certificates/issue [post]
func (h *CertificateHandler) Issue(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.IssueCertificateRequest
	if !bindJSON(c, &req, "invalid issue payload") {
		return
	}
	res, err := h.service.Claim(c.Request.Context(), claims.UserID, claims.Role, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if res.Status == models.IssueStatusIssued {
		status = http.StatusCreated
	}
	response.JSON(c, status, res, nil)
}

// PDF godoc
// @Summary Render certificate PDF
// @Tags Certificates
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Certificate ID"
// @Success 200 {file} file
// @Router /certificates/{id}/pdf [get]
func (h *CertificateHandler) PDF(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	doc, err := h.documents.Render(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Filename))
	c.Data(http.StatusOK, pdfContentType, doc.Data)
}

// Link godoc
// @Summary Signed download link
// @Tags Certificates
// @Produce json
// @Security BearerAuth
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Router /certificates/{id}/link [post]
func (h *CertificateHandler) Link(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	link, err := h.documents.Link(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download certificate through a signed link
// @Tags Certificates
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /certificates/download/{token} [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	file, filename, err := h.documents.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read certificate file"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), pdfContentType, file, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
	})
}
