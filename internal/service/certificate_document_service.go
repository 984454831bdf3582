package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/learnify-api/internal/dto"
	"github.com/noah-isme/learnify-api/internal/models"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
	"github.com/noah-isme/learnify-api/pkg/export"
	"github.com/noah-isme/learnify-api/pkg/jobs"
	"github.com/noah-isme/learnify-api/pkg/storage"
)

// JobTypeCertificateRender identifies render jobs on the background queue.
const JobTypeCertificateRender = "certificate.render"

type certificateDetailReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error)
}

type certificateRenderer interface {
	Render(doc export.CertificateDocument) ([]byte, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	Exists(name string) (bool, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type urlSigner interface {
	Generate(subject, path string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (*storage.SignedToken, error)
}

type renderQueue interface {
	TryEnqueue(job jobs.Job) error
}

// CertificateDocumentConfig tunes document links and retention.
type CertificateDocumentConfig struct {
	PublicURL string
	APIPrefix string
	FileTTL   time.Duration
}

// CertificateDocument is a rendered certificate ready to be sent.
type CertificateDocument struct {
	Filename string
	Data     []byte
}

// CertificateDocumentService renders certificate PDFs, stores them and hands out signed download links.
type CertificateDocumentService struct {
	certs    certificateDetailReader
	renderer certificateRenderer
	storage  fileStorage
	signer   urlSigner
	queue    renderQueue
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      CertificateDocumentConfig
}

// NewCertificateDocumentService constructs a CertificateDocumentService.
func NewCertificateDocumentService(certs certificateDetailReader, renderer certificateRenderer, files fileStorage, signer urlSigner, metrics *MetricsService, cfg CertificateDocumentConfig, logger *zap.Logger) *CertificateDocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewCertificateRenderer("")
	}
	if cfg.FileTTL <= 0 {
		cfg.FileTTL = 7 * 24 * time.Hour
	}
	return &CertificateDocumentService{
		certs:    certs,
		renderer: renderer,
		storage:  files,
		signer:   signer,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// SetQueue attaches the background queue used by ScheduleRender.
func (s *CertificateDocumentService) SetQueue(queue renderQueue) {
	s.queue = queue
}

// Render builds the PDF of a certificate the caller may see.
func (s *CertificateDocumentService) Render(ctx context.Context, actorID string, role models.UserRole, certificateID string) (*CertificateDocument, error) {
	detail, err := s.load(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	if err := authorizeCertificateAccess(detail, actorID, role); err != nil {
		return nil, err
	}
	data, err := s.render(detail)
	if err != nil {
		return nil, err
	}
	return &CertificateDocument{Filename: detail.Code() + ".pdf", Data: data}, nil
}

// ScheduleRender queues a render of a freshly issued certificate. A full queue is not fatal:
// the document is rendered on demand when a link is requested.
func (s *CertificateDocumentService) ScheduleRender(ctx context.Context, certificateID string) error {
	if s.queue == nil {
		return nil
	}
	err := s.queue.TryEnqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: JobTypeCertificateRender,
		Key:  certificateID,
	})
	if errors.Is(err, jobs.ErrQueueFull) {
		s.logger.Warn("render queue full, deferring to on-demand render", zap.String("certificate_id", certificateID))
		return nil
	}
	return err
}

// HandleRenderJob is the queue handler for render jobs.
func (s *CertificateDocumentService) HandleRenderJob(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeCertificateRender {
		s.logger.Warn("ignoring job of unknown type", zap.String("type", job.Type))
		return nil
	}
	detail, err := s.load(ctx, job.Key)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			// deleted before the worker got to it
			return nil
		}
		return err
	}
	_, err = s.store(detail)
	return err
}

// Link makes sure the certificate PDF is stored and returns a signed URL for it.
func (s *CertificateDocumentService) Link(ctx context.Context, actorID string, role models.UserRole, certificateID string) (*dto.CertificateLinkResponse, error) {
	detail, err := s.load(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	if err := authorizeCertificateAccess(detail, actorID, role); err != nil {
		return nil, err
	}
	name, err := s.ensureStored(detail)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(detail.ID, name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign certificate link")
	}
	return &dto.CertificateLinkResponse{
		URL:       s.cfg.PublicURL + s.cfg.APIPrefix + "/certificates/download/" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// Open resolves a download token to the stored PDF. The caller closes the file.
func (s *CertificateDocumentService) Open(ctx context.Context, token string) (*os.File, string, error) {
	signed, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}

	detail, err := s.load(ctx, signed.Subject)
	if err != nil {
		return nil, "", err
	}
	name, err := s.ensureStored(detail)
	if err != nil {
		return nil, "", err
	}
	file, err := s.storage.Open(name)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open certificate document")
	}
	return file, detail.Code() + ".pdf", nil
}

// Cleanup removes stored documents older than the configured retention.
func (s *CertificateDocumentService) Cleanup(ctx context.Context) error {
	removed, err := s.storage.CleanupOlderThan(s.cfg.FileTTL)
	if len(removed) > 0 {
		s.logger.Info("removed stale certificate documents", zap.Int("count", len(removed)))
	}
	return err
}

func (s *CertificateDocumentService) load(ctx context.Context, certificateID string) (*models.CertificateDetail, error) {
	detail, err := s.certs.FindDetailByID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	return detail, nil
}

func (s *CertificateDocumentService) ensureStored(detail *models.CertificateDetail) (string, error) {
	name := documentName(detail.ID)
	exists, err := s.storage.Exists(name)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check certificate document")
	}
	if exists {
		return name, nil
	}
	return s.store(detail)
}

func (s *CertificateDocumentService) store(detail *models.CertificateDetail) (string, error) {
	data, err := s.render(detail)
	if err != nil {
		return "", err
	}
	name, err := s.storage.Save(documentName(detail.ID), data)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate document")
	}
	return name, nil
}

func (s *CertificateDocumentService) render(detail *models.CertificateDetail) ([]byte, error) {
	data, err := s.renderer.Render(export.CertificateDocument{
		Code:        detail.Code(),
		Title:       detail.Title,
		Description: detail.Description,
		StudentName: detail.StudentName,
		CourseTitle: detail.CourseTitle,
		TutorName:   detail.TutorName,
		IssuedAt:    detail.IssuedAt,
	})
	s.metrics.RecordRender(err == nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	return data, nil
}

func documentName(certificateID string) string {
	return certificateID + ".pdf"
}
