package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnify-api/internal/models"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
	"github.com/noah-isme/learnify-api/pkg/jobs"
	"github.com/noah-isme/learnify-api/pkg/storage"
)

type recordingQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) TryEnqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type documentFixture struct {
	certs   *fakeCertificateRepo
	files   *storage.LocalStorage
	signer  *storage.SignedURLSigner
	queue   *recordingQueue
	service *CertificateDocumentService
	cert    *models.Certificate
}

func newDocumentFixture(t *testing.T) *documentFixture {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	certs := newFakeCertificateRepo()
	certs.names[courseID] = "Go in Production"
	certs.names[studentID] = "Ada Lovelace"
	certs.names[tutorID] = "Grace Hopper"
	cert := &models.Certificate{Title: "Certified Gopher", Description: "Completed", CourseID: courseID, TutorID: tutorID, StudentID: studentID}
	_, err = certs.Insert(context.Background(), cert)
	require.NoError(t, err)

	f := &documentFixture{
		certs:  certs,
		files:  files,
		signer: storage.NewSignedURLSigner("secret", time.Minute),
		queue:  &recordingQueue{},
		cert:   cert,
	}
	f.service = NewCertificateDocumentService(certs, nil, files, f.signer, NewMetricsService(), CertificateDocumentConfig{PublicURL: "https://api.learnify.app", APIPrefix: "/api/v1"}, nil)
	f.service.SetQueue(f.queue)
	return f
}

func TestDocumentRenderOnDemand(t *testing.T) {
	f := newDocumentFixture(t)

	doc, err := f.service.Render(context.Background(), studentID, models.RoleStudent, f.cert.ID)

	require.NoError(t, err)
	assert.Equal(t, "LRN-000001.pdf", doc.Filename)
	assert.True(t, strings.HasPrefix(string(doc.Data), "%PDF"))

	_, err = f.service.Render(context.Background(), student2ID, models.RoleStudent, f.cert.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.service.Render(context.Background(), adminID, models.RoleAdmin, unknown)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDocumentScheduleAndHandleRenderJob(t *testing.T) {
	f := newDocumentFixture(t)

	require.NoError(t, f.service.ScheduleRender(context.Background(), f.cert.ID))
	require.Len(t, f.queue.jobs, 1)
	job := f.queue.jobs[0]
	assert.Equal(t, JobTypeCertificateRender, job.Type)
	assert.Equal(t, f.cert.ID, job.Key)

	require.NoError(t, f.service.HandleRenderJob(context.Background(), job))
	exists, err := f.files.Exists(f.cert.ID + ".pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.NoError(t, f.service.HandleRenderJob(context.Background(), jobs.Job{Type: JobTypeCertificateRender, Key: unknown}))
}

func TestDocumentScheduleRenderToleratesFullQueue(t *testing.T) {
	f := newDocumentFixture(t)
	f.queue.err = jobs.ErrQueueFull

	assert.NoError(t, f.service.ScheduleRender(context.Background(), f.cert.ID))
}

func TestDocumentLinkAndDownload(t *testing.T) {
	f := newDocumentFixture(t)

	link, err := f.service.Link(context.Background(), studentID, models.RoleStudent, f.cert.ID)
	require.NoError(t, err)
	prefix := "https://api.learnify.app/api/v1/certificates/download/"
	require.True(t, strings.HasPrefix(link.URL, prefix))
	assert.WithinDuration(t, time.Now().Add(time.Minute), link.ExpiresAt, 2*time.Second)

	require.NoError(t, f.files.Delete(f.cert.ID+".pdf"))

	file, name, err := f.service.Open(context.Background(), strings.TrimPrefix(link.URL, prefix))
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "LRN-000001.pdf", name)
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestDocumentOpenRejectsBadTokens(t *testing.T) {
	f := newDocumentFixture(t)

	_, _, err := f.service.Open(context.Background(), "garbage")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	expiredSigner := storage.NewSignedURLSigner("secret", time.Nanosecond)
	token, _, err := expiredSigner.Generate(f.cert.ID, f.cert.ID+".pdf")
	require.NoError(t, err)
	_, _, err = f.service.Open(context.Background(), token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestDocumentCleanup(t *testing.T) {
	f := newDocumentFixture(t)
	f.service.cfg.FileTTL = time.Nanosecond
	_, err := f.files.Save("stale.pdf", []byte("%PDF"))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, f.service.Cleanup(context.Background()))

	exists, err := f.files.Exists("stale.pdf")
	require.NoError(t, err)
	assert.False(t, exists)
}
