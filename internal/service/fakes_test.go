package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/learnify-api/internal/models"
	"github.com/noah-isme/learnify-api/internal/repository"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
)

const (
	tutorID    = "7d9f1c7e-3b0a-4c55-9f6e-0b2a4a1e0001"
	studentID  = "7d9f1c7e-3b0a-4c55-9f6e-0b2a4a1e0002"
	student2ID = "7d9f1c7e-3b0a-4c55-9f6e-0b2a4a1e0003"
	adminID    = "7d9f1c7e-3b0a-4c55-9f6e-0b2a4a1e0004"
)

func cloneEnrollment(e *models.Enrollment) *models.Enrollment {
	c := *e
	c.CompletedLessons = append([]string{}, e.CompletedLessons...)
	c.CompletedQuizzes = append([]string{}, e.CompletedQuizzes...)
	return &c
}

type fakeEnrollmentRepo struct {
	mu          sync.Mutex
	enrollments map[string]*models.Enrollment
	createErr   error
	recordErr   error
	summaries   []models.EnrollmentSummary
	completed   []models.Enrollment
	listErr     error
	nextNo      int64
	attempted   []string
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{enrollments: map[string]*models.Enrollment{}}
}

func (f *fakeEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.enrollments {
		if existing.StudentID == enrollment.StudentID && existing.CourseID == enrollment.CourseID {
			return repository.ErrDuplicate
		}
	}
	f.nextNo++
	enrollment.ID = uuid.NewString()
	enrollment.EnrollmentNo = f.nextNo
	enrollment.EnrolledAt = time.Now().UTC()
	enrollment.CompletedLessons = []string{}
	enrollment.CompletedQuizzes = []string{}
	f.enrollments[enrollment.ID] = cloneEnrollment(enrollment)
	return nil
}

func (f *fakeEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneEnrollment(e), nil
}

func (f *fakeEnrollmentRepo) RecordCompletion(ctx context.Context, params repository.RecordCompletionParams) (*models.CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	e, ok := f.enrollments[params.EnrollmentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	previous := e.Progress
	if e.HasCompleted(params.Kind, params.ItemID) {
		if progress := params.Progress(e.CompletedCount(), params.TotalUnits); progress != e.Progress {
			e.Progress = progress
			e.Version++
		}
		return &models.CompletionResult{Enrollment: cloneEnrollment(e), PreviousProgress: previous}, nil
	}
	if params.Kind == models.CompletionQuiz {
		e.CompletedQuizzes = append(e.CompletedQuizzes, params.ItemID)
	} else {
		e.CompletedLessons = append(e.CompletedLessons, params.ItemID)
	}
	e.Progress = params.Progress(e.CompletedCount(), params.TotalUnits)
	e.Version++
	now := time.Now().UTC()
	e.LastAccessedAt = &now
	return &models.CompletionResult{Enrollment: cloneEnrollment(e), Added: true, PreviousProgress: previous}, nil
}

func (f *fakeEnrollmentRepo) ListByStudent(ctx context.Context, id string) ([]models.EnrollmentSummary, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.EnrollmentSummary
	for _, s := range f.summaries {
		if s.StudentID == id {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeEnrollmentRepo) ListCompletedWithoutCertificate(ctx context.Context, limit int) ([]models.Enrollment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.completed, nil
}

func (f *fakeEnrollmentRepo) MarkCertificateAttempt(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempted = append(f.attempted, id)
	return nil
}

type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[string]*models.User
	findErr   error
	createErr error
	updateErr error
	auditErr  error
	audits    []*models.AuditLog
	lastLogin map[string]time.Time
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[string]*models.User{}, lastLogin: map[string]time.Time{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	user.ID = uuid.NewString()
	user.UserNo = int64(len(f.users) + 1)
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) UpdateProfile(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLogin[id] = ts
	return nil
}

func (f *fakeUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.auditErr != nil {
		return f.auditErr
	}
	f.audits = append(f.audits, log)
	return nil
}

func (f *fakeUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

// fakeCourseRepo keeps whole trees in memory.
type fakeCourseRepo struct {
	mu         sync.Mutex
	courses    map[string]*models.Course
	countCalls atomic.Int32
	findErr    error
}

func newFakeCourseRepo(courses ...*models.Course) *fakeCourseRepo {
	repo := &fakeCourseRepo{courses: map[string]*models.Course{}}
	for _, c := range courses {
		repo.courses[c.ID] = c
	}
	return repo
}

func (f *fakeCourseRepo) Create(ctx context.Context, course *models.Course) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	course.ID = uuid.NewString()
	course.CourseNo = int64(len(f.courses) + 1)
	f.courses[course.ID] = course
	return nil
}

func (f *fakeCourseRepo) ReplaceTree(ctx context.Context, course *models.Course) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.courses[course.ID]
	if !ok {
		return sql.ErrNoRows
	}
	course.TutorID = existing.TutorID
	course.CourseNo = existing.CourseNo
	f.courses[course.ID] = course
	return nil
}

func (f *fakeCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	header := *c
	header.Modules = nil
	return &header, nil
}

func (f *fakeCourseRepo) LoadTree(ctx context.Context, id string) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CourseSummary
	for _, c := range f.courses {
		if filter.TutorID != "" && c.TutorID != filter.TutorID {
			continue
		}
		out = append(out, models.CourseSummary{ID: c.ID, Title: c.Title, TutorID: c.TutorID, UnitCount: c.UnitCount().Total()})
	}
	return out, len(out), nil
}

func (f *fakeCourseRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.courses, id)
	return nil
}

func (f *fakeCourseRepo) CountUnits(ctx context.Context, courseID string) (models.CourseUnits, error) {
	f.countCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.courses[courseID]
	if !ok {
		return models.CourseUnits{}, nil
	}
	return c.UnitCount(), nil
}

func (f *fakeCourseRepo) HasUnit(ctx context.Context, courseID string, kind models.CompletionKind, itemID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.courses[courseID]
	if !ok {
		return false, nil
	}
	for _, m := range c.Modules {
		if kind == models.CompletionLesson {
			for _, l := range m.Lessons {
				if l.ID == itemID {
					return true, nil
				}
			}
			continue
		}
		for _, q := range m.Quizzes {
			if q.ID == itemID {
				return true, nil
			}
		}
	}
	return false, nil
}

// fakeCertificateRepo enforces the (course, student) uniqueness the database index provides.
type fakeCertificateRepo struct {
	mu          sync.Mutex
	certs       map[string]*models.Certificate
	names       map[string]string
	insertErr   error
	inserts     atomic.Int32
	insertDelay time.Duration
	onInsert    func()
}

func newFakeCertificateRepo() *fakeCertificateRepo {
	return &fakeCertificateRepo{certs: map[string]*models.Certificate{}, names: map[string]string{}}
}

func (f *fakeCertificateRepo) Insert(ctx context.Context, cert *models.Certificate) (bool, error) {
	if f.onInsert != nil {
		f.onInsert()
	}
	if f.insertDelay > 0 {
		time.Sleep(f.insertDelay)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return false, f.insertErr
	}
	for _, existing := range f.certs {
		if existing.CourseID == cert.CourseID && existing.StudentID == cert.StudentID {
			return false, nil
		}
	}
	f.inserts.Add(1)
	cert.ID = uuid.NewString()
	cert.CertificateNo = int64(len(f.certs) + 1)
	cert.IssuedAt = time.Now().UTC()
	copied := *cert
	f.certs[cert.ID] = &copied
	return true, nil
}

func (f *fakeCertificateRepo) FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.certs {
		if c.CourseID == courseID && c.StudentID == studentID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCertificateRepo) FindDetailByID(ctx context.Context, id string) (*models.CertificateDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.certs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.CertificateDetail{
		Certificate: *c,
		CourseTitle: f.names[c.CourseID],
		StudentName: f.names[c.StudentID],
		TutorName:   f.names[c.TutorID],
	}, nil
}

func (f *fakeCertificateRepo) ListByStudent(ctx context.Context, id string) ([]models.CertificateDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CertificateDetail
	for _, c := range f.certs {
		if c.StudentID == id {
			out = append(out, models.CertificateDetail{Certificate: *c})
		}
	}
	return out, nil
}

type recordingScheduler struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingScheduler) ScheduleRender(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return r.err
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			delete(m.items, k)
		}
	}
	return nil
}

func (m *memoryCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[key]
	return ok
}
