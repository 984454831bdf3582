package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/learnify-api/internal/dto"
	"github.com/noah-isme/learnify-api/internal/models"
	"github.com/noah-isme/learnify-api/internal/repository"
	appErrors "github.com/noah-isme/learnify-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	ReplaceTree(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	LoadTree(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, int, error)
	Delete(ctx context.Context, id string) error
	CountUnits(ctx context.Context, courseID string) (models.CourseUnits, error)
	HasUnit(ctx context.Context, courseID string, kind models.CompletionKind, itemID string) (bool, error)
}

type catalogPage struct {
	Courses []models.CourseSummary `json:"courses"`
	Total   int                    `json:"total"`
}

// CourseService manages course trees and serves the progress denominator.
type CourseService struct {
	repo      courseRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// Create stores a new course owned by tutorID.
func (s *CourseService) Create(ctx context.Context, tutorID string, req dto.CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course := buildCourse(req, nil)
	course.TutorID = tutorID
	if err := s.repo.Create(ctx, course); err != nil {
		if errors.Is(err, repository.ErrMissingReference) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.cache.Invalidate(ctx, cacheKeyCatalogPattern)
	return course, nil
}

// Update replaces the tree of one course. Nodes whose id already belongs to this course keep it,
// so completions recorded against surviving lessons and quizzes stay valid.
func (s *CourseService) Update(ctx context.Context, actorID string, role models.UserRole, courseID string, req dto.CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	existing, err := s.repo.LoadTree(ctx, courseID)
	if err != nil {
		return nil, s.mapFindError(err)
	}
	if err := authorizeCourseOwner(existing, actorID, role); err != nil {
		return nil, err
	}

	course := buildCourse(req, existingNodeIDs(existing))
	course.ID = existing.ID
	if err := s.repo.ReplaceTree(ctx, course); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.invalidate(ctx, courseID)
	return course, nil
}

// Get returns the full course tree.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.LoadTree(ctx, id)
	if err != nil {
		return nil, s.mapFindError(err)
	}
	return course, nil
}

// Find returns the course header.
func (s *CourseService) Find(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapFindError(err)
	}
	return course, nil
}

// List returns catalog summaries. Unscoped catalog pages are cached.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseSummary, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	filter.Search = strings.TrimSpace(filter.Search)

	cacheable := filter.TutorID == ""
	key := cacheKeyCatalog(filter.Page, filter.PageSize, strings.ToLower(filter.Search))
	var page catalogPage
	if cacheable && s.cache.Get(ctx, key, &page) {
		return page.Courses, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: page.Total}, nil
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.CourseSummary{}
	}
	if cacheable {
		s.cache.Set(ctx, key, catalogPage{Courses: courses, Total: total}, 0)
	}
	return courses, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Delete removes a course owned by the actor, or any course for admins.
func (s *CourseService) Delete(ctx context.Context, actorID string, role models.UserRole, id string) error {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return s.mapFindError(err)
	}
	if err := authorizeCourseOwner(course, actorID, role); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidate(ctx, id)
	return nil
}

// CountUnits returns the number of lessons and quizzes of a course, served from cache when possible.
func (s *CourseService) CountUnits(ctx context.Context, courseID string) (models.CourseUnits, error) {
	key := cacheKeyCourseUnits(courseID)
	var units models.CourseUnits
	if s.cache.Get(ctx, key, &units) {
		return units, nil
	}
	units, err := s.repo.CountUnits(ctx, courseID)
	if err != nil {
		return models.CourseUnits{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count course units")
	}
	s.cache.Set(ctx, key, units, 0)
	return units, nil
}

// HasUnit reports whether a lesson or quiz belongs to the course.
func (s *CourseService) HasUnit(ctx context.Context, courseID string, kind models.CompletionKind, itemID string) (bool, error) {
	ok, err := s.repo.HasUnit(ctx, courseID, kind, itemID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course unit")
	}
	return ok, nil
}

// InvalidateAll drops every cached course entry. Used after batch deletes.
func (s *CourseService) InvalidateAll(ctx context.Context) {
	s.cache.Invalidate(ctx, "learnify:courses:*")
}

func (s *CourseService) invalidate(ctx context.Context, courseID string) {
	s.cache.Delete(ctx, cacheKeyCourseUnits(courseID))
	s.cache.Invalidate(ctx, cacheKeyCatalogPattern)
}

func (s *CourseService) mapFindError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
}

func authorizeCourseOwner(course *models.Course, actorID string, role models.UserRole) error {
	if role == models.RoleAdmin {
		return nil
	}
	if role == models.RoleTutor && course.TutorID == actorID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "course belongs to another tutor")
}

type nodeIDs struct {
	modules map[string]bool
	lessons map[string]bool
	quizzes map[string]bool
}

func existingNodeIDs(course *models.Course) *nodeIDs {
	ids := &nodeIDs{modules: map[string]bool{}, lessons: map[string]bool{}, quizzes: map[string]bool{}}
	for _, m := range course.Modules {
		ids.modules[m.ID] = true
		for _, l := range m.Lessons {
			ids.lessons[l.ID] = true
		}
		for _, q := range m.Quizzes {
			ids.quizzes[q.ID] = true
		}
	}
	return ids
}

// keep returns requested when it is a known id not yet used in this tree, otherwise a fresh one.
func keep(requested string, known, used map[string]bool) string {
	if requested != "" && known[requested] && !used[requested] {
		used[requested] = true
		return requested
	}
	id := uuid.NewString()
	used[id] = true
	return id
}

func buildCourse(req dto.CourseRequest, existing *nodeIDs) *models.Course {
	if existing == nil {
		existing = &nodeIDs{}
	}
	used := map[string]bool{}
	course := &models.Course{
		Title:                  strings.TrimSpace(req.Title),
		Description:            req.Description,
		CertificateTitle:       req.Certificate.Title,
		CertificateDescription: req.Certificate.Description,
		Modules:                make([]models.CourseModule, 0, len(req.Modules)),
	}
	for _, mr := range req.Modules {
		module := models.CourseModule{
			ID:          keep(mr.ID, existing.modules, used),
			Title:       mr.Title,
			Description: mr.Description,
			Lessons:     make([]models.Lesson, 0, len(mr.Lessons)),
			Quizzes:     make([]models.Quiz, 0, len(mr.Quizzes)),
		}
		for _, lr := range mr.Lessons {
			lesson := models.Lesson{
				ID:          keep(lr.ID, existing.lessons, used),
				Title:       lr.Title,
				Description: lr.Description,
				Topics:      make([]models.Topic, 0, len(lr.Topics)),
			}
			for _, tr := range lr.Topics {
				lesson.Topics = append(lesson.Topics, models.Topic{
					Title:            tr.Title,
					Content:          tr.Content,
					LearningOutcomes: pq.StringArray(tr.LearningOutcomes),
					Links:            pq.StringArray(tr.Links),
					Images:           models.TopicImages(tr.Images),
				})
			}
			module.Lessons = append(module.Lessons, lesson)
		}
		for _, qr := range mr.Quizzes {
			quiz := models.Quiz{
				ID:        keep(qr.ID, existing.quizzes, used),
				Title:     qr.Title,
				Questions: make([]models.QuizQuestion, 0, len(qr.Questions)),
			}
			for _, q := range qr.Questions {
				quiz.Questions = append(quiz.Questions, models.QuizQuestion{
					QuestionText:  q.QuestionText,
					QuestionType:  q.QuestionType,
					Options:       pq.StringArray(q.Options),
					CorrectAnswer: q.CorrectAnswer,
				})
			}
			module.Quizzes = append(module.Quizzes, quiz)
		}
		course.Modules = append(course.Modules, module)
	}
	return course
}
