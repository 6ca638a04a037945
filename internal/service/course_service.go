package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/export"
)

const catalogCachePattern = "catalog:*"

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Update(ctx context.Context, id string, patch models.CoursePatch) (*models.Course, error)
	ListByInstructor(ctx context.Context, instructorID string) ([]models.Course, error)
	Stats(ctx context.Context, instructorID string) (*models.CourseStats, error)
	ListPublic(ctx context.Context, filter models.CourseFilter) ([]models.PublicCourse, int, error)
	FindPublicByID(ctx context.Context, id string) (*models.PublicCourse, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

var courseMessages = messageOverrides{
	"title":             "Title is required and must be between 5 and 120 characters",
	"category.required": "Category and duration are required",
	"duration.required": "Category and duration are required",
	"category.min":      "Category and duration are required",
	"duration.min":      "Category and duration are required",
	"level":             "Invalid level",
	"price.required":    "Price is required",
	"price.gte":         "Price cannot be negative",
}

var courseNotFound = appErrors.Clone(appErrors.ErrNotFound, "Course not found")

// CourseService manages courses for instructors and admins and serves the
// public catalog.
type CourseService struct {
	repo      courseRepository
	cache     catalogCache
	cacheTTL  time.Duration
	audit     auditTrail
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs a CourseService. cache may be nil.
func NewCourseService(repo courseRepository, cache catalogCache, cacheTTL time.Duration, auditRepo auditRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &CourseService{
		repo:      repo,
		cache:     cache,
		cacheTTL:  cacheTTL,
		audit:     auditTrail{repo: auditRepo, logger: logger},
		validator: validate,
		logger:    logger,
	}
}

// Create stores a new course owned by the actor.
func (s *CourseService) Create(ctx context.Context, actor models.Actor, input models.CourseInput, meta models.RequestMeta) (*models.Course, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Category = strings.TrimSpace(input.Category)
	input.Duration = strings.TrimSpace(input.Duration)
	input.Skills = cleanSkills(input.Skills)
	if err := s.validator.Struct(input); err != nil {
		return nil, validationError(err, courseMessages)
	}

	course := &models.Course{
		Title:        input.Title,
		InstructorID: actor.UserID,
		Skills:       input.Skills,
		Level:        input.Level,
		Category:     input.Category,
		Duration:     input.Duration,
		Price:        *input.Price,
		IsPublic:     input.IsPublic,
		Rating:       models.DefaultCourseRating,
		RatingCount:  0,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to create course")
	}

	s.invalidateCatalog(ctx)
	s.audit.record(ctx, actor.UserID, models.AuditActionCourseCreate, "courses", course.ID, meta, map[string]interface{}{"title": course.Title, "isPublic": course.IsPublic})
	return course, nil
}

// Update applies a partial update. It returns changed=false without touching
// storage when the patch carries no field.
func (s *CourseService) Update(ctx context.Context, actor models.Actor, id string, patch models.CoursePatch, meta models.RequestMeta) (*models.Course, bool, error) {
	normalizePatch(&patch)
	if patch.Empty() {
		return nil, false, nil
	}
	if err := s.validator.Struct(patch); err != nil {
		return nil, false, validationError(err, courseMessages)
	}

	if _, err := s.owned(ctx, actor, id); err != nil {
		return nil, false, err
	}

	course, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, courseNotFound
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to update course")
	}

	s.invalidateCatalog(ctx)
	s.audit.record(ctx, actor.UserID, models.AuditActionCourseUpdate, "courses", course.ID, meta, patchSummary(patch))
	return course, true, nil
}

// Get returns a course the actor may manage.
func (s *CourseService) Get(ctx context.Context, actor models.Actor, id string) (*models.Course, error) {
	return s.owned(ctx, actor, id)
}

// ListMine returns the actor's courses newest first. Admins see every course.
func (s *CourseService) ListMine(ctx context.Context, actor models.Actor) ([]models.Course, error) {
	courses, err := s.repo.ListByInstructor(ctx, scopeFor(actor))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to load courses")
	}
	return courses, nil
}

// Stats aggregates counts over the same scope as ListMine.
func (s *CourseService) Stats(ctx context.Context, actor models.Actor) (*models.CourseStats, error) {
	stats, err := s.repo.Stats(ctx, scopeFor(actor))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to load course stats")
	}
	return stats, nil
}

// Export renders the ListMine result in the requested format.
func (s *CourseService) Export(ctx context.Context, actor models.Actor, format export.Format) ([]byte, error) {
	courses, err := s.ListMine(ctx, actor)
	if err != nil {
		return nil, err
	}

	table := export.Table{
		Title: "Courses",
		Columns: []export.Column{
			{Key: "title", Label: "Title", Weight: 3},
			{Key: "level", Label: "Level", Weight: 1.2},
			{Key: "category", Label: "Category", Weight: 1.5},
			{Key: "duration", Label: "Duration"},
			{Key: "price", Label: "Price"},
			{Key: "status", Label: "Status"},
			{Key: "skills", Label: "Skills", Weight: 2.5},
			{Key: "created", Label: "Created", Weight: 1.3},
		},
		Rows: make([]map[string]string, 0, len(courses)),
	}
	for _, c := range courses {
		status := "Draft"
		if c.IsPublic {
			status = "Public"
		}
		table.Rows = append(table.Rows, map[string]string{
			"title":    c.Title,
			"level":    string(c.Level),
			"category": c.Category,
			"duration": c.Duration,
			"price":    exportPrice(c),
			"status":   status,
			"skills":   strings.Join(c.Skills, ", "),
			"created":  c.CreatedAt.UTC().Format("2006-01-02"),
		})
	}

	out, err := export.RendererFor(format).Render(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to export courses")
	}
	return out, nil
}

// ListPublic returns a page of published courses.
func (s *CourseService) ListPublic(ctx context.Context, filter models.CourseFilter) (*models.PublicCourseList, error) {
	filter.Category = strings.TrimSpace(filter.Category)
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Level != "" && !filter.Level.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Invalid level")
	}
	filter.Page, filter.PageSize = repository.NormalizePage(filter.Page, filter.PageSize)

	key := catalogListKey(filter)
	var cached models.PublicCourseList
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	courses, total, err := s.repo.ListPublic(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to load courses")
	}
	list := &models.PublicCourseList{
		Courses:    courses,
		Pagination: models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total},
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, list, s.cacheTTL)
	}
	return list, nil
}

// GetPublic returns a published course. Drafts are reported as not found.
func (s *CourseService) GetPublic(ctx context.Context, id string) (*models.PublicCourse, error) {
	if !isUUID(id) {
		return nil, courseNotFound
	}

	key := "catalog:course:" + id
	var cached models.PublicCourse
	if s.cache != nil {
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	course, err := s.repo.FindPublicByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courseNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to load course")
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, course, s.cacheTTL)
	}
	return course, nil
}

// owned loads a course and checks that the actor may manage it.
func (s *CourseService) owned(ctx context.Context, actor models.Actor, id string) (*models.Course, error) {
	if !isUUID(id) {
		return nil, courseNotFound
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courseNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to load course")
	}
	if !actor.IsAdmin() && course.InstructorID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You can only manage your own courses")
	}
	return course, nil
}

func (s *CourseService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, catalogCachePattern)
}

func scopeFor(actor models.Actor) string {
	if actor.IsAdmin() {
		return ""
	}
	return actor.UserID
}

func normalizePatch(p *models.CoursePatch) {
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	p.Title = trim(p.Title)
	p.Category = trim(p.Category)
	p.Duration = trim(p.Duration)
	if p.Skills != nil {
		p.Skills = cleanSkills(p.Skills)
	}
}

func exportPrice(c models.Course) string {
	if c.IsFree() {
		return "Free"
	}
	return strconv.FormatFloat(c.Price, 'f', 2, 64)
}

// cleanSkills trims entries and drops blanks. The result is never nil.
func cleanSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, skill := range skills {
		if t := strings.TrimSpace(skill); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func patchSummary(p models.CoursePatch) map[string]interface{} {
	fields := make([]string, 0, 7)
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Skills != nil {
		fields = append(fields, "skills")
	}
	if p.Level != nil {
		fields = append(fields, "level")
	}
	if p.Category != nil {
		fields = append(fields, "category")
	}
	if p.Duration != nil {
		fields = append(fields, "duration")
	}
	if p.Price != nil {
		fields = append(fields, "price")
	}
	if p.IsPublic != nil {
		fields = append(fields, "isPublic")
	}
	return map[string]interface{}{"fields": fields}
}

func catalogListKey(f models.CourseFilter) string {
	return fmt.Sprintf("catalog:list:c=%s:l=%s:q=%s:p=%d:n=%d",
		url.QueryEscape(f.Category), f.Level, url.QueryEscape(strings.ToLower(f.Search)), f.Page, f.PageSize)
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
