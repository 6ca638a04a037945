package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/export"
)

const (
	ownedCourseID = "4b8f5a4e-2d7c-4f3c-9b7a-1a2b3c4d5e6f"
	otherCourseID = "9c1d2e3f-4a5b-4c6d-8e7f-0a1b2c3d4e5f"
)

type fakeCourseRepo struct {
	courses     map[string]*models.Course
	created     []*models.Course
	updateCalls int
	listScope   *string
	statsScope  *string
	publicCalls int
	err         error
}

func newFakeCourseRepo(courses ...*models.Course) *fakeCourseRepo {
	repo := &fakeCourseRepo{courses: map[string]*models.Course{}}
	for _, c := range courses {
		repo.courses[c.ID] = c
	}
	return repo
}

func (f *fakeCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if f.err != nil {
		return f.err
	}
	course.ID = "new-course"
	course.CreatedAt = time.Now().UTC()
	f.created = append(f.created, course)
	return nil
}

func (f *fakeCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *c
	return &clone, nil
}

func (f *fakeCourseRepo) Update(ctx context.Context, id string, patch models.CoursePatch) (*models.Course, error) {
	f.updateCalls++
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if patch.Title != nil {
		c.Title = *patch.Title
	}
	if patch.Skills != nil {
		c.Skills = patch.Skills
	}
	if patch.Price != nil {
		c.Price = *patch.Price
	}
	if patch.IsPublic != nil {
		c.IsPublic = *patch.IsPublic
	}
	clone := *c
	return &clone, nil
}

func (f *fakeCourseRepo) ListByInstructor(ctx context.Context, instructorID string) ([]models.Course, error) {
	f.listScope = &instructorID
	out := []models.Course{}
	for _, c := range f.courses {
		if instructorID == "" || c.InstructorID == instructorID {
			out = append(out, *c)
		}
	}
	return out, f.err
}

func (f *fakeCourseRepo) Stats(ctx context.Context, instructorID string) (*models.CourseStats, error) {
	f.statsScope = &instructorID
	return &models.CourseStats{Total: len(f.courses)}, f.err
}

func (f *fakeCourseRepo) ListPublic(ctx context.Context, filter models.CourseFilter) ([]models.PublicCourse, int, error) {
	f.publicCalls++
	out := []models.PublicCourse{}
	for _, c := range f.courses {
		if c.IsPublic {
			out = append(out, models.PublicCourse{ID: c.ID, Title: c.Title, Instructor: "Unknown Instructor"})
		}
	}
	return out, len(out), f.err
}

func (f *fakeCourseRepo) FindPublicByID(ctx context.Context, id string) (*models.PublicCourse, error) {
	f.publicCalls++
	c, ok := f.courses[id]
	if !ok || !c.IsPublic {
		return nil, sql.ErrNoRows
	}
	return &models.PublicCourse{ID: c.ID, Title: c.Title, Rating: c.Rating}, nil
}

type memoryCache struct {
	items       map[string][]byte
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := m.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCache) Invalidate(ctx context.Context, pattern string) error {
	m.invalidated = append(m.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			delete(m.items, k)
		}
	}
	return nil
}

var (
	instructorActor = models.Actor{UserID: "instructor-1", Role: models.RoleInstructor}
	otherInstructor = models.Actor{UserID: "instructor-2", Role: models.RoleInstructor}
	adminActor      = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
)

func sampleCourses() []*models.Course {
	return []*models.Course{
		{ID: ownedCourseID, Title: "Intro to Go", InstructorID: "instructor-1", Level: models.LevelBeginner, Category: "Programming", Duration: "4 weeks", Price: 0, IsPublic: true, Rating: 4.7},
		{ID: otherCourseID, Title: "Advanced SQL", InstructorID: "instructor-2", Level: models.LevelAdvanced, Category: "Data", Duration: "6 weeks", Price: 49.5, IsPublic: false, Rating: 4.7},
	}
}

func newTestCourseService(repo *fakeCourseRepo, cache catalogCache, audit *recordingAuditRepo) *CourseService {
	var auditRepo auditRepository
	if audit != nil {
		auditRepo = audit
	}
	return NewCourseService(repo, cache, time.Minute, auditRepo, NewValidator(), zap.NewNop())
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestCourseServiceCreate(t *testing.T) {
	repo := newFakeCourseRepo()
	cache := newMemoryCache()
	audit := &recordingAuditRepo{}
	svc := newTestCourseService(repo, cache, audit)

	course, err := svc.Create(context.Background(), instructorActor, models.CourseInput{
		Title:    "  Intro to Go  ",
		Skills:   []string{" go ", "", "  ", "testing"},
		Level:    models.LevelBeginner,
		Category: "Programming",
		Duration: "4 weeks",
		Price:    floatPtr(0),
	}, models.RequestMeta{})
	require.NoError(t, err)

	assert.Equal(t, "Intro to Go", course.Title)
	assert.Equal(t, []string{"go", "testing"}, []string(course.Skills))
	assert.Equal(t, "instructor-1", course.InstructorID)
	assert.False(t, course.IsPublic)
	assert.Equal(t, models.DefaultCourseRating, course.Rating)
	assert.Zero(t, course.RatingCount)
	assert.Equal(t, []string{catalogCachePattern}, cache.invalidated)
	assert.Equal(t, []string{models.AuditActionCourseCreate}, audit.actions())
}

func TestCourseServiceCreateValidation(t *testing.T) {
	svc := newTestCourseService(newFakeCourseRepo(), nil, nil)
	base := func() models.CourseInput {
		return models.CourseInput{Title: "Intro to Go", Level: models.LevelBeginner, Category: "Programming", Duration: "4 weeks", Price: floatPtr(10)}
	}

	cases := []struct {
		name    string
		mutate  func(*models.CourseInput)
		message string
	}{
		{"short title after trim", func(in *models.CourseInput) { in.Title = "  Go  " }, "Title is required and must be between 5 and 120 characters"},
		{"long title", func(in *models.CourseInput) { in.Title = strings.Repeat("x", 121) }, "Title is required and must be between 5 and 120 characters"},
		{"missing category", func(in *models.CourseInput) { in.Category = "   " }, "Category and duration are required"},
		{"bad level", func(in *models.CourseInput) { in.Level = "Expert" }, "Invalid level"},
		{"missing price", func(in *models.CourseInput) { in.Price = nil }, "Price is required"},
		{"negative price", func(in *models.CourseInput) { in.Price = floatPtr(-1) }, "Price cannot be negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base()
			tc.mutate(&in)
			_, err := svc.Create(context.Background(), instructorActor, in, models.RequestMeta{})
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, 400, appErr.Status)
			assert.Equal(t, tc.message, appErr.Message)
		})
	}
}

func TestCourseServiceUpdate(t *testing.T) {
	t.Run("empty patch touches nothing", func(t *testing.T) {
		repo := newFakeCourseRepo(sampleCourses()...)
		svc := newTestCourseService(repo, nil, nil)

		course, changed, err := svc.Update(context.Background(), instructorActor, "missing", models.CoursePatch{}, models.RequestMeta{})
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Nil(t, course)
		assert.Zero(t, repo.updateCalls)
	})

	t.Run("owner applies present fields only", func(t *testing.T) {
		repo := newFakeCourseRepo(sampleCourses()...)
		cache := newMemoryCache()
		audit := &recordingAuditRepo{}
		svc := newTestCourseService(repo, cache, audit)

		course, changed, err := svc.Update(context.Background(), instructorActor, ownedCourseID, models.CoursePatch{
			Price:  floatPtr(19.99),
			Skills: []string{" go ", ""},
		}, models.RequestMeta{})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 19.99, course.Price)
		assert.Equal(t, "Intro to Go", course.Title)
		assert.Equal(t, []string{"go"}, []string(course.Skills))
		assert.Equal(t, []string{catalogCachePattern}, cache.invalidated)
		assert.Equal(t, []string{models.AuditActionCourseUpdate}, audit.actions())
	})

	t.Run("present field still validated", func(t *testing.T) {
		repo := newFakeCourseRepo(sampleCourses()...)
		svc := newTestCourseService(repo, nil, nil)

		_, _, err := svc.Update(context.Background(), instructorActor, ownedCourseID, models.CoursePatch{Title: strPtr("Go")}, models.RequestMeta{})
		assert.Equal(t, 400, appErrors.FromError(err).Status)
		_, _, err = svc.Update(context.Background(), instructorActor, ownedCourseID, models.CoursePatch{Price: floatPtr(-5)}, models.RequestMeta{})
		assert.Equal(t, "Price cannot be negative", appErrors.FromError(err).Message)
		assert.Zero(t, repo.updateCalls)
	})

	t.Run("blank category or duration is rejected", func(t *testing.T) {
		repo := newFakeCourseRepo(sampleCourses()...)
		svc := newTestCourseService(repo, nil, nil)

		for _, patch := range []models.CoursePatch{
			{Category: strPtr("   ")},
			{Duration: strPtr("")},
			{Category: strPtr("   "), Duration: strPtr("")},
		} {
			_, changed, err := svc.Update(context.Background(), instructorActor, ownedCourseID, patch, models.RequestMeta{})
			require.Error(t, err)
			assert.False(t, changed)
			assert.Equal(t, 400, appErrors.FromError(err).Status)
			assert.Equal(t, "Category and duration are required", appErrors.FromError(err).Message)
		}
		assert.Zero(t, repo.updateCalls)
	})

	t.Run("foreign course is forbidden for instructors", func(t *testing.T) {
		repo := newFakeCourseRepo(sampleCourses()...)
		svc := newTestCourseService(repo, nil, nil)

		_, _, err := svc.Update(context.Background(), otherInstructor, ownedCourseID, models.CoursePatch{IsPublic: boolPtr(false)}, models.RequestMeta{})
		assert.Equal(t, 403, appErrors.FromError(err).Status)
		assert.Zero(t, repo.updateCalls)
	})

	t.Run("admin may update any course", func(t *testing.T) {
		repo := newFakeCourseRepo(sampleCourses()...)
		svc := newTestCourseService(repo, nil, nil)

		course, changed, err := svc.Update(context.Background(), adminActor, otherCourseID, models.CoursePatch{IsPublic: boolPtr(true)}, models.RequestMeta{})
		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, course.IsPublic)
	})

	t.Run("missing and malformed ids are not found", func(t *testing.T) {
		svc := newTestCourseService(newFakeCourseRepo(), nil, nil)
		for _, id := range []string{"not-a-uuid", "00000000-0000-4000-8000-000000000000"} {
			_, _, err := svc.Update(context.Background(), adminActor, id, models.CoursePatch{IsPublic: boolPtr(true)}, models.RequestMeta{})
			appErr := appErrors.FromError(err)
			assert.Equal(t, 404, appErr.Status)
			assert.Equal(t, "Course not found", appErr.Message)
		}
	})
}

func TestCourseServiceScopes(t *testing.T) {
	repo := newFakeCourseRepo(sampleCourses()...)
	svc := newTestCourseService(repo, nil, nil)
	ctx := context.Background()

	mine, err := svc.ListMine(ctx, instructorActor)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "instructor-1", *repo.listScope)

	all, err := svc.ListMine(ctx, adminActor)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "", *repo.listScope)

	_, err = svc.Stats(ctx, instructorActor)
	require.NoError(t, err)
	assert.Equal(t, "instructor-1", *repo.statsScope)
	_, err = svc.Stats(ctx, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "", *repo.statsScope)

	_, err = svc.Get(ctx, instructorActor, otherCourseID)
	assert.Equal(t, 403, appErrors.FromError(err).Status)
	course, err := svc.Get(ctx, instructorActor, ownedCourseID)
	require.NoError(t, err)
	assert.Equal(t, "Intro to Go", course.Title)
}

func TestCourseServiceExportCSV(t *testing.T) {
	repo := newFakeCourseRepo(sampleCourses()...)
	svc := newTestCourseService(repo, nil, nil)

	out, err := svc.Export(context.Background(), instructorActor, export.FormatCSV)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Title", records[0][0])
	assert.Equal(t, "Intro to Go", records[1][0])
	assert.Equal(t, "Free", records[1][4])
	assert.Equal(t, "Public", records[1][5])
}

func TestCourseServiceExportPDF(t *testing.T) {
	svc := newTestCourseService(newFakeCourseRepo(sampleCourses()...), nil, nil)

	out, err := svc.Export(context.Background(), adminActor, export.FormatPDF)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF"))
}

func TestCourseServicePublicCatalogCaching(t *testing.T) {
	repo := newFakeCourseRepo(sampleCourses()...)
	cache := newMemoryCache()
	svc := newTestCourseService(repo, cache, nil)
	ctx := context.Background()

	first, err := svc.ListPublic(ctx, models.CourseFilter{})
	require.NoError(t, err)
	require.Len(t, first.Courses, 1)
	assert.Equal(t, 1, first.Pagination.Page)
	assert.Equal(t, 20, first.Pagination.PageSize)
	assert.Equal(t, 1, first.Pagination.TotalCount)

	second, err := svc.ListPublic(ctx, models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.publicCalls)

	_, err = svc.Create(ctx, instructorActor, models.CourseInput{Title: "Another course", Level: models.LevelBeginner, Category: "Programming", Duration: "1 week", Price: floatPtr(0)}, models.RequestMeta{})
	require.NoError(t, err)
	_, err = svc.ListPublic(ctx, models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.publicCalls)
}

func TestCourseServiceListPublicRejectsUnknownLevel(t *testing.T) {
	svc := newTestCourseService(newFakeCourseRepo(), nil, nil)

	_, err := svc.ListPublic(context.Background(), models.CourseFilter{Level: "Expert"})
	assert.Equal(t, 400, appErrors.FromError(err).Status)
}

func TestCourseServiceGetPublic(t *testing.T) {
	repo := newFakeCourseRepo(sampleCourses()...)
	cache := newMemoryCache()
	svc := newTestCourseService(repo, cache, nil)
	ctx := context.Background()

	course, err := svc.GetPublic(ctx, ownedCourseID)
	require.NoError(t, err)
	assert.Equal(t, 4.7, course.Rating)

	_, err = svc.GetPublic(ctx, ownedCourseID)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.publicCalls)

	for _, id := range []string{otherCourseID, "missing"} {
		_, err = svc.GetPublic(ctx, id)
		assert.Equal(t, 404, appErrors.FromError(err).Status, id)
	}
}

func TestCourseServiceRepositoryFailureIsInternal(t *testing.T) {
	repo := newFakeCourseRepo()
	repo.err = errors.New("db down")
	svc := newTestCourseService(repo, nil, nil)

	_, err := svc.ListMine(context.Background(), instructorActor)
	assert.Equal(t, 500, appErrors.FromError(err).Status)
}
