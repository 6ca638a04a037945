package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/learnhub-api/internal/models"
)

const courseColumns = `id, title, instructor_id, skills, level, category, duration, price, is_public, rating, rating_count, created_at, updated_at`

const publicCourseColumns = `c.id, c.title, COALESCE(u.name, 'Unknown Instructor') AS instructor, c.skills, c.level, c.category, c.duration, c.price, c.rating, c.rating_count`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// CourseRepository provides database access for courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new instance of CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	if course.Skills == nil {
		course.Skills = pq.StringArray{}
	}

	const query = `INSERT INTO courses (` + courseColumns + `) VALUES (:id, :title, :instructor_id, :skills, :level, :category, :duration, :price, :is_public, :rating, :rating_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByID returns a course regardless of visibility.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1 LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course by id: %w", err)
	}
	return &course, nil
}

// Update applies the non-nil fields of patch in a single statement and
// returns the stored row. sql.ErrNoRows means the course does not exist.
func (r *CourseRepository) Update(ctx context.Context, id string, patch models.CoursePatch) (*models.Course, error) {
	var sets []string
	args := []interface{}{id}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Skills != nil {
		add("skills", pq.StringArray(patch.Skills))
	}
	if patch.Level != nil {
		add("level", *patch.Level)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Duration != nil {
		add("duration", *patch.Duration)
	}
	if patch.Price != nil {
		add("price", *patch.Price)
	}
	if patch.IsPublic != nil {
		add("is_public", *patch.IsPublic)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("update course: empty patch")
	}
	add("updated_at", time.Now().UTC())

	query := fmt.Sprintf("UPDATE courses SET %s WHERE id = $1 RETURNING %s", strings.Join(sets, ", "), courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update course: %w", err)
	}
	return &course, nil
}

// ListByInstructor returns courses newest first. An empty instructorID lists
// every course.
func (r *CourseRepository) ListByInstructor(ctx context.Context, instructorID string) ([]models.Course, error) {
	where, args := instructorScope(instructorID)
	query := fmt.Sprintf("SELECT %s FROM courses%s ORDER BY created_at DESC", courseColumns, where)

	courses := []models.Course{}
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// Stats aggregates course counts. An empty instructorID covers every course.
func (r *CourseRepository) Stats(ctx context.Context, instructorID string) (*models.CourseStats, error) {
	where, args := instructorScope(instructorID)
	query := `SELECT COUNT(*) AS total,
		COUNT(*) FILTER (WHERE is_public) AS public,
		COUNT(*) FILTER (WHERE NOT is_public) AS draft,
		COUNT(*) FILTER (WHERE price = 0) AS free,
		COUNT(*) FILTER (WHERE price > 0) AS paid
		FROM courses` + where

	var stats models.CourseStats
	if err := r.db.GetContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("course stats: %w", err)
	}
	return &stats, nil
}

// ListPublic returns one page of published courses with the total match count.
func (r *CourseRepository) ListPublic(ctx context.Context, filter models.CourseFilter) ([]models.PublicCourse, int, error) {
	baseQuery := `FROM courses c LEFT JOIN users u ON u.id = c.instructor_id WHERE c.is_public = TRUE`
	var conditions []string
	var args []interface{}

	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("c.category = $%d", len(args)))
	}
	if filter.Level != "" {
		args = append(args, filter.Level)
		conditions = append(conditions, fmt.Sprintf("c.level = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(filter.Search)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(c.title ILIKE $%d OR c.category ILIKE $%d OR array_to_string(c.skills, ' ') ILIKE $%d)", n, n, n))
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page, pageSize := NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY c.rating DESC, c.created_at DESC LIMIT %d OFFSET %d", publicCourseColumns, baseQuery, pageSize, offset)
	courses := []models.PublicCourse{}
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list public courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count public courses: %w", err)
	}

	return courses, total, nil
}

// FindPublicByID returns a published course. Unpublished and missing
// courses both yield sql.ErrNoRows.
func (r *CourseRepository) FindPublicByID(ctx context.Context, id string) (*models.PublicCourse, error) {
	const query = `SELECT ` + publicCourseColumns + ` FROM courses c LEFT JOIN users u ON u.id = c.instructor_id WHERE c.id = $1 AND c.is_public = TRUE LIMIT 1`
	var course models.PublicCourse
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find public course: %w", err)
	}
	return &course, nil
}

// IsPublic reports whether the course exists and is published.
func (r *CourseRepository) IsPublic(ctx context.Context, id string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1 AND is_public = TRUE)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("check course visibility: %w", err)
	}
	return exists, nil
}

func instructorScope(instructorID string) (string, []interface{}) {
	if instructorID == "" {
		return "", nil
	}
	return " WHERE instructor_id = $1", []interface{}{instructorID}
}

// MaxCatalogPage bounds the page number so the OFFSET stays in range.
const MaxCatalogPage = 10000

// NormalizePage clamps paging input to the catalog defaults.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxCatalogPage {
		page = MaxCatalogPage
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
