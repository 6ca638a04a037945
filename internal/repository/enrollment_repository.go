package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/learnhub-api/internal/models"
)

// EnrollmentRepository handles persistence for enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs a new repository instance.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create inserts the enrollment unless the (user, course) pair already
// exists. It reports whether a row was written; a concurrent duplicate is
// settled by the unique constraint rather than a prior lookup.
func (r *EnrollmentRepository) Create(ctx context.Context, e *models.Enrollment) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now().UTC()
	}

	const query = `INSERT INTO enrollments (id, user_id, course_id, enrolled_at, is_complete, is_active)
		VALUES (:id, :user_id, :course_id, :enrolled_at, :is_complete, :is_active)
		ON CONFLICT (user_id, course_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, e)
	if err != nil {
		return false, fmt.Errorf("create enrollment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create enrollment rows affected: %w", err)
	}
	return n > 0, nil
}

// ListByUser returns the user's enrollments joined with course and
// instructor names, newest first.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.EnrolledCourse, error) {
	const query = `SELECT e.id AS enrollment_id, c.id AS course_id, c.title, COALESCE(u.name, 'Unknown Instructor') AS instructor, e.enrolled_at
		FROM enrollments e
		JOIN courses c ON c.id = e.course_id
		LEFT JOIN users u ON u.id = c.instructor_id
		WHERE e.user_id = $1
		ORDER BY e.enrolled_at DESC`
	courses := []models.EnrolledCourse{}
	if err := r.db.SelectContext(ctx, &courses, query, userID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return courses, nil
}

// StatsByUser aggregates the user's enrollment counts.
func (r *EnrollmentRepository) StatsByUser(ctx context.Context, userID string) (*models.LearnerStats, error) {
	const query = `SELECT COUNT(*) AS total,
		COUNT(*) FILTER (WHERE NOT is_complete) AS active,
		COUNT(*) FILTER (WHERE is_complete) AS completed
		FROM enrollments WHERE user_id = $1`
	var stats models.LearnerStats
	if err := r.db.GetContext(ctx, &stats, query, userID); err != nil {
		return nil, fmt.Errorf("learner stats: %w", err)
	}
	return &stats, nil
}
