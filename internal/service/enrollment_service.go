package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.EnrolledCourse, error)
	StatsByUser(ctx context.Context, userID string) (*models.LearnerStats, error)
}

type publicCourseChecker interface {
	IsPublic(ctx context.Context, id string) (bool, error)
}

// EnrollmentService links users to published courses.
type EnrollmentService struct {
	repo    enrollmentRepository
	courses publicCourseChecker
	metrics *MetricsService
	logger  *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses publicCourseChecker, metrics *MetricsService, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, metrics: metrics, logger: logger}
}

// Enroll adds the user to a public course. created is false when the user was
// already enrolled; that is not an error.
func (s *EnrollmentService) Enroll(ctx context.Context, userID string, req models.EnrollRequest) (*models.Enrollment, bool, error) {
	courseID := strings.TrimSpace(req.CourseID)
	if courseID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "courseId is required")
	}
	if !isUUID(courseID) {
		return nil, false, courseNotFound
	}

	public, err := s.courses.IsPublic(ctx, courseID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to load course")
	}
	if !public {
		return nil, false, courseNotFound
	}

	enrollment := &models.Enrollment{
		UserID:     userID,
		CourseID:   courseID,
		IsActive:   true,
		IsComplete: false,
	}
	created, err := s.repo.Create(ctx, enrollment)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to enroll")
	}
	s.metrics.ObserveEnrollment(created)
	if created {
		s.logger.Info("user enrolled", zap.String("user_id", userID), zap.String("course_id", courseID))
	}
	return enrollment, created, nil
}

// ListMine returns the user's enrollments newest first.
func (s *EnrollmentService) ListMine(ctx context.Context, userID string) ([]models.EnrolledCourse, error) {
	courses, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to load enrollments")
	}
	if courses == nil {
		courses = []models.EnrolledCourse{}
	}
	return courses, nil
}

// LearnerStats summarises the user's enrollments.
func (s *EnrollmentService) LearnerStats(ctx context.Context, userID string) (*models.LearnerStats, error) {
	stats, err := s.repo.StatsByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to load stats")
	}
	return stats, nil
}
