package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type fakeEnrollmentService struct {
	created bool
	err     error
	lastReq models.EnrollRequest
}

func (f *fakeEnrollmentService) Enroll(ctx context.Context, userID string, req models.EnrollRequest) (*models.Enrollment, bool, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, false, f.err
	}
	return &models.Enrollment{UserID: userID, CourseID: req.CourseID}, f.created, nil
}

func (f *fakeEnrollmentService) ListMine(ctx context.Context, userID string) ([]models.EnrolledCourse, error) {
	return []models.EnrolledCourse{{EnrollmentID: "e1", CourseID: "c1", Title: "Intro to Go", Instructor: "Unknown Instructor", EnrolledAt: time.Now()}}, f.err
}

func (f *fakeEnrollmentService) LearnerStats(ctx context.Context, userID string) (*models.LearnerStats, error) {
	return &models.LearnerStats{Total: 2, Active: 1, Completed: 1}, f.err
}

var learnerSession = sessionFor("l1", models.RoleLearner)

func TestEnrollmentHandlerEnroll(t *testing.T) {
	svc := &fakeEnrollmentService{created: true}
	handler := NewEnrollmentHandler(svc)

	c, rec := newContext(http.MethodPost, "/api/enrollments", `{"courseId":"c1"}`, learnerSession)
	handler.Enroll(c)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Enrolled successfully", decodeBody(t, rec)["message"])
	assert.Equal(t, "c1", svc.lastReq.CourseID)

	svc.created = false
	c, rec = newContext(http.MethodPost, "/api/enrollments", `{"courseId":"c1"}`, learnerSession)
	handler.Enroll(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Already enrolled in this course", decodeBody(t, rec)["message"])
}

func TestEnrollmentHandlerErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		claims  bool
		status  int
		message string
	}{
		{"unauthenticated", nil, false, http.StatusUnauthorized, "Unauthorized"},
		{"missing course id", appErrors.Clone(appErrors.ErrValidation, "courseId is required"), true, http.StatusBadRequest, "courseId is required"},
		{"course not found", appErrors.Clone(appErrors.ErrNotFound, "Course not found"), true, http.StatusNotFound, "Course not found"},
		{"storage failure", errors.New("db down"), true, http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewEnrollmentHandler(&fakeEnrollmentService{err: tc.err})
			var claims *models.SessionClaims
			if tc.claims {
				claims = learnerSession
			}
			c, rec := newContext(http.MethodPost, "/api/enrollments", `{}`, claims)
			handler.Enroll(c)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, decodeBody(t, rec)["message"])
		})
	}
}

func TestEnrollmentHandlerListAndStats(t *testing.T) {
	handler := NewEnrollmentHandler(&fakeEnrollmentService{})

	c, rec := newContext(http.MethodGet, "/api/enrollments", "", learnerSession)
	handler.List(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	courses := decodeBody(t, rec)["courses"].([]interface{})
	first := courses[0].(map[string]interface{})
	assert.Equal(t, "e1", first["enrollmentId"])
	assert.Equal(t, "Unknown Instructor", first["instructor"])

	c, rec = newContext(http.MethodGet, "/api/learner/stats", "", learnerSession)
	handler.Stats(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody(t, rec)["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["completed"])
}

type stubPinger struct{ err error }

func (s stubPinger) PingContext(ctx context.Context) error { return s.err }

func TestMetricsHandlerReady(t *testing.T) {
	handler := NewMetricsHandler(nil, stubPinger{})
	c, rec := newContext(http.MethodGet, "/ready", "", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	handler = NewMetricsHandler(nil, stubPinger{err: errors.New("refused")})
	c, rec = newContext(http.MethodGet, "/ready", "", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c, rec = newContext(http.MethodGet, "/metrics", "", nil)
	handler.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
