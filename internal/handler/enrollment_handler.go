package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, userID string, req models.EnrollRequest) (*models.Enrollment, bool, error)
	ListMine(ctx context.Context, userID string) ([]models.EnrolledCourse, error)
	LearnerStats(ctx context.Context, userID string) (*models.LearnerStats, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	service enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(svc enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Enroll godoc
// @Summary Enroll in a public course
// @Description Enrolling twice is not an error; the second call answers 200.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body models.EnrollRequest true "Enrollment payload"
// @Success 200 {object} map[string]interface{}
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.EnrollRequest
	if !bindJSON(c, &req) {
		return
	}

	_, created, err := h.service.Enroll(c.Request.Context(), actor.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !created {
		response.Message(c, http.StatusOK, "Already enrolled in this course")
		return
	}
	response.Message(c, http.StatusCreated, "Enrolled successfully")
}

// List godoc
// @Summary My enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} response.ErrorBody
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	courses, err := h.service.ListMine(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"courses": courses})
}

// Stats godoc
// @Summary Learner enrollment counts
// @Tags Learner
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Router /learner/stats [get]
func (h *EnrollmentHandler) Stats(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	stats, err := h.service.LearnerStats(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"stats": stats})
}
