package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/export"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type courseService interface {
	Create(ctx context.Context, actor models.Actor, input models.CourseInput, meta models.RequestMeta) (*models.Course, error)
	Update(ctx context.Context, actor models.Actor, id string, patch models.CoursePatch, meta models.RequestMeta) (*models.Course, bool, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Course, error)
	ListMine(ctx context.Context, actor models.Actor) ([]models.Course, error)
	Stats(ctx context.Context, actor models.Actor) (*models.CourseStats, error)
	Export(ctx context.Context, actor models.Actor, format export.Format) ([]byte, error)
}

// CourseHandler serves course management for instructors and admins.
type CourseHandler struct {
	service courseService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(svc courseService) *CourseHandler {
	return &CourseHandler{service: svc}
}

// List godoc
// @Summary List managed courses
// @Description Instructors see their own courses, admins see all. Newest first.
// @Tags Instructor
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Router /instructor/courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	courses, err := h.service.ListMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"courses": courses})
}

// Create godoc
// @Summary Create course
// @Tags Instructor
// @Accept json
// @Produce json
// @Param payload body models.CourseInput true "Course payload"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Router /instructor/courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var input models.CourseInput
	if !bindJSON(c, &input) {
		return
	}
	course, err := h.service.Create(c.Request.Context(), actor, input, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusCreated, "Course created", gin.H{"course": course})
}

// Get godoc
// @Summary Get managed course
// @Tags Instructor
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Router /instructor/courses/{courseId} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	course, err := h.service.Get(c.Request.Context(), actor, c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"course": course})
}

// Update godoc
// @Summary Partially update course
// @Description Only fields present in the body are validated and applied.
// @Tags Instructor
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body models.CoursePatch true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Router /instructor/courses/{courseId} [patch]
func (h *CourseHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var patch models.CoursePatch
	if !bindJSON(c, &patch) {
		return
	}
	course, changed, err := h.service.Update(c.Request.Context(), actor, c.Param("courseId"), patch, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !changed {
		response.Message(c, http.StatusOK, "No changes to apply")
		return
	}
	response.Message(c, http.StatusOK, "Course updated", gin.H{"course": course})
}

// Stats godoc
// @Summary Course counts
// @Tags Instructor
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /instructor/courses/stats [get]
func (h *CourseHandler) Stats(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"stats": stats})
}

// Export godoc
// @Summary Export managed courses
// @Tags Instructor
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.ErrorBody
// @Router /instructor/courses/export [get]
func (h *CourseHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf"))
		return
	}
	body, err := h.service.Export(c.Request.Context(), actor, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("courses-%s.%s", time.Now().UTC().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, format.ContentType(), body)
}
