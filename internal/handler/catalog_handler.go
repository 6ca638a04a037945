package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type catalogService interface {
	ListPublic(ctx context.Context, filter models.CourseFilter) (*models.PublicCourseList, error)
	GetPublic(ctx context.Context, id string) (*models.PublicCourse, error)
}

// CatalogHandler serves the public, unauthenticated course catalog.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(svc catalogService) *CatalogHandler {
	return &CatalogHandler{service: svc}
}

// List godoc
// @Summary Browse public courses
// @Tags Courses
// @Produce json
// @Param category query string false "Category"
// @Param level query string false "Beginner, Intermediate or Advanced"
// @Param search query string false "Matches title, category or skills"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} models.PublicCourseList
// @Failure 400 {object} response.ErrorBody
// @Router /courses [get]
func (h *CatalogHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	list, err := h.service.ListPublic(c.Request.Context(), models.CourseFilter{
		Category: c.Query("category"),
		Level:    models.CourseLevel(c.Query("level")),
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list)
}

// Get godoc
// @Summary Public course detail
// @Tags Courses
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} response.ErrorBody
// @Router /courses/{courseId} [get]
func (h *CatalogHandler) Get(c *gin.Context) {
	course, err := h.service.GetPublic(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Course fetched successfully", gin.H{"course": course})
}
