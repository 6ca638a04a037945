package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

type instructorProvisioner interface {
	CreateInstructor(ctx context.Context, actor models.Actor, req models.CreateInstructorRequest, meta models.RequestMeta) (*models.UserInfo, error)
}

// AdminHandler exposes admin-only account management.
type AdminHandler struct {
	users instructorProvisioner
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(users instructorProvisioner) *AdminHandler {
	return &AdminHandler{users: users}
}

// CreateInstructor godoc
// @Summary Create instructor
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body models.CreateInstructorRequest true "Instructor payload"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Failure 409 {object} response.ErrorBody
// @Router /admin/instructors [post]
func (h *AdminHandler) CreateInstructor(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}

	var req models.CreateInstructorRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.CreateInstructor(c.Request.Context(), actor, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusCreated, "Instructor created successfully", gin.H{"user": user})
}
