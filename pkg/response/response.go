package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

// ErrorBody is the contract for every failed request.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// JSON sends a success payload as-is.
func JSON(c *gin.Context, status int, payload interface{}) {
	noStore(c)
	c.JSON(status, payload)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, payload interface{}) {
	JSON(c, http.StatusCreated, payload)
}

// Message sends `{"message": ...}` merged with optional extra fields.
func Message(c *gin.Context, status int, message string, extra ...gin.H) {
	body := gin.H{"message": message}
	for _, e := range extra {
		for k, v := range e {
			body[k] = v
		}
	}
	JSON(c, status, body)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Status >= http.StatusInternalServerError && appErr.Err != nil {
		_ = c.Error(appErr.Err)
	}
	noStore(c)
	c.JSON(appErr.Status, ErrorBody{Message: appErr.Message, Code: appErr.Code})
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
