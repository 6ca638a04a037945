package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

// RequireRoles enforces role-based access control. Missing or invalid
// sessions get 401, a role outside the list gets 403.
func RequireRoles(authz *Authorizer, roles ...models.Role) gin.HandlerFunc {
	return RequireRolesWithMessage(authz, "", roles...)
}

// RequireRolesWithMessage is RequireRoles with a custom 403 message.
func RequireRolesWithMessage(authz *Authorizer, forbidden string, roles ...models.Role) gin.HandlerFunc {
	if forbidden == "" {
		forbidden = "Insufficient permissions"
	}
	return func(c *gin.Context) {
		result := authz.Check(c.Request, roles...)
		switch result.Decision {
		case Authorized:
			c.Set(ContextUserKey, result.Claims)
			c.Next()
		case Forbidden:
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, forbidden))
			c.Abort()
		default:
			response.Error(c, result.Err)
			c.Abort()
		}
	}
}

// ClaimsFromContext returns the claims stored by the gates, or nil.
func ClaimsFromContext(c *gin.Context) *models.SessionClaims {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}
