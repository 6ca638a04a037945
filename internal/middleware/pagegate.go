package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/response"
)

const (
	dashboardPath = "/dashboard"
	loginPath     = "/login"
	registerPath  = "/register"
)

// PageGate redirects page requests based on the session. Paths outside
// /dashboard, /login and /register pass through untouched.
//
// Without a valid session /dashboard* redirects to /login. With one, /login
// and /register redirect to /dashboard, and /dashboard itself redirects to the
// role's landing page. /dashboard/admin* answers 404 for non-admins.
func PageGate(authz *Authorizer, secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimSuffix(c.Request.URL.Path, "/")
		if path == "" {
			path = "/"
		}

		dashboard := path == dashboardPath || strings.HasPrefix(path, dashboardPath+"/")
		authPage := path == loginPath || path == registerPath
		if !dashboard && !authPage {
			c.Next()
			return
		}

		result := authz.Check(c.Request)
		if result.Decision != Authorized {
			if hasCookie(c.Request, authz.CookieName()) {
				clearCookie(c, authz.CookieName(), secureCookie)
			}
			if dashboard {
				redirect(c, loginPath)
				return
			}
			c.Next()
			return
		}

		role := result.Claims.Role
		switch {
		case authPage:
			redirect(c, dashboardPath)
		case path == dashboardPath:
			redirect(c, dashboardPath+"/"+string(role))
		case isAdminPage(path) && role != models.RoleAdmin:
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "Page not found"))
			c.Abort()
		default:
			c.Set(ContextUserKey, result.Claims)
			c.Next()
		}
	}
}

func isAdminPage(path string) bool {
	admin := dashboardPath + "/admin"
	return path == admin || strings.HasPrefix(path, admin+"/")
}

func redirect(c *gin.Context, location string) {
	c.Redirect(http.StatusSeeOther, location)
	c.Abort()
}

func hasCookie(req *http.Request, name string) bool {
	_, err := req.Cookie(name)
	return err == nil
}

// clearCookie expires the session cookie on the client.
func clearCookie(c *gin.Context, name string, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", secure, true)
}
