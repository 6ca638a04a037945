package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

// ContextUserKey is the gin context key storing session claims.
const ContextUserKey = "currentUser"

// TokenVerifier validates a signed session token.
type TokenVerifier interface {
	Verify(token string) (*models.SessionClaims, error)
}

// Decision is the outcome kind of an authorization check.
type Decision int

const (
	Unauthenticated Decision = iota
	Forbidden
	Authorized
)

// AuthResult is the single answer both gates act on. Claims is set for
// Forbidden and Authorized; Err explains Unauthenticated.
type AuthResult struct {
	Decision Decision
	Claims   *models.SessionClaims
	Err      error
}

// Authorizer decides whether a request carries a session whose role is
// allowed.
type Authorizer struct {
	verifier   TokenVerifier
	cookieName string
}

// NewAuthorizer builds an Authorizer reading the bearer header first and the
// named cookie second.
func NewAuthorizer(verifier TokenVerifier, cookieName string) *Authorizer {
	if cookieName == "" {
		cookieName = "auth_token"
	}
	return &Authorizer{verifier: verifier, cookieName: cookieName}
}

// CookieName is the session cookie consulted by Check.
func (a *Authorizer) CookieName() string {
	return a.cookieName
}

// Check evaluates req. An empty allowed list admits every role.
func (a *Authorizer) Check(req *http.Request, allowed ...models.Role) AuthResult {
	token := a.token(req)
	if token == "" {
		return AuthResult{Decision: Unauthenticated, Err: appErrors.Clone(appErrors.ErrUnauthorized, "Authentication required")}
	}

	claims, err := a.verifier.Verify(token)
	if err != nil {
		return AuthResult{Decision: Unauthenticated, Err: err}
	}

	if len(allowed) == 0 {
		return AuthResult{Decision: Authorized, Claims: claims}
	}
	for _, role := range allowed {
		if claims.Role == role {
			return AuthResult{Decision: Authorized, Claims: claims}
		}
	}
	return AuthResult{Decision: Forbidden, Claims: claims}
}

func (a *Authorizer) token(req *http.Request) string {
	if header := req.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}
	if cookie, err := req.Cookie(a.cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireAuth protects routes by requiring a valid session of any role.
func RequireAuth(authz *Authorizer) gin.HandlerFunc {
	return RequireRoles(authz)
}

// OptionalAuth attaches claims when a valid session is present but does not
// block.
func OptionalAuth(authz *Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if result := authz.Check(c.Request); result.Decision == Authorized {
			c.Set(ContextUserKey, result.Claims)
		}
		c.Next()
	}
}
