package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// SessionCookie writes and clears the cookie carrying the session token.
type SessionCookie struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

// Set stores token as an HttpOnly, SameSite=Lax cookie scoped to /.
func (s SessionCookie) Set(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.name(), token, int(s.TTL.Seconds()), "/", "", s.Secure, true)
}

// Clear expires the cookie immediately.
func (s SessionCookie) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.name(), "", -1, "/", "", s.Secure, true)
}

func (s SessionCookie) name() string {
	if s.Name == "" {
		return "auth_token"
	}
	return s.Name
}
