package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	visitorCookieName   = "cl_visitor_id"
	visitorCookieMaxAge = 365 * 24 * 60 * 60
)

// ensureVisitorID 返回匿名访客标识，首次访问时签发一年有效的 cookie，用于浏览去重。
func (a *API) ensureVisitorID(c *gin.Context) string {
	if id, err := c.Cookie(visitorCookieName); err == nil {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}

	visitorID := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(visitorCookieName, visitorID, visitorCookieMaxAge, "/", "", c.Request.TLS != nil, true)
	return visitorID
}
