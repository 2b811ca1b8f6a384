package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/NeveIsa/LEAP2/internal/auth"
)

// SessionCookie is the cookie carrying the admin session token.
const SessionCookie = "admin_session"

const adminContextName = "admin"

// RequireAdmin validates the admin session token and aborts with 401 when
// it is missing or expired. Admin-gated handlers sit behind this.
func RequireAdmin(sessions *auth.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionTokenFromContext(c)
		if token == "" || !sessions.Validate(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}

		c.Set(adminContextName, auth.Context{Admin: true, Token: token})
		c.Next()
	}
}

// AdminFromContext retrieves the validated admin auth context, if any.
func AdminFromContext(c *gin.Context) (auth.Context, bool) {
	val, ok := c.Get(adminContextName)
	if !ok {
		return auth.Context{}, false
	}
	ac, ok := val.(auth.Context)
	return ac, ok
}

// SessionTokenFromContext extracts the session token from the session
// cookie or the Authorization header.
func SessionTokenFromContext(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
