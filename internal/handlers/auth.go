package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NeveIsa/LEAP2/internal/auth"
	"github.com/NeveIsa/LEAP2/internal/middleware"
	"github.com/NeveIsa/LEAP2/pkg/logger"
)

// AuthHandler handles admin login, logout and session status
type AuthHandler struct {
	sessions        *auth.SessionStore
	credentialsPath string
	sessionTTL      time.Duration
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(sessions *auth.SessionStore, credentialsPath string, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		sessions:        sessions,
		credentialsPath: credentialsPath,
		sessionTTL:      sessionTTL,
	}
}

// LoginRequest carries the admin password
type LoginRequest struct {
	Password string `json:"password"`
}

// Login verifies the admin password and opens a session.
// Credentials are re-read on every attempt so a password change takes
// effect without a restart.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}

	creds, err := auth.LoadCredentials(h.credentialsPath)
	if err != nil {
		logger.Error("failed to load admin credentials", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Authentication unavailable"})
		return
	}
	if creds == nil || !creds.Verify(req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid password"})
		return
	}

	token, err := h.sessions.Create()
	if err != nil {
		logger.Error("failed to create session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Authentication unavailable"})
		return
	}

	c.SetCookie(middleware.SessionCookie, token, int(h.sessionTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "token": token})
}

// Logout revokes the current session, if any
func (h *AuthHandler) Logout(c *gin.Context) {
	if token := middleware.SessionTokenFromContext(c); token != "" {
		h.sessions.Revoke(token)
	}
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AuthStatus reports whether the caller holds a valid admin session
func (h *AuthHandler) AuthStatus(c *gin.Context) {
	token := middleware.SessionTokenFromContext(c)
	c.JSON(http.StatusOK, gin.H{"authenticated": token != "" && h.sessions.Validate(token)})
}
