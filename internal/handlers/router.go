package handlers

import (
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NeveIsa/LEAP2/internal/auth"
	"github.com/NeveIsa/LEAP2/internal/config"
	"github.com/NeveIsa/LEAP2/internal/experiment"
	"github.com/NeveIsa/LEAP2/internal/middleware"
	"github.com/NeveIsa/LEAP2/internal/prometrics"
)

// NewRouter assembles the full HTTP surface over the loaded experiments.
func NewRouter(cfg *config.Config, experiments *experiment.Manager, sessions *auth.SessionStore) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	if cfg.CORSOrigin != "" {
		router.Use(middleware.CORS(cfg.CORSOrigin))
	}

	sessionTTL := time.Duration(cfg.SessionTTLHours) * time.Hour

	rpcHandler := NewRPCHandler(experiments)
	logHandler := NewLogHandler(experiments)
	adminHandler := NewAdminHandler(experiments)
	authHandler := NewAuthHandler(sessions, cfg.CredentialsPath(), sessionTTL)
	expHandler := NewExperimentHandler(experiments)
	uiHandler := NewUIHandler(experiments, cfg.DefaultExperiment)

	router.GET("/metrics", gin.WrapH(prometrics.Handler()))

	api := router.Group("/api")
	api.GET("/experiments", expHandler.List)
	api.GET("/health", expHandler.Health)
	api.GET("/auth-status", authHandler.AuthStatus)

	rl := cfg.RateLimit
	router.POST("/login", limited(rl.LoginPerMinute, rl.LoginBurst, authHandler.Login)...)
	router.POST("/logout", authHandler.Logout)

	exp := router.Group("/exp/:experiment")
	exp.POST("/call", limited(rl.CallPerMinute, rl.CallBurst, rpcHandler.Call)...)
	exp.GET("/functions", rpcHandler.Functions)
	exp.GET("/logs", logHandler.Logs)
	exp.GET("/log-options", logHandler.LogOptions)
	exp.GET("/is-registered", rpcHandler.IsRegistered)
	exp.GET("/readme", expHandler.Readme)
	// Bare /ui reaches this via gin's trailing slash redirect.
	exp.GET("/ui/*filepath", uiHandler.Serve)

	admin := exp.Group("/admin")
	admin.Use(middleware.RequireAdmin(sessions))
	admin.POST("/add-student", adminHandler.AddStudent)
	admin.GET("/students", adminHandler.ListStudents)
	admin.POST("/delete-student", adminHandler.DeleteStudent)
	admin.POST("/reload-functions", adminHandler.ReloadFunctions)

	router.Static("/static", filepath.Join(cfg.UIDir(), "shared"))
	router.GET("/", uiHandler.Root)

	return router
}

// limited prepends a per-IP rate limiter when perMinute is positive.
func limited(perMinute, burst int, h gin.HandlerFunc) []gin.HandlerFunc {
	if perMinute <= 0 {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{middleware.RateLimitMiddleware(perMinute, burst), h}
}
