package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	WS            *handler.WSHandler
	Monitor       *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work owned by middlewares.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(middleware.Brotli())

	// ─── 0. Public Group (No Auth) ─────────────────────────────────────
	publicAPI := api.Group("/public")
	publicAPI.Use(middleware.CacheControl(60))
	{
		publicAPI.GET("/classes", handlers.StudentPortal.ListClasses)
	}

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(ctx, 30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := api.Group("/auth")
	{
		auth.POST("/student/login", authLimiter.Middleware(), handlers.Auth.StudentLogin)
		auth.POST("/admin/login", authLimiter.Middleware(), handlers.Auth.AdminLogin)
		auth.GET("/me", middleware.RequireAnyJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Student Group (JWT) ────────────────────────────────────────
	studentAPI := api.Group("/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService))
	{
		studentAPI.GET("/exams", handlers.StudentPortal.GetLobby)
		studentAPI.POST("/heartbeat", handlers.StudentPortal.Heartbeat)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/session", handlers.WS.SessionStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := api.Group("/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/stats", handlers.Monitor.GetStats)
		adminAPI.GET("/presence/stream", handlers.Monitor.PresenceStream)
		adminAPI.GET("/results", handlers.Monitor.ListResults)
		adminAPI.PUT("/results/score", handlers.Monitor.UpdateScore)
	}

	return router
}
