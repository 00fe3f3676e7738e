package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/handler"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt       *handler.AttemptHandler
	AttemptStream *handler.AttemptStreamHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	limiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{middleware.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request id and access log for every route, the stream included.
	router.Use(middleware.RequestContext(log))

	router.GET("/health", handlers.System.Health)

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudent(authService),
		limiter.Middleware(),
	)
	{
		studentAPI.GET("/attempts", handlers.Attempt.History)
		studentAPI.GET("/attempts/:attempt_id/result", handlers.Attempt.Result)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireStudentStream(authService),
		limiter.Middleware(),
	)
	{
		ws.GET("/student/attempts/stream", handlers.AttemptStream.Stream)
	}

	// ─── 3. System Group (JWT) ─────────────────────────────────────────
	system := router.Group("/api/v1/system")
	system.Use(middleware.RequireStudent(authService))
	{
		system.GET("/metrics", handlers.System.MetricsSSE)
	}

	return router
}
