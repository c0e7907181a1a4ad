package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/handler"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	WS            *handler.WSHandler
	Monitor       *handler.MonitorHandler
	System        *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
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
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", handlers.System.Health)

	// Progress snapshots arrive every few seconds per student; a reload storm
	// should not be able to monopolize the server.
	studentLimiter := middleware.NewRateLimiter(120, time.Minute)

	// ─── 1. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
		middleware.NoStore(),
		studentLimiter.Middleware(),
		middleware.Brotli(),
	)
	{
		studentAPI.GET("/exams/:exam_id/session", handlers.StudentPortal.GetExamSession)
		studentAPI.GET("/exams/:exam_id/progress", handlers.StudentPortal.GetProgress)
		studentAPI.POST("/exams/:exam_id/progress", handlers.StudentPortal.SaveProgress)
		studentAPI.POST("/exams/:exam_id/submission", handlers.StudentPortal.Submit)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireStudentWSAuth(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/student/exams/:exam_id/session", handlers.WS.ExamSessionStream)
	}

	// ─── 3. Proctor Group (JWT + RBAC) ─────────────────────────────────
	// SSE streams are not compressed: brotli buffers would hold events back.
	proctorAPI := router.Group("/api/v1/proctor")
	proctorAPI.Use(middleware.RequireProctorJWT(authService))
	{
		proctorAPI.GET("/exams/:exam_id/incidents",
			middleware.RequirePermission(service.PermissionMonitorExams),
			handlers.Monitor.ExamIncidentsSSE,
		)
		proctorAPI.GET("/system/metrics",
			handlers.System.SystemMetricsSSE, // Open to all proctors
		)
	}

	return router
}
