package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ujianku/sesi-backend/internal/config"
	"github.com/ujianku/sesi-backend/internal/handler"
	"github.com/ujianku/sesi-backend/internal/middleware"
	"github.com/ujianku/sesi-backend/internal/response"
	"github.com/ujianku/sesi-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Session    *handler.SessionHandler
	Answer     *handler.AnswerHandler
	Transition *handler.TransitionHandler
	History    *handler.HistoryHandler
	WS         *handler.WSHandler
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the login route (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/participant/login", authLimiter.Middleware(), handlers.Auth.Login)

		// Authenticated profile routes
		auth.POST("/participant/logout", middleware.RequireParticipantJWT(authService), handlers.Auth.Logout)
		auth.GET("/participant/me", middleware.RequireParticipantJWT(authService), handlers.Auth.GetProfile)
	}

	// ─── 2. Participant Group (JWT + Single Device) ────────────────────
	participantAPI := router.Group("/api/v1/participant")
	participantAPI.Use(
		middleware.RequireParticipantJWT(authService),
		middleware.CheckSingleDeviceLogin(authService),
	)
	{
		// Session loading (fresh load and resume share one endpoint).
		participantAPI.GET("/sessions/:session_id/continue", handlers.Session.ContinueTest)
		participantAPI.GET("/sessions/:session_id/categories/:category_id/continue", handlers.Session.ContinueCategory)

		// Answer writes (HTTP fallback; the WS stream is the fast path).
		participantAPI.PUT("/sessions/:session_id/questions/:question_id/answer", handlers.Answer.SaveAnswer)
		participantAPI.DELETE("/sessions/:session_id/questions/:question_id/answer", handlers.Answer.ResetAnswer)
		participantAPI.PUT("/sessions/:session_id/questions/:question_id/flag", handlers.Answer.FlagQuestion)

		// Transitions.
		participantAPI.POST("/sessions/:session_id/categories/:category_id/end", handlers.Transition.EndCategory)
		participantAPI.POST("/sessions/:session_id/end", handlers.Transition.EndSession)

		// Score history.
		participantAPI.GET("/history", handlers.History.GetHistory)
	}

	// ─── 3. WebSocket Group (Participant WS Auth) ──────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireParticipantWSAuth(authService))
	{
		ws.GET("/participant/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}
