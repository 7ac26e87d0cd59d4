package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/kierachat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/kierachat-backend/internal/http/middleware"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware
	SendLimiter    *httpMW.SendLimiter

	AuthHandler     *httpH.AuthHandler
	ChatHandler     *httpH.ChatHandler
	ModelsHandler   *httpH.ModelsHandler
	SettingsHandler *httpH.SettingsHandler
	UploadHandler   *httpH.UploadHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	// storage ids are path-escaped into a single segment
	r.UseRawPath = true
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	if cfg.AuthMiddleware != nil {
		r.Use(cfg.AuthMiddleware.Identify())
	}
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Public
		if cfg.AuthHandler != nil {
			api.POST("/auth/anonymous", cfg.AuthHandler.IssueAnonymous)
			api.GET("/auth/me", cfg.AuthHandler.Me)
		}
		if cfg.ModelsHandler != nil {
			api.GET("/models", cfg.ModelsHandler.List)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireIdentity())
		}
		limited := func(h gin.HandlerFunc) []gin.HandlerFunc {
			if cfg.SendLimiter == nil {
				return []gin.HandlerFunc{h}
			}
			return []gin.HandlerFunc{cfg.SendLimiter.Middleware(), h}
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		// Chat
		if cfg.ChatHandler != nil {
			h := cfg.ChatHandler
			protected.GET("/sessions", h.ListSessions)
			protected.POST("/sessions", h.CreateSession)
			protected.POST("/sessions/migrate", h.Migrate)
			protected.GET("/sessions/:id", h.GetSession)
			protected.PATCH("/sessions/:id", h.UpdateSession)
			protected.DELETE("/sessions/:id", h.DeleteSession)
			protected.GET("/sessions/:id/access", h.ValidateAccess)
			protected.GET("/sessions/:id/messages", h.ListMessages)
			protected.POST("/sessions/:id/messages", limited(h.SendToSession)...)
			protected.POST("/sessions/:id/regenerate", limited(h.Regenerate)...)
			protected.POST("/messages", limited(h.Send)...)
			protected.POST("/messages/:id/edit", limited(h.EditFrom)...)
			protected.PATCH("/messages/:id", h.UpdateMessage)
		}

		// Uploads
		if cfg.UploadHandler != nil {
			protected.POST("/uploads", cfg.UploadHandler.Create)
			protected.GET("/uploads/:storageId/url", cfg.UploadHandler.FileURL)
		}
	}

	user := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			user.Use(cfg.AuthMiddleware.RequireUser())
		}
		if cfg.SettingsHandler != nil {
			user.GET("/settings", cfg.SettingsHandler.Get)
			user.PUT("/settings", cfg.SettingsHandler.Save)
			user.DELETE("/settings/data", cfg.SettingsHandler.DeleteAllData)
			user.GET("/settings/export", cfg.SettingsHandler.Export)
		}
	}

	return r
}
