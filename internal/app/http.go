package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/kierachat-backend/internal/http"
	httpH "github.com/yungbote/kierachat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/kierachat-backend/internal/http/middleware"
	"github.com/yungbote/kierachat-backend/internal/models"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/realtime"
)

type Middleware struct {
	Auth        *httpMW.AuthMiddleware
	SendLimiter *httpMW.SendLimiter
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Auth     *httpH.AuthHandler
	Models   *httpH.ModelsHandler
	Chat     *httpH.ChatHandler
	Settings *httpH.SettingsHandler
	Upload   *httpH.UploadHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, registry *models.Registry, services Services, sseHub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	h := Handlers{
		Health:   httpH.NewHealthHandler(db),
		Auth:     httpH.NewAuthHandler(log, services.Auth),
		Models:   httpH.NewModelsHandler(registry),
		Chat:     httpH.NewChatHandler(services.Chat, services.Auth),
		Settings: httpH.NewSettingsHandler(services.Settings),
		Realtime: httpH.NewRealtimeHandler(log, sseHub),
	}
	if services.Uploads != nil {
		h.Upload = httpH.NewUploadHandler(services.Uploads)
	}
	return h
}

func wireMiddleware(log *logger.Logger, cfg Config, services Services) Middleware {
	return Middleware{
		Auth:        httpMW.NewAuthMiddleware(log, services.Auth),
		SendLimiter: httpMW.NewSendLimiter(cfg.SendRatePerMinute, cfg.SendBurst),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *gin.Engine {
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return http.NewRouter(http.RouterConfig{
		Log:             log,
		ServiceName:     serviceName,
		CORSOrigins:     cfg.CORSOrigins,
		AuthMiddleware:  middleware.Auth,
		SendLimiter:     middleware.SendLimiter,
		AuthHandler:     handlers.Auth,
		ChatHandler:     handlers.Chat,
		ModelsHandler:   handlers.Models,
		SettingsHandler: handlers.Settings,
		UploadHandler:   handlers.Upload,
		RealtimeHandler: handlers.Realtime,
		HealthHandler:   handlers.Health,
	})
}
