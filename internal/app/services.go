package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/kierachat-backend/internal/jobs/pipeline/chat_respond"
	"github.com/yungbote/kierachat-backend/internal/jobs/pipeline/chat_title"
	jobruntime "github.com/yungbote/kierachat-backend/internal/jobs/runtime"
	"github.com/yungbote/kierachat-backend/internal/jobs/sweep"
	"github.com/yungbote/kierachat-backend/internal/jobs/worker"
	"github.com/yungbote/kierachat-backend/internal/models"
	chatmod "github.com/yungbote/kierachat-backend/internal/modules/chat"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/realtime"
	"github.com/yungbote/kierachat-backend/internal/services"
	"github.com/yungbote/kierachat-backend/internal/tools"
)

type Services struct {
	// Auth + domain
	Auth     services.AuthService
	Chat     services.ChatService
	Settings services.SettingsService
	Uploads  services.UploadService

	// Jobs + notifications
	Emitter      services.SSEEmitter
	ChatNotifier services.ChatNotifier
	JobService   services.JobService

	// Job infra
	Tools       *tools.Executor
	JobRegistry *jobruntime.Registry
	JobWorker   *worker.Worker
	Sweeper     *sweep.Sweeper
}

// wireEmitter prefers the Redis bus so every instance's hub sees the event;
// without it events only reach clients on this process.
func wireEmitter(log *logger.Logger, clients Clients, hub *realtime.SSEHub) services.SSEEmitter {
	if clients.SSEBus != nil {
		return &services.RedisEmitter{Bus: clients.SSEBus, Log: log.With("component", "RedisEmitter")}
	}
	return &services.HubEmitter{Hub: hub}
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	registry *models.Registry,
	repos Repos,
	clients Clients,
	hub *realtime.SSEHub,
) (Services, error) {
	log.Info("Wiring services...")

	emitter := wireEmitter(log, clients, hub)
	notifier := services.NewChatNotifier(emitter)
	jobService := services.NewJobService(db, log, repos.JobRun)

	authService := services.NewAuthService(log, cfg.JWTSecretKey, cfg.AccessTokenTTL, cfg.AnonymousTokenTTL)
	chatService := services.NewChatService(db, log, registry, repos.ChatSession, repos.ChatMessage, jobService, notifier)
	settingsService := services.NewSettingsService(db, log, registry, repos.UserSettings, repos.ChatSession, repos.ChatMessage)

	var uploadService services.UploadService
	if clients.ObjectStore != nil {
		uploadService = services.NewUploadService(log, clients.ObjectStore)
	}

	executor := tools.NewExecutor(log, tools.DefaultParallelism,
		tools.NewWebSearchTool(log, tools.SearchConfig{APIKey: cfg.SerperAPIKey}),
		tools.NewExtractContentTool(log, tools.ExtractConfig{AllowPrivateNetworks: cfg.AllowPrivateFetch}),
	)

	chatUsecases := chatmod.New(chatmod.UsecasesDeps{
		DB:       db,
		Log:      log,
		AI:       clients.OpenRouter,
		Titles:   clients.Titles,
		Models:   registry,
		Tools:    executor,
		Sessions: repos.ChatSession,
		Messages: repos.ChatMessage,
		JobRuns:  repos.JobRun,
		Notify:   notifier,
	})

	jobRegistry := jobruntime.NewRegistry()
	if err := jobRegistry.Register(chat_respond.New(log, chatUsecases)); err != nil {
		return Services{}, fmt.Errorf("register chat_respond: %w", err)
	}
	if err := jobRegistry.Register(chat_title.New(log, chatUsecases)); err != nil {
		return Services{}, fmt.Errorf("register chat_title: %w", err)
	}

	jobWorker := worker.NewWorker(db, log, repos.JobRun, jobRegistry, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		MaxAttempts:  cfg.JobMaxAttempts,
		StaleRunning: cfg.JobStaleRunning,
	})

	return Services{
		Auth:         authService,
		Chat:         chatService,
		Settings:     settingsService,
		Uploads:      uploadService,
		Emitter:      emitter,
		ChatNotifier: notifier,
		JobService:   jobService,
		Tools:        executor,
		JobRegistry:  jobRegistry,
		JobWorker:    jobWorker,
		Sweeper:      wireSweeper(db, log, cfg, repos, jobService, notifier),
	}, nil
}

func wireSweeper(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, jobs services.JobService, notify services.ChatNotifier) *sweep.Sweeper {
	return sweep.NewSweeper(db, log, repos.ChatSession, repos.ChatMessage, repos.JobRun, jobs, notify, sweep.Config{
		Interval:          cfg.SweepInterval,
		GenerationTimeout: cfg.GenerationTimeout,
		MaxAttempts:       cfg.JobMaxAttempts,
	})
}
