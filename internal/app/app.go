package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/kierachat-backend/internal/data/db"
	"github.com/yungbote/kierachat-backend/internal/http"
	"github.com/yungbote/kierachat-backend/internal/jobs/sweep"
	"github.com/yungbote/kierachat-backend/internal/models"
	"github.com/yungbote/kierachat-backend/internal/observability"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/realtime"
	"github.com/yungbote/kierachat-backend/internal/services"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Models   *models.Registry
	Repos    Repos
	Clients  Clients
	Services Services
	SSEHub   *realtime.SSEHub
	Server   *http.Server

	store        *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// Bootstrap builds the logger and config shared by every command.
func Bootstrap(logMode string) (*logger.Logger, Config, error) {
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, Config{}, fmt.Errorf("init logger: %w", err)
	}
	log.Info("Loading environment variables...")
	return log, LoadConfig(log), nil
}

// OpenDatabase connects and runs AutoMigrate.
func OpenDatabase(log *logger.Logger) (*db.Service, error) {
	store, err := db.Open(log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := store.AutoMigrateAll(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return store, nil
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)

	store, err := OpenDatabase(log)
	if err != nil {
		return nil, err
	}
	theDB := store.DB()

	registry := models.Default()
	ssehub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	serviceset, err := wireServices(theDB, log, cfg, registry, reposet, clients, ssehub)
	if err != nil {
		clients.Close()
		_ = store.Close()
		return nil, err
	}

	handlerset := wireHandlers(log, theDB, registry, serviceset, ssehub)
	middleware := wireMiddleware(log, cfg, serviceset)
	router := wireRouter(log, cfg, handlerset, middleware)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Models:       registry,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		SSEHub:       ssehub,
		Server:       &http.Server{Engine: router},
		store:        store,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background loops: job worker, sweeper and the Redis
// forwarder feeding this instance's hub.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Clients.SSEBus != nil {
		hub := a.SSEHub
		if err := a.Clients.SSEBus.StartForwarder(ctx, func(m realtime.SSEMessage) { hub.Broadcast(m) }); err != nil {
			cancel()
			return fmt.Errorf("start SSE forwarder: %w", err)
		}
	}
	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}
	if a.Services.Sweeper != nil {
		a.Services.Sweeper.Start(ctx)
	}
	return nil
}

// Run serves HTTP until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("Server listening", "addr", addr)
	return a.Server.Run(ctx, addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Wait()
	}
	a.Clients.Close()
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

// SweepOnce runs a single sweep pass without the HTTP server or the model
// clients. Events go to Redis when configured so connected browsers still
// see the force-failed placeholders.
func SweepOnce(ctx context.Context, log *logger.Logger, cfg Config) (sweep.Report, error) {
	store, err := OpenDatabase(log)
	if err != nil {
		return sweep.Report{}, err
	}
	defer store.Close()

	var clients Clients
	if cfg.RedisAddr != "" {
		c, err := wireClientsForSweep(log, cfg)
		if err != nil {
			return sweep.Report{}, err
		}
		clients = c
		defer clients.Close()
	}

	theDB := store.DB()
	reposet := wireRepos(theDB, log)
	notifier := services.NewChatNotifier(wireEmitter(log, clients, realtime.NewSSEHub(log)))
	jobService := services.NewJobService(theDB, log, reposet.JobRun)
	return wireSweeper(theDB, log, cfg, reposet, jobService, notifier).SweepOnce(ctx)
}
