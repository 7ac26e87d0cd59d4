package app

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/platform/gcp"
	"github.com/yungbote/kierachat-backend/internal/platform/openrouter"
	"github.com/yungbote/kierachat-backend/internal/realtime/bus"
)

type Clients struct {
	OpenRouter  openrouter.Client
	Titles      *openai.Client
	ObjectStore gcp.ObjectStore
	SSEBus      bus.Bus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// OpenRouter (streaming replies)
	router, err := openrouter.NewClient(log, openrouter.Config{
		APIKey:   cfg.OpenRouterAPIKey,
		BaseURL:  cfg.OpenRouterBaseURL,
		Referer:  cfg.OpenRouterReferer,
		AppTitle: "KieraChat",
	})
	if err != nil {
		return Clients{}, fmt.Errorf("init openrouter client: %w", err)
	}

	// go-openai against the same endpoint (titles)
	titles := newTitleClient(cfg)

	// Redis
	sseBus, err := newSSEBus(log, cfg)
	if err != nil {
		return Clients{}, err
	}

	// Gcs
	store, err := resolveObjectStore(ctx, log, cfg)
	if err != nil {
		if sseBus != nil {
			_ = sseBus.Close()
		}
		return Clients{}, err
	}

	return Clients{
		OpenRouter:  router,
		Titles:      titles,
		ObjectStore: store,
		SSEBus:      sseBus,
	}, nil
}

func newSSEBus(log *logger.Logger, cfg Config) (bus.Bus, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	b, err := bus.NewRedisBus(log, bus.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Channel:  cfg.RedisChannel,
	})
	if err != nil {
		return nil, fmt.Errorf("init redis SSE bus: %w", err)
	}
	return b, nil
}

// wireClientsForSweep only needs the bus.
func wireClientsForSweep(log *logger.Logger, cfg Config) (Clients, error) {
	b, err := newSSEBus(log, cfg)
	if err != nil {
		return Clients{}, err
	}
	return Clients{SSEBus: b}, nil
}

func newTitleClient(cfg Config) *openai.Client {
	oc := openai.DefaultConfig(cfg.OpenRouterAPIKey)
	oc.BaseURL = openrouter.DefaultBaseURL
	if cfg.OpenRouterBaseURL != "" {
		oc.BaseURL = cfg.OpenRouterBaseURL
	}
	return openai.NewClientWithConfig(oc)
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
	if c.ObjectStore != nil {
		_ = c.ObjectStore.Close()
	}
}
