package app

import (
	"time"

	"github.com/yungbote/kierachat-backend/internal/observability"
	"github.com/yungbote/kierachat-backend/internal/pkg/logger"
	"github.com/yungbote/kierachat-backend/internal/platform/envutil"
)

const devJWTSecret = "defaultsecret"

type Config struct {
	LogMode     string
	Port        string
	Environment string

	JWTSecretKey      string
	AccessTokenTTL    time.Duration
	AnonymousTokenTTL time.Duration

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterReferer string
	SerperAPIKey      string
	// AllowPrivateFetch lets extract_content reach internal hosts (local dev).
	AllowPrivateFetch bool

	WorkerConcurrency int
	JobStaleRunning   time.Duration
	JobMaxAttempts    int
	SweepInterval     time.Duration
	GenerationTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	GCSBucketName       string
	StorageMode         string
	StorageEmulatorHost string
	StoragePublicURL    string
	GCPCredentials      string
	StorageURLTTL       time.Duration

	SendRatePerMinute int
	SendBurst         int
	CORSOrigins       []string

	Otel observability.OtelConfig
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Port:        envutil.String("PORT", "8080"),
		Environment: envutil.String("ENVIRONMENT", "development"),

		JWTSecretKey:      envutil.String("JWT_SECRET_KEY", devJWTSecret),
		AccessTokenTTL:    envutil.Duration("ACCESS_TOKEN_TTL", time.Hour),
		AnonymousTokenTTL: envutil.Duration("ANONYMOUS_TOKEN_TTL", 30*24*time.Hour),

		OpenRouterAPIKey:  envutil.String("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: envutil.String("OPENROUTER_BASE_URL", ""),
		OpenRouterReferer: envutil.String("OPENROUTER_REFERER", ""),
		SerperAPIKey:      envutil.String("SERPER_API_KEY", ""),
		AllowPrivateFetch: envutil.Bool("EXTRACT_ALLOW_PRIVATE_NETWORKS", false),

		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 4),
		JobStaleRunning:   envutil.Duration("JOB_STALE_RUNNING", 10*time.Minute),
		JobMaxAttempts:    envutil.Int("JOB_MAX_ATTEMPTS", 3),
		SweepInterval:     envutil.Duration("SWEEP_INTERVAL", time.Minute),
		GenerationTimeout: envutil.Duration("GENERATION_TIMEOUT", 5*time.Minute),

		RedisAddr:     envutil.String("REDIS_ADDR", ""),
		RedisPassword: envutil.String("REDIS_PASSWORD", ""),
		RedisDB:       envutil.Int("REDIS_DB", 0),
		RedisChannel:  envutil.String("REDIS_CHANNEL", "kierachat:sse"),

		GCSBucketName:       envutil.String("GCS_BUCKET_NAME", ""),
		StorageMode:         envutil.String("OBJECT_STORAGE_MODE", ""),
		StorageEmulatorHost: envutil.String("STORAGE_EMULATOR_HOST", ""),
		StoragePublicURL:    envutil.String("STORAGE_PUBLIC_BASE_URL", ""),
		GCPCredentials:      envutil.String("GOOGLE_APPLICATION_CREDENTIALS", ""),
		StorageURLTTL:       envutil.Duration("STORAGE_URL_TTL", 15*time.Minute),

		SendRatePerMinute: envutil.Int("SEND_RATE_PER_MINUTE", 20),
		SendBurst:         envutil.Int("SEND_RATE_BURST", 5),
		CORSOrigins:       envutil.List("CORS_ALLOWED_ORIGINS", nil),
	}
	cfg.Otel = observability.OtelConfig{
		Enabled:     envutil.Bool("OTEL_ENABLED", false),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "kierachat-backend"),
		Environment: cfg.Environment,
		Version:     envutil.String("APP_VERSION", "dev"),
		Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Headers:     envutil.String("OTEL_EXPORTER_OTLP_HEADERS", ""),
		Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
		SampleRatio: envutil.Float("OTEL_TRACES_SAMPLER_ARG", 0.1),
	}

	if log != nil {
		if cfg.JWTSecretKey == devJWTSecret {
			log.Warn("JWT_SECRET_KEY not set, using the development secret")
		}
		if cfg.SerperAPIKey == "" {
			log.Warn("SERPER_API_KEY not set, web_search will fail")
		}
	}
	return cfg
}
