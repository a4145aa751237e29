package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Cache
	RedisAddr string

	// Provider credential. Optional: when empty, runs resolve to the
	// fallback client instead of failing at startup.
	OpenAIAPIKey string

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Run execution
	InvokeTimeout     time.Duration // per-invocation ceiling, default: 30s
	MaxConcurrentRuns int           // default: 16

	// Rate Limiting
	RunRateLimitPerMin int64 // run starts per customer per minute, default: 60
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	timeoutStr := getEnv("INVOKE_TIMEOUT_SECONDS", "30")
	timeoutSec, err := strconv.Atoi(timeoutStr)
	if err != nil || timeoutSec <= 0 {
		return nil, fmt.Errorf("invalid INVOKE_TIMEOUT_SECONDS: %q", timeoutStr)
	}
	cfg.InvokeTimeout = time.Duration(timeoutSec) * time.Second

	concStr := getEnv("MAX_CONCURRENT_RUNS", "16")
	conc, err := strconv.Atoi(concStr)
	if err != nil || conc <= 0 {
		return nil, fmt.Errorf("invalid MAX_CONCURRENT_RUNS: %q", concStr)
	}
	cfg.MaxConcurrentRuns = conc

	rpmStr := getEnv("RUN_RATE_LIMIT_PER_MIN", "60")
	rpm, err := strconv.ParseInt(rpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_RATE_LIMIT_PER_MIN: %w", err)
	}
	cfg.RunRateLimitPerMin = rpm

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
