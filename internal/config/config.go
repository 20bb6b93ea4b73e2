package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Storage
	DatabasePath string

	// Telegram
	BotToken         string
	AdminTelegramIDs []int64
	CORSOrigins      []string

	// Auth
	JWTSecret    string
	JWTAccessTTL time.Duration
	InitDataTTL  time.Duration

	// Outbound HTTP / resilience
	HTTPTimeout    time.Duration
	MaxRetries     int
	InitialBackoff time.Duration

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Dev mode: DEV_MODE=true bypasses init-data validation and acts as a
	// seeded dev admin. Never enable in production.
	DevMode bool
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabasePath: getEnv("DATABASE_PATH", "piikki.db"),

		BotToken:         getEnv("BOT_TOKEN", ""),
		AdminTelegramIDs: getEnvInt64List("ADMIN_TELEGRAM_IDS"),
		CORSOrigins:      getEnvList("CORS_ORIGINS", "*"),

		JWTSecret:    getEnv("JWT_SECRET", "piikki-default-dev-secret-change-me"),
		JWTAccessTTL: getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
		InitDataTTL:  getEnvDuration("INIT_DATA_TTL", time.Hour),

		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),

		CacheTTL: getEnvDuration("CACHE_TTL", 30*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		DevMode: getEnv("DEV_MODE", "false") == "true",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt64List(key string) []int64 {
	var out []int64
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
