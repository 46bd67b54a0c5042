package config

import (
	"log/slog"
	"os"
	"strconv"
)

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	// Shared-secret credentials. Each channel is independent; either may be
	// left empty, which makes that channel reject every request.
	IngestAPIKey    string
	SubscribeAPIKey string

	// MaxConnsPerKey limits simultaneous WebSocket subscribers per
	// credential. 0 means unbounded.
	MaxConnsPerKey int

	// Rate limiting of new WebSocket connections per client IP.
	WSConnRate  float64
	WSConnBurst int

	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		IngestAPIKey:    getEnv("API_KEY", ""),
		SubscribeAPIKey: getEnv("API_KEY_WS", ""),
		MaxConnsPerKey:  parseQuota(getEnv("MAX_WS_CONNECTIONS_PER_KEY", "")),
		WSConnRate:      parseFloat(getEnv("WS_CONN_RATE", ""), 10.0),
		WSConnBurst:     parseInt(getEnv("WS_CONN_BURST", ""), 10),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
	}
}

// parseQuota maps the raw per-credential quota value to an int.
// Unset, non-numeric, or negative values all mean 0 (unbounded).
func parseQuota(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("MAX_WS_CONNECTIONS_PER_KEY is not numeric, treating as unlimited", "value", raw)
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(raw string, fallback float64) float64 {
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
