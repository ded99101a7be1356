package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Config carries everything the server needs at startup. Values come from
// the environment, with a .env file loaded first when present.
type Config struct {
	ListenAddr   string
	DatabasePath string

	// RedisURL is optional. When empty, nonces and events fall back to
	// in-process implementations.
	RedisURL string

	GeminiAPIKey string
	JWTSecret    string

	NonceTTL       time.Duration
	TokenTTL       time.Duration
	ReaperInterval time.Duration

	CookieSecure bool
	LogLevel     string
}

// Load reads the configuration from the environment. Missing secrets are an
// error; everything else has a sane default.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded configuration from .env")
	}

	cfg := &Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		DatabasePath:   getEnv("DATABASE_PATH", "converse.db"),
		RedisURL:       os.Getenv("REDIS_URL"),
		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		NonceTTL:       getEnvDuration("NONCE_TTL", 5*time.Minute),
		TokenTTL:       getEnvDuration("TOKEN_TTL", 24*time.Hour),
		ReaperInterval: getEnvDuration("REAPER_INTERVAL", 10*time.Minute),
		CookieSecure:   getEnvBool("COOKIE_SECURE", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		log.Warn().Str("name", name).Str("value", raw).Msg("invalid duration, using default")
		return fallback
	}
	return value
}

func getEnvBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
