// Package config provides runtime configuration values for the server.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the knobs for the HTTP server, storage, registry and feeds.
type Config struct {
	HTTPAddr        string
	DatabaseURL     string // empty selects in-memory storage
	JWTSecret       string
	TokenTTL        time.Duration
	RegistryTimeout time.Duration
	RegistryAddress string // written to the config store only if unset there
	KafkaBrokers    []string
	KafkaTopic      string
	FeedInterval    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

const devJWTSecret = "dev-secret-change-me"

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// durenv accepts Go durations ("750ms", "2m") or a bare number of seconds.
func durenv(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
		return d
	}
	return def
}

func listenv(key string) []string {
	var out []string
	for _, part := range strings.Split(getenv(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads an optional .env file, then collects configuration from the
// environment with defaults. Variables already set in the environment win
// over .env entries.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env file", "error", err)
	}

	c := Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getenv("DATABASE_URL", ""),
		JWTSecret:       getenv("JWT_SECRET", ""),
		TokenTTL:        durenv("TOKEN_TTL", 24*time.Hour),
		RegistryTimeout: durenv("REGISTRY_TIMEOUT", 10*time.Second),
		RegistryAddress: getenv("REGISTRY_ADDRESS", ""),
		KafkaBrokers:    listenv("KAFKA_BROKERS"),
		KafkaTopic:      getenv("KAFKA_TOPIC", "marketplace.events"),
		FeedInterval:    durenv("FEED_INTERVAL", 5*time.Second),
		ShutdownTimeout: durenv("SHUTDOWN_TIMEOUT", 15*time.Second),
		LogLevel:        getenv("LOG_LEVEL", "info"),
	}
	if c.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, using an insecure development secret")
		c.JWTSecret = devJWTSecret
	}
	return c
}
