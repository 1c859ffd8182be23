package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var keys = []string{
	"HTTP_ADDR", "DATABASE_URL", "JWT_SECRET", "TOKEN_TTL", "REGISTRY_TIMEOUT",
	"REGISTRY_ADDRESS", "KAFKA_BROKERS", "KAFKA_TOPIC", "FEED_INTERVAL",
	"SHUTDOWN_TIMEOUT", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	// Run from an empty directory so a developer's .env is not picked up
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	c := Load()

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Empty(t, c.DatabaseURL)
	assert.Equal(t, devJWTSecret, c.JWTSecret)
	assert.Equal(t, 24*time.Hour, c.TokenTTL)
	assert.Equal(t, 10*time.Second, c.RegistryTimeout)
	assert.Empty(t, c.RegistryAddress)
	assert.Empty(t, c.KafkaBrokers)
	assert.Equal(t, "marketplace.events", c.KafkaTopic)
	assert.Equal(t, 5*time.Second, c.FeedInterval)
	assert.Equal(t, 15*time.Second, c.ShutdownTimeout)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/market")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("REGISTRY_TIMEOUT", "3")
	t.Setenv("REGISTRY_ADDRESS", "http://registry:9000")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_TOPIC", "market")
	t.Setenv("FEED_INTERVAL", "250ms")
	t.Setenv("SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("LOG_LEVEL", "debug")

	c := Load()
	assert.Equal(t, ":9090", c.HTTPAddr)
	assert.Equal(t, "postgres://localhost/market", c.DatabaseURL)
	assert.Equal(t, "s3cret", c.JWTSecret)
	assert.Equal(t, time.Hour, c.TokenTTL)
	assert.Equal(t, 3*time.Second, c.RegistryTimeout)
	assert.Equal(t, "http://registry:9000", c.RegistryAddress)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, c.KafkaBrokers)
	assert.Equal(t, "market", c.KafkaTopic)
	assert.Equal(t, 250*time.Millisecond, c.FeedInterval)
	assert.Equal(t, 2*time.Second, c.ShutdownTimeout)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN_TTL", "soon")
	t.Setenv("FEED_INTERVAL", "-5s")
	c := Load()
	assert.Equal(t, 24*time.Hour, c.TokenTTL)
	assert.Equal(t, 5*time.Second, c.FeedInterval)
}
