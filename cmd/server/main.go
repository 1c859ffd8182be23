package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtrntr/landmarket/internal/api"
	"github.com/xtrntr/landmarket/internal/auth"
	"github.com/xtrntr/landmarket/internal/config"
	"github.com/xtrntr/landmarket/internal/db"
	"github.com/xtrntr/landmarket/internal/events"
	"github.com/xtrntr/landmarket/internal/feed"
	"github.com/xtrntr/landmarket/internal/marketplace"
	"github.com/xtrntr/landmarket/internal/memstore"
	"github.com/xtrntr/landmarket/internal/metrics"
	"github.com/xtrntr/landmarket/internal/obs"
	"github.com/xtrntr/landmarket/internal/registry"
	"github.com/xtrntr/landmarket/migrations"
)

// storage is what the server needs from either backend.
type storage interface {
	marketplace.Store
	auth.UserStore
}

// openStorage connects to Postgres and applies migrations when a database URL
// is configured, and falls back to process memory otherwise.
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, func(context.Context) error, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		return memstore.New(), nil, func() {}, nil
	}

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := migrations.Apply(ctx, database.Pool); err != nil {
		database.Close(ctx)
		return nil, nil, nil, err
	}
	logger.Info("connected to postgres, migrations applied")
	return database, database.Ping, func() { database.Close(context.Background()) }, nil
}

// Main entry point: sets up storage, the marketplace service and the HTTP server
func main() {
	cfg := config.Load()
	logger := obs.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, health, closeStore, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	reg := registry.NewClient(cfg.RegistryTimeout)
	m := metrics.New()

	// The hub only reads listings, so it gets its own publisher-less view of the store
	hub := feed.NewHub(marketplace.NewService(store, reg, marketplace.WithLogger(logger)), logger)
	defer hub.Close()

	publishers := events.Fanout{hub}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publishers = append(publishers, kp)
		logger.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	market := marketplace.NewService(store, reg,
		marketplace.WithLogger(logger),
		marketplace.WithPublisher(publishers),
		marketplace.WithObserver(m),
	)

	if cfg.RegistryAddress != "" {
		if _, err := market.RegistryAddress(ctx); errors.Is(err, marketplace.ErrConfigurationMissing) {
			if _, err := market.SetRegistryAddress(ctx, "bootstrap", cfg.RegistryAddress); err != nil {
				logger.Error("invalid REGISTRY_ADDRESS", "error", err)
				os.Exit(1)
			}
		}
	}

	authService := auth.NewAuthService(store, cfg.JWTSecret, cfg.TokenTTL)
	handler := api.NewHandler(market, authService, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		Feed:    hub,
		Metrics: m,
		Health:  health,
	})

	go hub.Run(ctx, cfg.FeedInterval)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
