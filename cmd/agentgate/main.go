// agentgate server — admission and coordination layer for an agent
// serving platform: per-principal rate limiting, a priority wait queue,
// and the interactive tool-permission broker.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/relayops/agentgate/pkg/admission"
	"github.com/relayops/agentgate/pkg/api"
	"github.com/relayops/agentgate/pkg/cleanup"
	"github.com/relayops/agentgate/pkg/config"
	"github.com/relayops/agentgate/pkg/database"
	"github.com/relayops/agentgate/pkg/events"
	"github.com/relayops/agentgate/pkg/metrics"
	"github.com/relayops/agentgate/pkg/permission"
	"github.com/relayops/agentgate/pkg/queue"
	"github.com/relayops/agentgate/pkg/ratelimit"
	"github.com/relayops/agentgate/pkg/storage"
	"github.com/relayops/agentgate/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, continuing with existing environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting agentgate", "version", version.Full(), "addr", cfg.Addr())

	ctx := context.Background()

	// Persistence: PostgreSQL when configured, in-memory otherwise.
	var rawStore storage.Store
	var dbClient *database.Client
	if cfg.DatabaseURL != "" {
		dbClient, err = database.NewClient(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbClient.Close()
		rawStore = storage.NewPostgresStore(dbClient.Pool())
		slog.Info("Connected to PostgreSQL database")
	} else {
		rawStore = storage.NewMemoryStore()
		slog.Warn("No DATABASE_URL set, using in-memory store")
	}
	instrumented := storage.NewInstrumentedStore(rawStore)
	var store storage.Store = instrumented

	// Admission layer.
	resolver := ratelimit.NewConfigResolver(store, cfg.DefaultLimits, cfg.ConfigTTL)
	limiter := ratelimit.NewRateLimiter(resolver, store)
	waitQueue := queue.New(
		queue.WithMaxSize(cfg.QueueMaxSize),
		queue.WithProcessTimeEstimate(cfg.ProcessTimeEstimate),
	)
	gateway := admission.NewGateway(limiter, resolver, waitQueue)

	// Permission broker and WebSocket hub.
	broker := permission.NewBroker(store, permission.WithDecisionTimeout(cfg.DecisionTimeout))
	hub := events.NewHub(cfg.WriteTimeout)

	collector := metrics.NewCollector(waitQueue.Size, broker.PendingCount, instrumented.Errors)

	// Background cleanup.
	cleanupSvc := cleanup.NewService(limiter, store, cfg.CleanupInterval, cfg.IdleAfter)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	// HTTP server.
	httpServer := api.NewServer(gateway, broker, hub, store, dbClient, collector)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Addr())
		if err := httpServer.Start(cfg.Addr()); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("agentgate started successfully",
		"queue_max_size", cfg.QueueMaxSize,
		"decision_timeout", cfg.DecisionTimeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
