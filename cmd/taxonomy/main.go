// Package main is the entry point for the category taxonomy server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxonomy/internal/cache"
	"taxonomy/internal/config"
	"taxonomy/internal/database"
	"taxonomy/internal/handlers"
	"taxonomy/internal/metrics"
	"taxonomy/internal/router"
	"taxonomy/internal/store"
	"taxonomy/internal/taxonomy"
)

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured logger: outputs JSON in production, text in development.
	slog.SetDefault(newLogger(cfg))

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"store", cfg.StoreDriver,
		"locale", cfg.Locale.String(),
	)

	collector := metrics.NewCollector("taxonomy")

	// Pick the category store. The memory store keeps everything in
	// process and is meant for local development and demos.
	var (
		categoryStore taxonomy.Store
		health        router.Pinger
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		slog.Warn("using in-memory category store, data is lost on restart")
		categoryStore = store.NewMemoryStore()

	default:
		db, err := database.Connect(cfg.DSN())
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := database.Migrate(db); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		categoryStore = store.NewCategoryStore(db)
		health = db
	}

	opts := taxonomy.Options{
		Locale:     cfg.Locale,
		MaxDepth:   cfg.MaxDepth,
		MaxRetries: uint64(cfg.MaxRetries),
		Observer:   collector,
	}

	// Connect to Valkey for the row cache (optional; reads fall back to
	// the store when it is disabled or unavailable).
	if cfg.CacheEnabled {
		valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword, cfg.ValkeyDB)
		if err != nil {
			slog.Warn("valkey unavailable, row cache disabled", "error", err)
		} else {
			defer valkeyClient.Close()
			opts.Cache = cache.NewRowCache(valkeyClient, cfg.CacheTTL)
		}
	}

	svc := taxonomy.NewService(categoryStore, opts)
	categories := handlers.NewCategories(svc, cfg.DepthStep)

	// Set up the Chi router with all middleware and routes.
	r := router.New(categories, collector, health)

	// Create the HTTP server with sensible timeouts.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Give active requests up to 30 seconds to complete. In-flight
	// mutations run to commit or rollback regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsDev() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
