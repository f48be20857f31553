// Package main is the entrypoint for the callscribe API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmfontes/callscribe/internal/api"
	"github.com/dmfontes/callscribe/internal/api/handler"
	mw "github.com/dmfontes/callscribe/internal/api/middleware"
	"github.com/dmfontes/callscribe/internal/cache"
	"github.com/dmfontes/callscribe/internal/config"
	"github.com/dmfontes/callscribe/internal/notify"
	"github.com/dmfontes/callscribe/internal/queue"
	"github.com/dmfontes/callscribe/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "upload_dir", cfg.Storage.UploadDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	resultCache := cache.NewResultCache(redisCache, cfg.Cache.TranscriptionTTL, cfg.Cache.AnalysisTTL)

	// 5. Create job queue
	jobQueue, err := queue.New(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create job queue: %w", err)
	}
	defer jobQueue.Close()

	// 6. Create store
	pgStore := store.NewPostgresStore(pool)

	// 7. Start the websocket hub and the Redis event bridge feeding it
	hub := notify.NewHub()
	bridge, err := notify.NewBridge(cfg.Redis.URL, hub)
	if err != nil {
		return fmt.Errorf("create event bridge: %w", err)
	}
	defer bridge.Close()

	go func() {
		if err := bridge.Run(ctx); err != nil {
			slog.Error("event bridge stopped", "error", err)
		}
	}()

	// 8. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, 60),

		HealthHandler: handler.NewHealthHandler(pgStore, redisCache),

		UploadHandler:      handler.NewUploadHandler(pgStore, jobQueue, cfg.Storage.UploadDir, cfg.Storage.MaxFileSizeMB),
		ListTasksHandler:   handler.NewListTasksHandler(pgStore),
		TaskStatusHandler:  handler.NewTaskStatusHandler(pgStore),
		TaskResultHandler:  handler.NewTaskResultHandler(pgStore),
		UpdateNotesHandler: handler.NewUpdateNotesHandler(pgStore),
		TaskEventsHandler:  handler.NewTaskEventsHandler(hub),

		ListRulesHandler: handler.NewListRulesHandler(pgStore),

		ClearCacheHandler:     handler.NewClearCacheHandler(resultCache),
		ClearNamespaceHandler: handler.NewClearNamespaceHandler(resultCache),
		CacheStatsHandler:     handler.NewCacheStatsHandler(resultCache),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
