// Package main is the entrypoint for the callscribe worker process. The
// worker claims one job at a time; a supervisor restarts the process when
// it exits after reaching its job budget.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmfontes/callscribe/internal/cache"
	"github.com/dmfontes/callscribe/internal/config"
	"github.com/dmfontes/callscribe/internal/diarize"
	"github.com/dmfontes/callscribe/internal/notify"
	"github.com/dmfontes/callscribe/internal/pipeline"
	"github.com/dmfontes/callscribe/internal/queue"
	"github.com/dmfontes/callscribe/internal/store"
	"github.com/dmfontes/callscribe/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env,
		"max_memory_mb", cfg.Worker.MaxMemoryMB, "max_jobs", cfg.Worker.MaxJobs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	jobQueue, err := queue.New(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create job queue: %w", err)
	}
	defer jobQueue.Close()

	publisher, err := notify.NewPublisher(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create event publisher: %w", err)
	}
	defer publisher.Close()

	resultCache := cache.NewResultCache(redisCache, cfg.Cache.TranscriptionTTL, cfg.Cache.AnalysisTTL)

	engine := diarize.NewEngine(
		diarize.NewExecEmbedder(cfg.Pipeline.EmbedderBin),
		cfg.Diarize.MinSpeakers,
		cfg.Diarize.MaxSpeakers,
		cfg.Diarize.CacheSize,
		cfg.Diarize.CacheTTL,
	)

	orchestrator := pipeline.NewOrchestrator(
		pipeline.NewFFmpegNormalizer(cfg.Pipeline.FFmpegBin),
		pipeline.NewWhisperCLI(cfg.Pipeline.WhisperBin, cfg.Pipeline.WhisperModel),
		engine,
		pipeline.NewAnalyzer(),
		resultCache,
	)

	w := worker.New(
		store.NewPostgresStore(pool),
		jobQueue,
		orchestrator,
		publisher,
		cfg.Worker.MaxMemoryMB,
		cfg.Worker.MaxJobs,
	)

	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("worker run: %w", err)
	}
	slog.Info("worker exited")
	return nil
}
