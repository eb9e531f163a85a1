// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-stream-relay/internal/breaker"
	"ai-stream-relay/internal/config"
	"ai-stream-relay/internal/domain/ports/adapter"
	aiAdapters "ai-stream-relay/internal/infra/adapters/ai"
	pg "ai-stream-relay/internal/infra/db/postgres"
	"ai-stream-relay/internal/infra/logging"
	"ai-stream-relay/internal/infra/metrics"
	red "ai-stream-relay/internal/infra/redis"
	"ai-stream-relay/internal/infra/sched"
	"ai-stream-relay/internal/infra/web"
	"ai-stream-relay/internal/infra/worker"
	"ai-stream-relay/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	jobRepo := pg.NewJobRepoCacheDecorator(pg.NewStreamingJobRepo(pool, tm), redisClient)

	// ---- Provider adapters ----
	byProvider := map[string]adapter.ModelAdapter{}
	if cfg.AI.OpenAIKey != "" {
		ad, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		byProvider["openai"] = aiAdapters.NewLimitedAdapter(ad, cfg.AI.ConcurrentLimit)
	}
	if cfg.AI.GeminiKey != "" {
		ad, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.DefaultModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		byProvider["gemini"] = aiAdapters.NewLimitedAdapter(ad, cfg.AI.ConcurrentLimit)
	}
	if cfg.AI.CompatKey != "" {
		ad, err := aiAdapters.NewCompatAdapter(cfg.AI.CompatKey, cfg.AI.DefaultModel, cfg.AI.CompatBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("compat adapter")
		}
		byProvider["compat"] = aiAdapters.NewLimitedAdapter(ad, cfg.AI.ConcurrentLimit)
	}
	if len(byProvider) == 0 {
		if !cfg.Runtime.Dev {
			logger.Fatal().Msg("no AI provider configured: set ai.openai_key, ai.gemini_key or ai.compat_key")
		}
		logger.Warn().Msg("no AI provider configured, using the canned noop provider")
		byProvider["noop"] = aiAdapters.NewNoopAdapter()
	}
	defaultProvider := "openai"
	if _, ok := byProvider[defaultProvider]; !ok {
		for name := range byProvider {
			defaultProvider = name
			break
		}
	}
	multi := aiAdapters.NewMultiAdapter(defaultProvider, byProvider, nil)
	logger.Info().Strs("providers", multi.Providers()).Str("default", defaultProvider).Msg("providers wired")

	// ---- Breakers ----
	breakers := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		MonitoringPeriod: cfg.Breaker.MonitoringPeriod,
	})

	// ---- Use cases ----
	jobUC := usecase.NewJobUseCase(jobRepo, rateLimiter, locker, usecase.JobConfig{
		TTL:              cfg.Jobs.TTL,
		StaleAfter:       cfg.Jobs.StaleAfter,
		CreateRateLimit:  cfg.Jobs.CreateRateLimit,
		CreateRateWindow: cfg.Jobs.CreateRateWindow,
	}, logger)
	streamUC := usecase.NewStreamUseCase(jobRepo, multi, breakers, usecase.StreamConfig{
		Fallback: cfg.AI.Fallback,
	}, logger)

	// ---- Workers ----
	workerPool := worker.NewPool(cfg.Worker.Count)
	workerPool.Start(ctx)
	defer workerPool.Stop()
	processor := worker.NewStreamJobProcessor(jobRepo, streamUC, cfg.Worker.ClaimBatch, cfg.Worker.PollInterval, logger)
	go processor.Start(ctx, workerPool)

	// ---- Schedulers ----
	sweeper := sched.NewSweepWorker(cfg.Jobs.SweepInterval, jobUC, logger)
	go func() { _ = sweeper.Run(ctx) }()
	reaper := sched.NewReaperWorker(cfg.Jobs.ReapInterval, jobUC, logger)
	go func() { _ = reaper.Run(ctx) }()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, !cfg.Runtime.Dev, cfg.Admin.SessionTTL)
	srv := web.NewServer(jobUC, multi, breakers, auth, cfg.Admin.APIKey, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Routes(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
