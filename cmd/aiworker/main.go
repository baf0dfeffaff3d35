// Command aiworker consumes segment-generation tasks: it drives the video
// model adapter, stores the produced asset, and advances render-job progress.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/videoforge/internal/adapter/observability"
	"github.com/fairyhunter13/videoforge/internal/adapter/progress"
	"github.com/fairyhunter13/videoforge/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/videoforge/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/videoforge/internal/app"
	"github.com/fairyhunter13/videoforge/internal/config"
	"github.com/fairyhunter13/videoforge/internal/service/ratelimiter"
	"github.com/fairyhunter13/videoforge/internal/videomodel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = producer.Close() }()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("redis url parse failed", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	cache := progress.NewWithClient(rdb)

	store, err := app.BuildObjectStore(ctx, cfg)
	if err != nil {
		slog.Error("object store setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	mc, err := config.LoadModelsConfig(cfg.ModelsConfigPath)
	if err != nil {
		slog.Error("models config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	registry := app.BuildModelRegistry(cfg, mc)

	// One shared budget per model, drawn from by every worker replica.
	buckets := map[string]ratelimiter.Bucket{}
	for _, name := range registry.Names() {
		buckets["model:"+name] = ratelimiter.PerMinute(cfg.ModelRateLimitPerMin)
	}
	limiter := ratelimiter.New(rdb, buckets)

	pollInterval, pollBudget, backoffInitial, backoffMax, attempts := cfg.GetGenerationBounds()
	handler := &redpanda.GenerationHandler{
		Segments:   postgres.NewSegmentRepo(pool),
		RenderJobs: postgres.NewRenderJobRepo(pool),
		Queue:      producer,
		Cache:      cache,
		Store:      store,
		Models:     registry,
		Cfg: redpanda.GenerationConfig{
			PollInterval:           pollInterval,
			PollBudget:             pollBudget,
			InitiateAttempts:       attempts,
			InitiateBackoffInitial: backoffInitial,
			InitiateBackoffMax:     backoffMax,
		},
		Limiter:  limiter,
		Breakers: videomodel.NewBreakerSet(),
	}

	consumer, err := redpanda.NewConsumer(
		cfg.KafkaBrokers, cfg.GenerationGroupID, redpanda.TopicSegmentGeneration, handler.Handle)
	if err != nil {
		slog.Error("consumer setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = consumer.Close() }()

	// Expose worker metrics for scraping.
	metricsSrv := &http.Server{
		Addr:              ":9090",
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("consumer stopped", slog.Any("error", err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
