// Command composer consumes video-composition tasks: it downloads the
// completed segment assets, concatenates them with ffmpeg, and publishes the
// final render asset.
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

	"github.com/fairyhunter13/videoforge/internal/adapter/observability"
	"github.com/fairyhunter13/videoforge/internal/adapter/progress"
	"github.com/fairyhunter13/videoforge/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/videoforge/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/videoforge/internal/app"
	"github.com/fairyhunter13/videoforge/internal/compose"
	"github.com/fairyhunter13/videoforge/internal/config"
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

	cache, err := progress.New(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = cache.Close() }()

	store, err := app.BuildObjectStore(ctx, cfg)
	if err != nil {
		slog.Error("object store setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	handler := &redpanda.CompositionHandler{
		Segments:   postgres.NewSegmentRepo(pool),
		RenderJobs: postgres.NewRenderJobRepo(pool),
		Cache:      cache,
		Store:      store,
		Concat:     compose.NewConcatenator(cfg.FFmpegPath),
	}

	consumer, err := redpanda.NewConsumer(
		cfg.KafkaBrokers, cfg.CompositionGroupID, redpanda.TopicVideoComposition, handler.Handle)
	if err != nil {
		slog.Error("consumer setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = consumer.Close() }()

	metricsSrv := &http.Server{
		Addr:              ":9091",
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
