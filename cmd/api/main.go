package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/harliandi/sizefit/internal/codec"
	"github.com/harliandi/sizefit/internal/config"
	"github.com/harliandi/sizefit/internal/converter"
	"github.com/harliandi/sizefit/internal/handler"
	"github.com/harliandi/sizefit/internal/logging"
	"github.com/harliandi/sizefit/internal/middleware"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	server, cleanup, err := newServer(cfg, logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting sizefit API",
			zap.String("addr", server.Addr),
			zap.Int("target_kb", cfg.TargetSizeKB),
			zap.Int("tolerance_kb", cfg.ToleranceKB),
			zap.String("format", cfg.OutputFormat),
			zap.Int("max_upload_mb", cfg.MaxUploadMB),
			zap.Int("max_concurrent", cfg.MaxConcurrent),
			zap.Int("rate_limit", cfg.RateLimitPerSec),
			zap.Int("workers", cfg.WorkerCount),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	cleanup()
}

// converterOptions maps configuration onto the resize pipeline.
func converterOptions(cfg *config.Config, logger *zap.Logger) (converter.Options, error) {
	format, err := codec.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return converter.Options{}, err
	}

	opts := converter.DefaultOptions()
	opts.Format = format
	opts.MaxFileSize = cfg.MaxUploadMB << 20
	opts.MinScale = cfg.MinScale
	opts.MinQuality = cfg.MinQuality
	opts.MaxQuality = cfg.MaxQuality
	opts.ScaleIterations = cfg.ScaleIterations
	opts.QualityIterations = cfg.QualityIterations
	opts.PaletteColors = cfg.PaletteColors
	opts.Logger = logger
	return opts, nil
}

// newServer wires the pool, handler and middleware. The returned cleanup
// stops the worker pool and the rate limiter once the server is shut down.
func newServer(cfg *config.Config, logger *zap.Logger) (*http.Server, func(), error) {
	opts, err := converterOptions(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	pool := converter.NewWorkerPool(converter.New(opts), cfg.WorkerCount)
	pool.Start()
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst)
	cleanup := func() {
		pool.Stop()
		limiter.Close()
	}

	h := handler.New(pool, handler.Options{
		MaxUploadMB:  cfg.MaxUploadMB,
		TargetSizeKB: cfg.TargetSizeKB,
		ToleranceKB:  cfg.ToleranceKB,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/resize", h.Resize)
	mux.HandleFunc("/health", h.Health)
	mux.Handle("/metrics", promhttp.Handler())

	// Apply middlewares in order (outermost first):
	// 1. Security headers (always applied)
	// 2. Request id
	// 3. Rate limiting (per IP)
	// 4. Concurrency limit (global)
	// 5. Recovery (catches panics)
	// 6. Logger (logs requests)
	root := middleware.Security(
		middleware.RequestID(
			middleware.RateLimit(limiter, logger)(
				middleware.ConcurrencyLimit(cfg.MaxConcurrent, logger)(
					middleware.Recovery(logger)(
						middleware.Logger(logger)(mux),
					),
				),
			),
		),
	)

	// Configure server with timeouts to prevent slowloris and hanging connections
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return server, cleanup, nil
}
