// @title        KBM Risk API
// @version      1.0
// @description  Bonus-malus coefficient and premium quotes from driver risk scoring.
// @BasePath     /
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/kbm-risk/internal/cache"
	"github.com/ZanzyTHEbar/kbm-risk/internal/config"
	"github.com/ZanzyTHEbar/kbm-risk/internal/database"
	"github.com/ZanzyTHEbar/kbm-risk/internal/features"
	"github.com/ZanzyTHEbar/kbm-risk/internal/kbm"
	"github.com/ZanzyTHEbar/kbm-risk/internal/middleware"
	"github.com/ZanzyTHEbar/kbm-risk/internal/model"
	"github.com/ZanzyTHEbar/kbm-risk/internal/monitoring"
	"github.com/ZanzyTHEbar/kbm-risk/internal/premium"
	"github.com/ZanzyTHEbar/kbm-risk/internal/quote"
	"github.com/ZanzyTHEbar/kbm-risk/internal/ratelimit"
	"github.com/ZanzyTHEbar/kbm-risk/internal/security"
	"github.com/ZanzyTHEbar/kbm-risk/internal/telemetry"
)

func main() {
	appLogger := monitoring.NewLogger()
	slog.SetDefault(appLogger.Logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	level, _ := monitoring.ParseLevel(cfg.LogLevel)
	appLogger.SetLevel(level)
	gin.SetMode(cfg.GinMode)

	// a service without its model must not answer
	ensemble, err := model.Load(cfg.ModelPath, features.DefaultSchema())
	if err != nil {
		slog.Error("Failed to load risk model", "path", cfg.ModelPath, "error", err)
		os.Exit(1)
	}
	info := ensemble.Info()
	slog.Info("Risk model loaded", "name", info.Name, "trees", info.Trees, "threshold", info.Threshold)

	db, err := database.Open(cfg.QuoteDBPath())
	if err != nil {
		slog.Error("Failed to open quote store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := ratelimit.NewRedisClient(ctx, ratelimit.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	switch {
	case err != nil:
		slog.Warn("Redis unavailable, rate limiting in memory", "error", err)
	case redisClient.IsEnabled():
		slog.Info("Rate limits shared through Redis", "addr", cfg.RedisAddr)
	default:
		slog.Info("Redis not configured, rate limiting in memory")
	}
	defer redisClient.Close()

	appMetrics := monitoring.NewMetrics()

	tp, err := monitoring.NewTracerProvider(ctx, monitoring.TracingConfig{
		ServiceName:  "kbm-risk",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Sampling:     cfg.TraceSampling,
		SampleRate:   cfg.TraceSampleRate,
	})
	if err != nil {
		slog.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Tracer shutdown failed", "error", err)
		}
	}()

	inspector := telemetry.NewInspector(cfg.TelemetryDir)
	if !inspector.Enabled() {
		slog.Warn("TELEMETRY_DIR not set, telemetry paths will be ignored")
	}

	service := quote.NewService(ensemble, inspector, database.NewRepository(db), appLogger, appMetrics, quote.Options{
		Adjuster:          kbm.Adjuster{AvgProba: cfg.KBMAvgProba, Beta: cfg.KBMBeta},
		Assembler:         premium.Assembler{UnlimitedDriversCoeff: cfg.UnlimitedDriversCoeff},
		DefaultBaseTariff: cfg.DefaultBaseTariff,
		Concurrency:       cfg.BatchConcurrency,
		MaxBatchSize:      cfg.MaxBatchSize,
		TracerProvider:    tp,
	})

	appCache := cache.NewCache(cfg.CacheTTL)
	go appCache.Run(ctx, time.Minute)

	secConfig := security.DefaultConfig()
	secConfig.AllowedOrigins = cfg.AllowedOrigins
	secConfig.EnableHSTS = cfg.EnableHSTS

	r := newRouter(&server{
		service:    service,
		db:         db,
		redis:      redisClient,
		limiter:    ratelimit.NewRateLimiter(redisClient, ratelimit.Config{PerMinute: cfg.RateLimitPerMin}, appMetrics),
		cache:      appCache,
		compressor: middleware.NewCompressor(middleware.DefaultCompressionConfig()),
		security:   security.NewMiddleware(secConfig),
		metrics:    appMetrics,
		logger:     appLogger,
		tracing:    tp,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		appLogger.SystemLogger("startup", "listening on :"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}
