package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"time"

	"walletwise/internal/backend"
	"walletwise/internal/board"
	"walletwise/internal/cache"
	"walletwise/internal/cli"
	"walletwise/internal/config"
	apphttp "walletwise/internal/http"
	applog "walletwise/internal/log"
	"walletwise/internal/metrics"
	"walletwise/internal/middleware/ratelimit"
	"walletwise/internal/middleware/security"
	"walletwise/internal/services"
	"walletwise/internal/session"
)

const cacheCleanupInterval = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	m := metrics.New()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger, m).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	boards := board.NewRegistry(cfg.BoardCacheSize, cfg.BoardTTL, m)
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig(),
		ratelimit.WithLogger(logger), ratelimit.WithObserver(m))

	caches := cache.NewManager(logger)
	caches.Register(boards.Cleaner())
	caches.Register(limiter)
	caches.StartCleanup(context.Background(), cacheCleanupInterval)

	secret := cfg.SessionSecret
	if secret == "" && cfg.DataBackend == config.BackendMemory {
		secret = ephemeralSecret()
		logger.Warn("SESSION_SECRET not set, sessions will not survive a restart")
	}
	sessions := session.NewManager(secret, cfg.SessionTTL, cfg.SessionSecure)

	opts := []services.Option{services.WithObserver(m), services.WithLogger(logger)}
	var checks []apphttp.ReadinessCheck
	if res.Activities != nil {
		opts = append(opts, services.WithRecorder(res.Activities))
		checks = append(checks, apphttp.ReadinessCheck{Name: "activity_log", Check: res.Activities.Ping})
	}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	bills := services.NewBillService(res.Bills, boards, opts...)

	detector, err := security.NewDetector(cfg.TrustedProxies, logger, m)
	if err != nil {
		logger.Error("Invalid TRUSTED_PROXIES", applog.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Bills:    bills,
		Sessions: sessions,
		Metrics:  m,
		Limiter:  limiter,
		Detector: detector,
		Checks:   checks,
		Logger:   logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close backend", applog.FieldError, err)
		}
	})

	logger.Info("Starting walletwise server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"activity_log", res.Activities != nil,
		"amqp", res.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// ephemeralSecret signs sessions of a demo run on the memory backend.
func ephemeralSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
