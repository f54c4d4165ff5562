package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"courier/api/internal/app"
	"courier/api/internal/auth"
	"courier/api/internal/config"
	"courier/api/internal/gate"
	"courier/api/internal/logging"
	"courier/api/internal/metrics"
	"courier/api/internal/notify"
	"courier/api/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	if cfg.DatabaseDriver == store.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			logger.Error("failed to create sqlite dir", "error", err)
			os.Exit(1)
		}
	}
	db, err := store.OpenDriver(ctx, cfg.DatabaseDriver, cfg.DSN())
	if err != nil {
		logger.Error("database setup failed", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	dataStore := store.NewSQLStore(db, notify.New(logger),
		store.WithLogger(logger),
		store.WithMetrics(m),
	)

	window, err := gate.ParseWindow(cfg.WindowStart, cfg.WindowEnd, cfg.WindowTZ)
	if err != nil {
		logger.Error("invalid gate window", "error", err)
		os.Exit(1)
	}
	if !cfg.WindowEnabled {
		window = nil
	}

	var limiter gate.Limiter
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for rate limiting")
		redisLimiter, err := gate.NewRedisLimiter(cfg.RedisURL, cfg.RateLimitMax, cfg.RateLimitWindow)
		if err != nil {
			logger.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
	} else {
		logger.Info("using in-process rate limiting")
		memoryLimiter := gate.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
		go sweep(ctx, memoryLimiter, cfg.RateLimitWindow)
		limiter = memoryLimiter
	}

	requestGate := gate.New(
		gate.WithWindow(window),
		gate.WithLimiter(limiter),
		gate.WithLogger(logger),
		gate.WithMetrics(m),
	)
	service := app.NewService(dataStore, requestGate, auth.NewVerifier([]byte(cfg.JWTSecret)), app.WithLogger(logger))

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin,
		app.WithHTTPLogger(logger),
		app.WithTrustForwardedFor(cfg.TrustForwardedFor),
		app.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("messaging API listening", "addr", cfg.Addr, "driver", cfg.DatabaseDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func sweep(ctx context.Context, limiter *gate.MemoryLimiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Sweep(now)
		}
	}
}
