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

	"github.com/cimillas/autobook/internal/app"
	"github.com/cimillas/autobook/internal/clock"
	"github.com/cimillas/autobook/internal/config"
	"github.com/cimillas/autobook/internal/idempotency"
	"github.com/cimillas/autobook/internal/ledger"
	"github.com/cimillas/autobook/internal/payment"
	"github.com/cimillas/autobook/internal/storage"
	transporthttp "github.com/cimillas/autobook/internal/transport/http"
)

const (
	shutdownTimeout  = 10 * time.Second
	maxPurgeInterval = time.Hour
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if l, err := cfg.SlogLevel(); err == nil {
		level.Set(l)
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(stopCtx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.String("driver", cfg.StoreDriver), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer backend.Close()

	clk := clock.NewSystem()
	gateway := payment.NewMockGateway()
	gateway.DeclineAboveMinor = cfg.GatewayDeclineAboveMinor

	registry := idempotency.NewRegistry(backend, clk)
	audit := ledger.New(backend, clk)
	accounts := app.NewAccountService(backend, clk)
	booking := app.NewBookingService(
		backend,
		registry,
		audit,
		accounts,
		accounts,
		payment.NewProcessor(gateway, logger),
		clk,
		app.WithLogger(logger),
	)

	handler := transporthttp.NewRouter(transporthttp.RouterConfig{
		Booking:        booking,
		Accounts:       accounts,
		Audit:          audit,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         logger,
		HealthCheck:    backend.Ping,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.IdempotencyRetention > 0 {
		go runPurgeLoop(stopCtx, registry, cfg.IdempotencyRetention, logger)
	}

	logger.Info("api listening", slog.String("addr", server.Addr), slog.String("store", backend.Driver))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.String("error", err.Error()))
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("server stopped")
}

// runPurgeLoop drops idempotency keys older than retention until ctx ends.
func runPurgeLoop(ctx context.Context, registry *idempotency.Registry, retention time.Duration, logger *slog.Logger) {
	interval := retention
	if interval > maxPurgeInterval {
		interval = maxPurgeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := registry.Purge(ctx, retention)
			if err != nil {
				logger.Error("purge idempotency keys", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.Info("purged idempotency keys", slog.Int64("count", n))
			}
		}
	}
}
