package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/config"
	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/core"
	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/history"
	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/logging"
	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/smartsheet"
	"github.com/ElMagoLisandro/cin7-smartsheet-uploader/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"batch_size", cfg.Upload.BatchSize,
		"max_concurrent", cfg.Upload.MaxConcurrent,
		"history_enabled", cfg.History.DatabaseURL != "",
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	// Session history is optional: connect only when a database is
	// configured.
	var hist *history.Store
	if cfg.History.DatabaseURL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.History.DatabaseURL)
		if err != nil {
			slog.Error("failed to parse database URL", "error", err)
			os.Exit(1)
		}
		poolConfig.MaxConns = int32(cfg.History.MaxConns)

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			slog.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		hist, err = history.New(ctx, pool)
		if err != nil {
			slog.Error("failed to initialize session history", "error", err)
			os.Exit(1)
		}
		slog.Info("session history enabled")
	}

	// Destination API client
	var clientOpts []smartsheet.Option
	if cfg.Smartsheet.BaseURL != "" {
		clientOpts = append(clientOpts, smartsheet.WithBaseURL(cfg.Smartsheet.BaseURL))
	}
	if cfg.Smartsheet.Timeout > 0 {
		clientOpts = append(clientOpts, smartsheet.WithTimeout(cfg.Smartsheet.Timeout))
	}
	client := smartsheet.NewClient(cfg.Smartsheet.Token, clientOpts...)

	// Create service with config
	var recorder core.HistoryRecorder
	if hist != nil {
		recorder = hist
	}
	service := core.NewService(client, recorder, core.ServiceConfig{
		BatchSize: cfg.Upload.BatchSize,
		Retry: core.RetryPolicy{
			RateRetries:      cfg.Upload.RateRetries,
			TransportRetries: cfg.Upload.TransportRetries,
			InitialBackoff:   cfg.Upload.RetryBackoff,
		},
		SessionTimeout: cfg.Upload.Timeout,
		MaxConcurrent:  cfg.Upload.MaxConcurrent,
		MaxWait:        cfg.Upload.MaxWaitTime,
	})

	// Create server with config
	server := web.NewServer(service, hist, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active sessions to complete (with timeout)
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for sessions to complete", "active", status.Active)
			if err := service.WaitForSessions(shutdownCtx); err != nil {
				slog.Warn("sessions did not complete in time", "error", err)
			} else {
				slog.Info("all sessions completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server
	if err := server.Start(cfg.Server.Addr()); err != nil && err != http.ErrServerClosed {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
