package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/tally/internal"
	"github.com/dukerupert/tally/internal/bootstrap"
	"github.com/dukerupert/tally/internal/handler/webhook"
	"github.com/dukerupert/tally/internal/middleware"
	"github.com/dukerupert/tally/internal/router"
	"github.com/dukerupert/tally/internal/routes"
	"github.com/dukerupert/tally/internal/telemetry"
	"github.com/dukerupert/tally/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const shutdownTimeout = 15 * time.Second

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Error tracking
	flush, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer flush()

	telemetry.InitBusinessMetrics("tally")

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(ctx, sqlDB, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	rec, err := bootstrap.NewReconciliation(ctx, cfg, pool, logger)
	if err != nil {
		return fmt.Errorf("failed to wire reconciliation: %w", err)
	}

	// HTTP metrics share the default registry with the business metrics
	metrics := middleware.NewMetrics("tally", nil)

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		telemetry.SentryMiddleware(middleware.GetRequestID),
		metrics.Middleware,
		middleware.WithRequestLogger(logger),
		middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		router.Logger(logger),
	)

	routes.RegisterOpsRoutes(r, routes.OpsDeps{
		Store:          rec.Store,
		MetricsHandler: metrics.Handler(),
	})
	stripeHandler := webhook.NewStripeHandler(rec.Verifier, rec.Pipeline.Processor, logger)
	routes.RegisterWebhookRoutes(r, routes.WebhookDeps{
		StripeHandler: stripeHandler.HandleWebhook,
	})

	// Replay worker for events that were stored but never finished
	workerDone := make(chan struct{})
	if cfg.Replay.Enabled {
		hostname, _ := os.Hostname()
		w := worker.NewWorker(rec.Pipeline.Events, rec.Pipeline.Processor, worker.Config{
			WorkerID:     hostname,
			PollInterval: cfg.Replay.Interval,
			StaleAfter:   cfg.Replay.StaleAfter,
			BatchSize:    cfg.Replay.BatchSize,
			MaxAttempts:  cfg.Replay.MaxAttempts,
		}, logger)
		go func() {
			defer close(workerDone)
			_ = w.Start(ctx)
		}()
	} else {
		close(workerDone)
		logger.Info("replay worker disabled")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	stop()

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	<-workerDone
	if err := rec.Dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("receipt emails still pending at shutdown", "error", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
