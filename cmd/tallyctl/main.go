package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dukerupert/tally/internal"
	"github.com/dukerupert/tally/internal/bootstrap"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "tallyctl",
		Short:         "Operate the tally payment reconciliation service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(eventsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is a configured connection to the reconciliation store.
type env struct {
	cfg    *internal.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	rec    *bootstrap.Reconciliation
}

func (e *env) Close() {
	e.pool.Close()
}

func connect(ctx context.Context) (*env, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	rec, err := bootstrap.NewReconciliation(ctx, cfg, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &env{cfg: cfg, logger: logger, pool: pool, rec: rec}, nil
}
