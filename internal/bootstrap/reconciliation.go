// Package bootstrap builds the reconciliation pipeline shared by the server
// and the operator CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukerupert/tally/internal"
	"github.com/dukerupert/tally/internal/billing"
	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/email"
	"github.com/dukerupert/tally/internal/repository"
	"github.com/dukerupert/tally/internal/service"
	"github.com/dukerupert/tally/internal/storage"
)

// Reconciliation is everything needed to verify and process Stripe events.
type Reconciliation struct {
	Store      *repository.SQLStore
	Verifier   *billing.SignatureVerifier
	Dispatcher *service.ReceiptDispatcher
	Pipeline   *service.Pipeline
}

// NewReconciliation wires the store, Stripe clients, email delivery, and
// reconcilers from configuration.
func NewReconciliation(ctx context.Context, cfg *internal.Config, pool *pgxpool.Pool, logger *slog.Logger) (*Reconciliation, error) {
	store := repository.NewStore(pool)
	secrets := cfg.WebhookSecrets()

	// The balance snapshot is optional; without a key it is recorded as zero.
	var balances billing.Provider
	if cfg.Stripe.SecretKey != "" {
		stripeCfg := billing.StripeConfig{APIKey: cfg.Stripe.SecretKey, Currency: cfg.Stripe.Currency}
		provider, err := billing.NewStripeProvider(stripeCfg)
		if err != nil {
			return nil, fmt.Errorf("stripe provider: %w", err)
		}
		balances = provider
		logger.Info("stripe balance lookups enabled", "mode", stripeCfg.Mode())
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, connected account balances will be recorded as zero")
	}

	emailService, err := email.NewService(newEmailSender(cfg, logger), cfg.Email.From, cfg.Email.FromName)
	if err != nil {
		return nil, fmt.Errorf("email service: %w", err)
	}
	dispatcher := service.NewReceiptDispatcher(store, emailService, cfg.BaseURL, logger.With("component", "receipt_dispatcher"))

	archive, err := storage.NewArchive(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("payload archive: %w", err)
	}
	if archive != nil {
		logger.Info("event payload archive enabled", "provider", cfg.Archive.Provider)
	}
	prefix := cfg.Archive.Prefix
	archiveKey := func(event domain.ExternalEvent) string {
		return storage.EventKey(prefix, event.ID, event.ReceivedAt)
	}

	pipeline := service.NewPipeline(service.PipelineDeps{
		Store:      store,
		Balances:   balances,
		Notifier:   dispatcher,
		Catalog:    cfg.PlanCatalog(),
		Archive:    archive,
		ArchiveKey: archiveKey,
		Logger:     logger,
	})

	verifier := billing.NewSignatureVerifier(secrets)
	logger.Info("webhook verifier configured", "secret_count", verifier.SecretCount())

	return &Reconciliation{
		Store:      store,
		Verifier:   verifier,
		Dispatcher: dispatcher,
		Pipeline:   pipeline,
	}, nil
}

// newEmailSender prefers Postmark when a token is configured and falls back
// to SMTP (mailpit in development).
func newEmailSender(cfg *internal.Config, logger *slog.Logger) email.Sender {
	if cfg.Email.PostmarkToken != "" {
		logger.Info("email delivery via postmark")
		return email.NewPostmarkSender(cfg.Email.PostmarkToken)
	}

	logger.Info("email delivery via smtp", "host", cfg.Email.Host, "port", cfg.Email.Port)
	return email.NewSMTPSender(&email.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     int(cfg.Email.Port),
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		FromName: cfg.Email.FromName,
	}, logger.With("component", "smtp"))
}
