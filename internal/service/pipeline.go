package service

import (
	"log/slog"

	"github.com/dukerupert/tally/internal/billing"
	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/repository"
)

// PipelineDeps are the collaborators of the reconciliation pipeline.
type PipelineDeps struct {
	Store      repository.Store
	Balances   billing.Provider // optional
	Notifier   Notifier         // optional
	Catalog    *domain.PlanCatalog
	Archive    PayloadArchive // optional
	ArchiveKey ArchiveKeyFunc // required when Archive is set
	Logger     *slog.Logger
}

// Pipeline is the wired event store, router, and processor.
type Pipeline struct {
	Events    *EventStore
	Router    *EventRouter
	Processor *WebhookProcessor
}

// NewPipeline registers a reconciler for every known event kind.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	invoices := NewInvoiceReconciler(deps.Store, deps.Notifier, logger.With("component", "invoice_reconciler"))
	accounts := NewAccountReconciler(deps.Store, deps.Balances, logger.With("component", "account_reconciler"))
	subscriptions := NewSubscriptionReconciler(deps.Store, deps.Catalog, logger.With("component", "subscription_reconciler"))

	router := NewEventRouter(logger.With("component", "event_router"))
	router.Handle(domain.EventPaymentSucceeded, invoices.HandlePaymentSucceeded)
	router.Handle(domain.EventPaymentFailed, invoices.HandlePaymentFailed)
	router.Handle(domain.EventAccountUpdated, accounts.HandleAccountUpdated)
	router.Handle(domain.EventSubscriptionCreated, subscriptions.HandleSubscriptionChanged)
	router.Handle(domain.EventSubscriptionUpdated, subscriptions.HandleSubscriptionChanged)
	router.Handle(domain.EventSubscriptionDeleted, subscriptions.HandleSubscriptionDeleted)

	events := NewEventStore(deps.Store, logger.With("component", "event_store"))

	processor := NewWebhookProcessor(events, router, logger.With("component", "webhook_processor"))
	if deps.Archive != nil {
		processor.WithArchive(deps.Archive, deps.ArchiveKey)
	}

	return &Pipeline{
		Events:    events,
		Router:    router,
		Processor: processor,
	}
}
