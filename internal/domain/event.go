package domain

import (
	"encoding/json"
	"time"
)

// EventKind is the closed set of processor events the reconciliation engine
// understands. Anything else maps to EventUnknown and is acknowledged without
// side effects.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventPaymentSucceeded
	EventPaymentFailed
	EventAccountUpdated
	EventSubscriptionCreated
	EventSubscriptionUpdated
	EventSubscriptionDeleted
)

var eventKindsByType = map[string]EventKind{
	"payment_intent.succeeded":      EventPaymentSucceeded,
	"payment_intent.payment_failed": EventPaymentFailed,
	"account.updated":               EventAccountUpdated,
	"customer.subscription.created": EventSubscriptionCreated,
	"customer.subscription.updated": EventSubscriptionUpdated,
	"customer.subscription.deleted": EventSubscriptionDeleted,
}

// ParseEventKind maps a processor event type string to its EventKind.
func ParseEventKind(eventType string) EventKind {
	if k, ok := eventKindsByType[eventType]; ok {
		return k
	}
	return EventUnknown
}

// KnownEventKinds returns every kind except EventUnknown.
func KnownEventKinds() []EventKind {
	return []EventKind{
		EventPaymentSucceeded,
		EventPaymentFailed,
		EventAccountUpdated,
		EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionDeleted,
	}
}

func (k EventKind) String() string {
	switch k {
	case EventPaymentSucceeded:
		return "payment_succeeded"
	case EventPaymentFailed:
		return "payment_failed"
	case EventAccountUpdated:
		return "account_updated"
	case EventSubscriptionCreated:
		return "subscription_created"
	case EventSubscriptionUpdated:
		return "subscription_updated"
	case EventSubscriptionDeleted:
		return "subscription_deleted"
	default:
		return "unknown"
	}
}

// ExternalEvent is a processor notification as persisted in the event store.
type ExternalEvent struct {
	ID            string
	Type          string
	AccountID     string // Connect account that emitted the event, empty for platform events
	Payload       json.RawMessage
	Processed     bool
	Attempts      int32
	LastError     string
	ReceivedAt    time.Time
	ProcessedAt   *time.Time
	LastAttemptAt *time.Time
}

// Kind returns the parsed event kind.
func (e ExternalEvent) Kind() EventKind {
	return ParseEventKind(e.Type)
}
