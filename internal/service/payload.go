package service

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/dukerupert/tally/internal/domain"
	"github.com/dukerupert/tally/internal/telemetry"
	"github.com/google/uuid"
)

// Metadata keys set on processor objects when they are created.
const (
	MetadataInvoiceID      = "invoice_id"
	MetadataOrganizationID = "organization_id"
)

// decodeObject unmarshals data.object of a stored event payload into v.
// A payload that cannot be decoded will never decode, so the error carries
// ECORRELATION and the event is acknowledged.
func decodeObject(op string, event domain.ExternalEvent, v any) error {
	var envelope struct {
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return domain.WrapError(err, domain.ECORRELATION, op, "event payload is not valid JSON")
	}
	if len(envelope.Data.Object) == 0 || string(envelope.Data.Object) == "null" {
		return domain.MissingCorrelation(op, "data.object")
	}
	if err := json.Unmarshal(envelope.Data.Object, v); err != nil {
		return domain.WrapError(err, domain.ECORRELATION, op, "event object could not be decoded")
	}
	return nil
}

// metadataUUID reads a required UUID from object metadata.
func metadataUUID(op string, metadata map[string]string, key string) (uuid.UUID, error) {
	raw := metadata[key]
	if raw == "" {
		return uuid.Nil, domain.MissingCorrelation(op, key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.MissingCorrelation(op, key)
	}
	return id, nil
}

// acknowledgeUncorrelated turns a correlation failure into a logged no-op.
// Any other error is returned unchanged.
func acknowledgeUncorrelated(logger *slog.Logger, event domain.ExternalEvent, err error) error {
	if err == nil || !domain.IsMissingCorrelation(err) {
		return err
	}

	attrs := []any{
		"event_id", event.ID,
		"event_type", event.Type,
		"reason", domain.ErrorMessage(err),
	}
	var derr *domain.Error
	if errors.As(err, &derr) && derr.Err != nil {
		attrs = append(attrs, "error", derr.Err)
	}
	logger.Warn("event cannot be correlated, acknowledging without changes", attrs...)

	if telemetry.Business != nil {
		telemetry.Business.ReconciliationSkipped.WithLabelValues(event.Type, "missing_correlation").Inc()
	}
	return nil
}
