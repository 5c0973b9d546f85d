package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Gateway event names the ingest path knows how to dispatch.
const (
	EventChargeSuccess   = "charge.success"
	EventChargeFailed    = "charge.failed"
	EventTransferSuccess = "transfer.success"
	EventTransferFailed  = "transfer.failed"
)

// WebhookEvent is the idempotency/audit row for an inbound gateway event.
// (event_type, external_reference) is the idempotency key: a duplicate
// delivery of an already-processed event must be a no-op.
type WebhookEvent struct {
	ID                int64           `json:"-"`
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	ExternalReference string          `json:"external_reference"`
	Payload           json.RawMessage `json:"payload"`
	Processed         bool            `json:"processed"`
	Error             string          `json:"error,omitempty"`
	RetryCount        int             `json:"retry_count"`
	CreatedAt         time.Time       `json:"created_at"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty"`
}

// IdempotencyKey is the deduplication key for an inbound event.
func (e *WebhookEvent) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s", e.EventType, e.ExternalReference)
}
