package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Event types emitted by the ledger and the services around it.
const (
	EventTransactionConfirmed = "transaction_confirmed"
	EventTransactionFailed    = "transaction_failed"
	EventConfigInitialized    = "config_initialized"
	EventPredictionCreated    = "prediction_created"
	EventPredictionSettled    = "prediction_settled"
	EventFeeRateUpdated       = "fee_rate_updated"
	EventFeesWithdrawn        = "fees_withdrawn"
	EventSettlementDue        = "settlement_due"
)

// Event is a notification about committed ledger state. Events from a
// transaction are published only after the transaction commits.
type Event struct {
	Type      string          `json:"type"`
	Signature string          `json:"signature,omitempty"`
	Slot      uint64          `json:"slot,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Time      time.Time       `json:"time"`
}

// EventPublisher delivers events to a downstream sink.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev Event) error
}
