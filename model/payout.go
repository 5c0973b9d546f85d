package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutStatus is the lifecycle state of a provider payout.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:    {PayoutStatusProcessing, PayoutStatusFailed},
	PayoutStatusProcessing: {PayoutStatusCompleted, PayoutStatusFailed},
}

// CanTransitionPayout reports whether moving a payout from one status to
// another is legal. COMPLETED and FAILED are terminal.
func CanTransitionPayout(from, to PayoutStatus) bool {
	for _, next := range payoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Payout is the transfer of escrowed funds to a provider once the job is
// confirmed complete. At most one payout exists per payment; its amount must
// equal the source payment's escrow amount and is immutable after creation.
type Payout struct {
	ID            int64                  `json:"-"`
	PayoutID      string                 `json:"payout_id"`
	PaymentID     string                 `json:"payment_id"`
	ProviderID    string                 `json:"provider_id"`
	Amount        decimal.Decimal        `json:"amount"`
	Currency      string                 `json:"currency"`
	Reference     string                 `json:"reference"`
	Status        PayoutStatus           `json:"status"`
	TransferCode  string                 `json:"transfer_code,omitempty"`
	RecipientCode string                 `json:"recipient_code,omitempty"`
	Error         string                 `json:"error,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
}
