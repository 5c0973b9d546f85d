package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a booking payment.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusEscrow            PaymentStatus = "ESCROW"
	PaymentStatusProcessingRelease PaymentStatus = "PROCESSING_RELEASE"
	PaymentStatusReleased          PaymentStatus = "RELEASED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
)

// paymentTransitions is the full table of legal payment status transitions.
// Anything not listed here is rejected.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:           {PaymentStatusEscrow, PaymentStatusFailed},
	PaymentStatusEscrow:            {PaymentStatusProcessingRelease, PaymentStatusRefunded},
	PaymentStatusProcessingRelease: {PaymentStatusReleased, PaymentStatusEscrow},
}

// CanTransition reports whether moving a payment from one status to another
// is legal. Terminal statuses (RELEASED, REFUNDED, FAILED) have no outgoing
// transitions.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalPaymentStatus reports whether a payment status permits no further
// transitions.
func IsTerminalPaymentStatus(status PaymentStatus) bool {
	return len(paymentTransitions[status]) == 0
}

// Payment is the escrow ledger row for a booking. A payment owns the full
// charged amount plus its split into the escrowed portion and the platform
// fee. The breakdown columns stay null until the charge is confirmed.
type Payment struct {
	ID           int64                  `json:"-"`
	PaymentID    string                 `json:"payment_id"`
	BookingID    string                 `json:"booking_id"`
	Amount       decimal.Decimal        `json:"amount"`
	EscrowAmount decimal.NullDecimal    `json:"escrow_amount"`
	PlatformFee  decimal.NullDecimal    `json:"platform_fee"`
	Currency     string                 `json:"currency"`
	Reference    string                 `json:"reference"`
	Status       PaymentStatus          `json:"status"`
	PaidAt       *time.Time             `json:"paid_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	MetaData     map[string]interface{} `json:"meta_data,omitempty"`
}

// HasBreakdown reports whether the escrow/fee split has been computed.
func (p *Payment) HasBreakdown() bool {
	return p.EscrowAmount.Valid && p.PlatformFee.Valid
}

// ApplyBreakdown computes and sets the escrow/fee split from the payment's
// amount. Recomputing an already-populated payment is a no-op unless force
// is set; the backfill path relies on this. It returns true when the
// breakdown was (re)computed.
func (p *Payment) ApplyBreakdown(feeRate decimal.Decimal, force bool) bool {
	if p.HasBreakdown() && !force {
		return false
	}
	escrowAmount, platformFee := ComputeBreakdown(p.Amount, feeRate)
	p.EscrowAmount = decimal.NullDecimal{Decimal: escrowAmount, Valid: true}
	p.PlatformFee = decimal.NullDecimal{Decimal: platformFee, Valid: true}
	return true
}

// BreakdownConsistent checks the ledger invariant
// amount == escrowAmount + platformFee for populated payments.
func (p *Payment) BreakdownConsistent() bool {
	if !p.HasBreakdown() {
		return false
	}
	return p.EscrowAmount.Decimal.Add(p.PlatformFee.Decimal).Equal(p.Amount)
}
