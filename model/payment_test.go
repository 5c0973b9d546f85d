package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeBreakdown(t *testing.T) {
	amount := decimal.NewFromInt(1000)
	feeRate := decimal.NewFromFloat(0.10)

	escrowAmount, platformFee := ComputeBreakdown(amount, feeRate)

	assert.True(t, escrowAmount.Equal(decimal.RequireFromString("900.00")), "escrow amount should be 900.00, got %s", escrowAmount)
	assert.True(t, platformFee.Equal(decimal.RequireFromString("100.00")), "platform fee should be 100.00, got %s", platformFee)
}

func TestComputeBreakdownRounding(t *testing.T) {
	// 33.33 * 0.10 = 3.333 -> fee rounds to 3.33, escrow absorbs the remainder
	amount := decimal.RequireFromString("33.33")
	feeRate := decimal.NewFromFloat(0.10)

	escrowAmount, platformFee := ComputeBreakdown(amount, feeRate)

	assert.True(t, platformFee.Equal(decimal.RequireFromString("3.33")))
	assert.True(t, escrowAmount.Add(platformFee).Equal(amount), "breakdown must sum back to the amount exactly")
}

func TestApplyBreakdownIdempotent(t *testing.T) {
	payment := &Payment{
		PaymentID: GenerateUUIDWithSuffix("pay"),
		Amount:    decimal.NewFromInt(1000),
		Status:    PaymentStatusEscrow,
	}

	computed := payment.ApplyBreakdown(decimal.NewFromFloat(0.10), false)
	assert.True(t, computed)
	assert.True(t, payment.BreakdownConsistent())

	// A second pass with a different rate must be a no-op unless forced.
	computed = payment.ApplyBreakdown(decimal.NewFromFloat(0.25), false)
	assert.False(t, computed)
	assert.True(t, payment.EscrowAmount.Decimal.Equal(decimal.RequireFromString("900.00")))

	computed = payment.ApplyBreakdown(decimal.NewFromFloat(0.25), true)
	assert.True(t, computed)
	assert.True(t, payment.PlatformFee.Decimal.Equal(decimal.RequireFromString("250.00")))
}

func TestPaymentTransitionTable(t *testing.T) {
	legal := []struct {
		from, to PaymentStatus
	}{
		{PaymentStatusPending, PaymentStatusEscrow},
		{PaymentStatusPending, PaymentStatusFailed},
		{PaymentStatusEscrow, PaymentStatusProcessingRelease},
		{PaymentStatusEscrow, PaymentStatusRefunded},
		{PaymentStatusProcessingRelease, PaymentStatusReleased},
		{PaymentStatusProcessingRelease, PaymentStatusEscrow},
	}
	for _, tr := range legal {
		assert.True(t, CanTransition(tr.from, tr.to), "%s -> %s should be legal", tr.from, tr.to)
	}

	illegal := []struct {
		from, to PaymentStatus
	}{
		{PaymentStatusPending, PaymentStatusReleased},
		{PaymentStatusPending, PaymentStatusRefunded},
		{PaymentStatusEscrow, PaymentStatusReleased},
		{PaymentStatusEscrow, PaymentStatusFailed},
		{PaymentStatusReleased, PaymentStatusEscrow},
		{PaymentStatusRefunded, PaymentStatusEscrow},
		{PaymentStatusFailed, PaymentStatusPending},
		{PaymentStatusReleased, PaymentStatusRefunded},
	}
	for _, tr := range illegal {
		assert.False(t, CanTransition(tr.from, tr.to), "%s -> %s should be rejected", tr.from, tr.to)
	}
}

func TestTerminalPaymentStatuses(t *testing.T) {
	assert.True(t, IsTerminalPaymentStatus(PaymentStatusReleased))
	assert.True(t, IsTerminalPaymentStatus(PaymentStatusRefunded))
	assert.True(t, IsTerminalPaymentStatus(PaymentStatusFailed))
	assert.False(t, IsTerminalPaymentStatus(PaymentStatusPending))
	assert.False(t, IsTerminalPaymentStatus(PaymentStatusEscrow))
	assert.False(t, IsTerminalPaymentStatus(PaymentStatusProcessingRelease))
}

func TestPayoutTransitionTable(t *testing.T) {
	assert.True(t, CanTransitionPayout(PayoutStatusPending, PayoutStatusProcessing))
	assert.True(t, CanTransitionPayout(PayoutStatusPending, PayoutStatusFailed))
	assert.True(t, CanTransitionPayout(PayoutStatusProcessing, PayoutStatusCompleted))
	assert.True(t, CanTransitionPayout(PayoutStatusProcessing, PayoutStatusFailed))

	assert.False(t, CanTransitionPayout(PayoutStatusCompleted, PayoutStatusPending))
	assert.False(t, CanTransitionPayout(PayoutStatusFailed, PayoutStatusProcessing))
	assert.False(t, CanTransitionPayout(PayoutStatusPending, PayoutStatusCompleted))
}

func TestWebhookEventIdempotencyKey(t *testing.T) {
	event := &WebhookEvent{
		EventType:         EventChargeSuccess,
		ExternalReference: "TX123",
	}
	assert.Equal(t, "charge.success:TX123", event.IdempotencyKey())
}
