/*
Copyright 2025 Payhold Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package payhold

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/payhold-io/payhold/config"
	"github.com/payhold-io/payhold/gateway"
	"github.com/payhold-io/payhold/internal/apierror"
	redlock "github.com/payhold-io/payhold/internal/lock"
	"github.com/payhold-io/payhold/internal/notification"
	"github.com/payhold-io/payhold/model"
)

var tracer = otel.Tracer("payhold.service")

// acquireLock takes the per-payment redis lock that serializes status
// transitions on a payment. The SQL status guards are the correctness
// backstop; the lock keeps concurrent operators from burning gateway calls.
func (p *Payhold) acquireLock(ctx context.Context, paymentID string) (*redlock.Locker, error) {
	locker := redlock.NewLocker(p.redis, paymentID, model.GenerateUUIDWithSuffix("loc"))
	err := locker.Lock(ctx, time.Minute*5)
	if err != nil {
		return nil, err
	}
	return locker, nil
}

func (p *Payhold) releaseLock(ctx context.Context, locker *redlock.Locker) {
	if err := locker.Unlock(ctx); err != nil {
		logrus.Errorf("failed to release lock: %v", err)
	}
}

// InitiatePayment validates the booking, records a PENDING payment, and
// initializes the charge at the gateway. The charge result carries the
// authorization URL the client completes the charge on.
func (p *Payhold) InitiatePayment(ctx context.Context, payment *model.Payment) (*model.Payment, *gateway.ChargeResult, error) {
	ctx, span := tracer.Start(ctx, "Initiating payment")
	defer span.End()

	if payment.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Payment amount must be positive", nil)
	}

	booking, err := p.bookings.GetBooking(ctx, payment.BookingID)
	if err != nil {
		return nil, nil, err
	}

	payment.PaymentID = model.GenerateUUIDWithSuffix("pay")
	if payment.Reference == "" {
		payment.Reference = model.GenerateUUIDWithSuffix("ref")
	} else {
		// client-supplied references make initiation idempotent
		exists, err := p.datasource.PaymentExistsByReference(ctx, payment.Reference)
		if err != nil {
			return nil, nil, err
		}
		if exists {
			return nil, nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Payment with reference '%s' already exists", payment.Reference), nil)
		}
	}
	payment.Status = model.PaymentStatusPending
	payment.CreatedAt = time.Now()

	payment, err = p.datasource.RecordPayment(ctx, payment)
	if err != nil {
		return nil, nil, err
	}

	charge, err := p.gateway.Charge(ctx, gateway.ChargeRequest{
		Email:     booking.ClientEmail,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Reference: payment.Reference,
		MetaData:  map[string]interface{}{"payment_id": payment.PaymentID, "booking_id": payment.BookingID},
	})
	if err != nil {
		// the payment stays PENDING; the operator can re-initiate the charge
		notification.NotifyError(err)
		return nil, nil, err
	}

	return payment, charge, nil
}

// GetPayment retrieves a payment by ID.
func (p *Payhold) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	return p.datasource.GetPayment(ctx, id)
}

// ListPaymentsByStatus pages through payments in a given lifecycle status.
func (p *Payhold) ListPaymentsByStatus(ctx context.Context, status model.PaymentStatus, limit, offset int) ([]*model.Payment, error) {
	return p.datasource.GetPaymentsByStatus(ctx, status, limit, offset)
}

// ApplyChargeSuccess settles a confirmed charge: the payment moves
// PENDING→ESCROW with the fee breakdown computed and persisted in the same
// statement. A payment already escrowed with its breakdown is a no-op, which
// is what makes duplicate charge.success deliveries safe.
func (p *Payhold) ApplyChargeSuccess(ctx context.Context, reference string, paidAt time.Time) (*model.Payment, error) {
	ctx, span := tracer.Start(ctx, "Applying charge success")
	defer span.End()

	payment, err := p.datasource.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if payment.Status == model.PaymentStatusEscrow && payment.HasBreakdown() {
		logrus.Infof("charge already applied for payment %s", payment.PaymentID)
		return payment, nil
	}

	if payment.Status != model.PaymentStatusPending {
		return nil, apierror.NewAPIError(apierror.ErrInvalidTransition, fmt.Sprintf("Payment '%s' cannot accept a charge in status %s", payment.PaymentID, payment.Status), nil)
	}

	locker, err := p.acquireLock(ctx, payment.PaymentID)
	if err != nil {
		return nil, err
	}
	defer p.releaseLock(ctx, locker)

	feeRate, err := p.feeRate()
	if err != nil {
		return nil, err
	}
	payment.ApplyBreakdown(feeRate, false)
	payment.PaidAt = &paidAt

	if err := p.datasource.ApplyEscrowBreakdown(ctx, payment); err != nil {
		return nil, err
	}
	payment.Status = model.PaymentStatusEscrow

	p.postTransitionActions(ctx, EventPaymentEscrowed, payment)
	return payment, nil
}

// ApplyChargeFailure settles a failed charge: PENDING→FAILED.
func (p *Payhold) ApplyChargeFailure(ctx context.Context, reference string) (*model.Payment, error) {
	ctx, span := tracer.Start(ctx, "Applying charge failure")
	defer span.End()

	payment, err := p.datasource.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if payment.Status == model.PaymentStatusFailed {
		return payment, nil
	}

	if err := p.datasource.UpdatePaymentStatus(ctx, payment.PaymentID, model.PaymentStatusPending, model.PaymentStatusFailed); err != nil {
		return nil, err
	}
	payment.Status = model.PaymentStatusFailed

	p.postTransitionActions(ctx, EventPaymentFailed, payment)
	return payment, nil
}

// RequestRelease starts releasing escrowed funds to the provider. The move to
// PROCESSING_RELEASE is gated on the completion collaborator's proof that the
// job is done; the payout request follows immediately.
func (p *Payhold) RequestRelease(ctx context.Context, paymentID string) (*model.Payment, *model.Payout, error) {
	ctx, span := tracer.Start(ctx, "Requesting release")
	defer span.End()

	locker, err := p.acquireLock(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	defer p.releaseLock(ctx, locker)

	payment, err := p.datasource.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}

	if payment.Status != model.PaymentStatusEscrow {
		return nil, nil, apierror.NewAPIError(apierror.ErrNotEligible, fmt.Sprintf("Payment '%s' is not in escrow", paymentID), nil)
	}
	if !payment.HasBreakdown() {
		return nil, nil, apierror.NewAPIError(apierror.ErrNotEligible, fmt.Sprintf("Payment '%s' has no escrow breakdown", paymentID), nil)
	}

	completed, err := p.proofs.IsJobCompleted(ctx, payment.BookingID)
	if err != nil {
		return nil, nil, err
	}
	if !completed {
		return nil, nil, apierror.NewAPIError(apierror.ErrNotEligible, fmt.Sprintf("Booking '%s' has no completion proof", payment.BookingID), nil)
	}

	if err := p.datasource.UpdatePaymentStatus(ctx, paymentID, model.PaymentStatusEscrow, model.PaymentStatusProcessingRelease); err != nil {
		return nil, nil, err
	}
	payment.Status = model.PaymentStatusProcessingRelease

	payout, err := p.RequestPayout(ctx, paymentID)
	if err != nil {
		return payment, nil, err
	}

	return payment, payout, nil
}

// RefundPayment returns escrowed funds to the client: ESCROW→REFUNDED. The
// refund itself is executed at the gateway by the operator; this owns the
// ledger transition.
func (p *Payhold) RefundPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	ctx, span := tracer.Start(ctx, "Refunding payment")
	defer span.End()

	locker, err := p.acquireLock(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer p.releaseLock(ctx, locker)

	payment, err := p.datasource.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if err := p.datasource.UpdatePaymentStatus(ctx, paymentID, payment.Status, model.PaymentStatusRefunded); err != nil {
		return nil, err
	}
	payment.Status = model.PaymentStatusRefunded

	p.postTransitionActions(ctx, EventPaymentRefunded, payment)
	return payment, nil
}

// feeRate loads the configured platform fee rate.
func (p *Payhold) feeRate() (decimal.Decimal, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(cnf.Settlement.FeeRate), nil
}

// postTransitionActions emits the notification event for a settled
// transition. Failures are alerting-only; the transition has already
// committed.
func (p *Payhold) postTransitionActions(_ context.Context, event string, payload interface{}) {
	go func() {
		err := SendEvent(NewEvent{
			Event:   event,
			Payload: payload,
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
}
