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
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/payhold-io/payhold/gateway"
	"github.com/payhold-io/payhold/internal/apierror"
	"github.com/payhold-io/payhold/internal/notification"
	"github.com/payhold-io/payhold/model"
)

// RequestPayout creates the payout for a payment that is processing release
// and queues it for submission to the gateway. The payout amount is the
// payment's escrow amount; at most one payout can ever exist per payment.
func (p *Payhold) RequestPayout(ctx context.Context, paymentID string) (*model.Payout, error) {
	ctx, span := tracer.Start(ctx, "Requesting payout")
	defer span.End()

	payment, err := p.datasource.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status != model.PaymentStatusProcessingRelease {
		return nil, apierror.NewAPIError(apierror.ErrNotEligible, fmt.Sprintf("Payment '%s' is not processing release", paymentID), nil)
	}
	if !payment.HasBreakdown() {
		return nil, apierror.NewAPIError(apierror.ErrNotEligible, fmt.Sprintf("Payment '%s' has no escrow breakdown", paymentID), nil)
	}

	booking, err := p.bookings.GetBooking(ctx, payment.BookingID)
	if err != nil {
		return nil, err
	}

	payout := &model.Payout{
		PayoutID:      model.GenerateUUIDWithSuffix("pyt"),
		PaymentID:     payment.PaymentID,
		ProviderID:    booking.ProviderID,
		Amount:        payment.EscrowAmount.Decimal,
		Currency:      payment.Currency,
		Reference:     model.GenerateUUIDWithSuffix("pytref"),
		Status:        model.PayoutStatusPending,
		RecipientCode: booking.RecipientCode,
		CreatedAt:     time.Now(),
	}

	payout, err = p.datasource.RecordPayout(ctx, payout)
	if err != nil {
		return nil, err
	}

	if err := p.queue.EnqueueTransfer(ctx, payout); err != nil {
		notification.NotifyError(err)
		return nil, err
	}

	return payout, nil
}

// GetPayout retrieves a payout by ID.
func (p *Payhold) GetPayout(ctx context.Context, id string) (*model.Payout, error) {
	return p.datasource.GetPayout(ctx, id)
}

// GetPayoutForPayment retrieves the single payout tied to a payment.
func (p *Payhold) GetPayoutForPayment(ctx context.Context, paymentID string) (*model.Payout, error) {
	return p.datasource.GetPayoutByPaymentID(ctx, paymentID)
}

// SubmitTransfer submits a pending payout to the gateway and moves it to
// PROCESSING with the returned transfer code. Gateway exhaustion settles the
// payout as FAILED and restores the payment to ESCROW so the funds stay
// releasable.
func (p *Payhold) SubmitTransfer(ctx context.Context, payout *model.Payout) error {
	ctx, span := tracer.Start(ctx, "Submitting transfer")
	defer span.End()

	result, err := p.gateway.Transfer(ctx, gateway.TransferRequest{
		Amount:        payout.Amount,
		Currency:      payout.Currency,
		Reference:     payout.Reference,
		RecipientCode: payout.RecipientCode,
		Reason:        fmt.Sprintf("Payout for payment %s", payout.PaymentID),
	})
	if err != nil {
		notification.NotifyError(err)
		if failErr := p.datasource.FailPayoutAndRestoreEscrow(ctx, payout.PayoutID, payout.PaymentID, err.Error()); failErr != nil {
			logrus.Errorf("failed to settle payout %s after gateway error: %v", payout.PayoutID, failErr)
			return failErr
		}
		p.postTransitionActions(ctx, EventPayoutFailed, payout)
		return nil
	}

	if err := p.datasource.MarkPayoutProcessing(ctx, payout.PayoutID, result.TransferCode); err != nil {
		// a duplicate delivery already submitted this payout
		if apierror.IsCode(err, apierror.ErrInvalidTransition) {
			logrus.Infof("payout %s already submitted", payout.PayoutID)
			return nil
		}
		return err
	}

	logrus.Infof("payout %s submitted with transfer code %s", payout.PayoutID, result.TransferCode)
	return nil
}

// ProcessTransfer is the asynq handler for queued transfer submissions.
func (p *Payhold) ProcessTransfer(ctx context.Context, task *asynq.Task) error {
	var payout model.Payout
	if err := json.Unmarshal(task.Payload(), &payout); err != nil {
		logrus.Errorf("Error unmarshaling transfer task payload: %v", err)
		return err
	}
	return p.SubmitTransfer(ctx, &payout)
}

// OnTransferResult settles the terminal outcome of a submitted transfer.
// Success completes the payout and releases the payment in one database
// transaction; failure fails the payout and returns the payment to ESCROW in
// one database transaction.
func (p *Payhold) OnTransferResult(ctx context.Context, reference string, succeeded bool, failureReason string) (*model.Payout, error) {
	ctx, span := tracer.Start(ctx, "Settling transfer result")
	defer span.End()

	payout, err := p.datasource.GetPayoutByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if succeeded {
		if payout.Status == model.PayoutStatusCompleted {
			return payout, nil
		}
		if err := p.datasource.CompletePayoutAndReleasePayment(ctx, payout.PayoutID, payout.PaymentID); err != nil {
			return nil, err
		}
		payout.Status = model.PayoutStatusCompleted
		p.postTransitionActions(ctx, EventPayoutCompleted, payout)
		return payout, nil
	}

	if payout.Status == model.PayoutStatusFailed {
		return payout, nil
	}
	if err := p.datasource.FailPayoutAndRestoreEscrow(ctx, payout.PayoutID, payout.PaymentID, failureReason); err != nil {
		return nil, err
	}
	payout.Status = model.PayoutStatusFailed
	payout.Error = failureReason
	notification.NotifyError(fmt.Errorf("transfer %s failed: %s", reference, failureReason))
	p.postTransitionActions(ctx, EventPayoutFailed, payout)
	return payout, nil
}
