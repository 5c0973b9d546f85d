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

package database

import (
	"context"

	"github.com/payhold-io/payhold/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	payment      // Interface for payment-related operations
	payout       // Interface for payout-related operations
	webhookEvent // Interface for webhook event ledger operations
}

// payment defines methods for handling payments.
type payment interface {
	RecordPayment(ctx context.Context, pmt *model.Payment) (*model.Payment, error)                                    // Records a new payment
	GetPayment(ctx context.Context, id string) (*model.Payment, error)                                                // Retrieves a payment by ID
	GetPaymentByReference(ctx context.Context, reference string) (*model.Payment, error)                              // Retrieves a payment by gateway reference
	PaymentExistsByReference(ctx context.Context, reference string) (bool, error)                                     // Checks if a payment exists by reference
	UpdatePaymentStatus(ctx context.Context, id string, fromStatus, toStatus model.PaymentStatus) error               // Moves a payment between statuses, guarded on the expected current status
	ApplyEscrowBreakdown(ctx context.Context, pmt *model.Payment) error                                               // Persists the escrow split and moves the payment into escrow
	UpdatePaymentBreakdown(ctx context.Context, pmt *model.Payment) error                                             // Persists a recomputed breakdown without touching status
	GetPaymentsMissingBreakdown(ctx context.Context, batchSize int, offset int64) ([]*model.Payment, error)           // Retrieves settled payments with no breakdown, paginated
	GetPaymentsByStatus(ctx context.Context, status model.PaymentStatus, limit, offset int) ([]*model.Payment, error) // Retrieves payments in a given status
}

// payout defines methods for handling payouts.
type payout interface {
	RecordPayout(ctx context.Context, pyt *model.Payout) (*model.Payout, error)                      // Records a new payout
	GetPayout(ctx context.Context, id string) (*model.Payout, error)                                 // Retrieves a payout by ID
	GetPayoutByPaymentID(ctx context.Context, paymentID string) (*model.Payout, error)               // Retrieves the payout tied to a payment
	GetPayoutByReference(ctx context.Context, reference string) (*model.Payout, error)               // Retrieves a payout by gateway reference
	MarkPayoutProcessing(ctx context.Context, id string, transferCode string) error                  // Moves a payout to PROCESSING with its gateway transfer code
	CompletePayoutAndReleasePayment(ctx context.Context, payoutID, paymentID string) error           // Completes a payout and releases its payment atomically
	FailPayoutAndRestoreEscrow(ctx context.Context, payoutID, paymentID, failureReason string) error // Fails a payout and returns its payment to escrow atomically
}

// webhookEvent defines methods for the idempotent webhook event ledger.
type webhookEvent interface {
	RecordWebhookEvent(ctx context.Context, event *model.WebhookEvent) (*model.WebhookEvent, bool, error) // Records an event; returns the stored row and whether it was newly created
	GetWebhookEvent(ctx context.Context, eventType, externalReference string) (*model.WebhookEvent, error)
	GetWebhookEventByID(ctx context.Context, id string) (*model.WebhookEvent, error)
	MarkWebhookEventProcessed(ctx context.Context, id string) error
	MarkWebhookEventFailed(ctx context.Context, id string, processingError string) error // Records a failure and bumps the retry count
	GetUnprocessedWebhookEvents(ctx context.Context, limit, offset int) ([]*model.WebhookEvent, error)
}
