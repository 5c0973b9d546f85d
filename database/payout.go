package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/payhold-io/payhold/internal/apierror"
	"github.com/payhold-io/payhold/model"
)

func (d Datasource) RecordPayout(ctx context.Context, pyt *model.Payout) (*model.Payout, error) {
	ctx, span := otel.Tracer("payout.database").Start(ctx, "Saving payout to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(pyt.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO payouts(payout_id,payment_id,provider_id,amount,currency,reference,status,transfer_code,recipient_code,error,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		pyt.PayoutID, pyt.PaymentID, pyt.ProviderID, pyt.Amount, pyt.Currency, pyt.Reference, pyt.Status, pyt.TransferCode, pyt.RecipientCode, pyt.Error, pyt.CreatedAt, metaDataJSON,
	)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("A payout already exists for payment '%s'", pyt.PaymentID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record payout", err)
	}

	return pyt, nil
}

func (d Datasource) GetPayout(ctx context.Context, id string) (*model.Payout, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT payout_id, payment_id, provider_id, amount, currency, reference, status, transfer_code, recipient_code, error, created_at, meta_data
		FROM payouts
		WHERE payout_id = $1
	`, id)

	pyt, err := scanPayout(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payout with ID '%s' not found", id), err)
		}
		return nil, err
	}
	return pyt, nil
}

func (d Datasource) GetPayoutByPaymentID(ctx context.Context, paymentID string) (*model.Payout, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT payout_id, payment_id, provider_id, amount, currency, reference, status, transfer_code, recipient_code, error, created_at, meta_data
		FROM payouts
		WHERE payment_id = $1
	`, paymentID)

	pyt, err := scanPayout(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No payout found for payment '%s'", paymentID), err)
		}
		return nil, err
	}
	return pyt, nil
}

func (d Datasource) GetPayoutByReference(ctx context.Context, reference string) (*model.Payout, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT payout_id, payment_id, provider_id, amount, currency, reference, status, transfer_code, recipient_code, error, created_at, meta_data
		FROM payouts
		WHERE reference = $1
	`, reference)

	pyt, err := scanPayout(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payout with reference '%s' not found", reference), err)
		}
		return nil, err
	}
	return pyt, nil
}

// MarkPayoutProcessing records the gateway transfer code and moves the payout
// from PENDING to PROCESSING. The guard on the current status keeps a retried
// worker from resubmitting a payout the gateway already accepted.
func (d Datasource) MarkPayoutProcessing(ctx context.Context, id string, transferCode string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE payouts SET status = $1, transfer_code = $2 WHERE payout_id = $3 AND status = $4
	`, model.PayoutStatusProcessing, transferCode, id, model.PayoutStatusPending)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark payout processing", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark payout processing", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidTransition, fmt.Sprintf("Payout '%s' is not pending submission", id), nil)
	}
	return nil
}

// CompletePayoutAndReleasePayment settles a transfer.success event: the payout
// moves to COMPLETED and the payment to RELEASED in one database transaction,
// so the ledger never shows a completed payout against an unreleased payment.
func (d Datasource) CompletePayoutAndReleasePayment(ctx context.Context, payoutID, paymentID string) error {
	ctx, span := otel.Tracer("payout.database").Start(ctx, "Completing payout and releasing payment")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE payouts SET status = $1 WHERE payout_id = $2 AND status = $3
	`, model.PayoutStatusCompleted, payoutID, model.PayoutStatusProcessing)
	if err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to complete payout", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInvalidTransition, fmt.Sprintf("Payout '%s' is not processing", payoutID), nil)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE payments SET status = $1 WHERE payment_id = $2 AND status = $3
	`, model.PaymentStatusReleased, paymentID, model.PaymentStatusProcessingRelease)
	if err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to release payment", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInvalidTransition, fmt.Sprintf("Payment '%s' is not processing release", paymentID), nil)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit payout completion", err)
	}

	d.invalidatePayment(ctx, paymentID)
	return nil
}

// FailPayoutAndRestoreEscrow settles a transfer.failed event: the payout moves
// to FAILED with the gateway's failure reason and the payment returns to
// ESCROW, atomically, so the funds stay releasable.
func (d Datasource) FailPayoutAndRestoreEscrow(ctx context.Context, payoutID, paymentID, failureReason string) error {
	ctx, span := otel.Tracer("payout.database").Start(ctx, "Failing payout and restoring escrow")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE payouts SET status = $1, error = $2 WHERE payout_id = $3 AND status IN ($4, $5)
	`, model.PayoutStatusFailed, failureReason, payoutID, model.PayoutStatusPending, model.PayoutStatusProcessing)
	if err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fail payout", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInvalidTransition, fmt.Sprintf("Payout '%s' is already settled", payoutID), nil)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE payments SET status = $1 WHERE payment_id = $2 AND status = $3
	`, model.PaymentStatusEscrow, paymentID, model.PaymentStatusProcessingRelease)
	if err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to restore escrow", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInvalidTransition, fmt.Sprintf("Payment '%s' is not processing release", paymentID), nil)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit payout failure", err)
	}

	d.invalidatePayment(ctx, paymentID)
	return nil
}

func scanPayout(row rowScanner) (*model.Payout, error) {
	pyt := &model.Payout{}
	var metaDataJSON []byte
	err := row.Scan(&pyt.PayoutID, &pyt.PaymentID, &pyt.ProviderID, &pyt.Amount, &pyt.Currency, &pyt.Reference, &pyt.Status, &pyt.TransferCode, &pyt.RecipientCode, &pyt.Error, &pyt.CreatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan payout data", err)
	}

	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &pyt.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}

	return pyt, nil
}
