package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/payhold-io/payhold/internal/apierror"
	"github.com/payhold-io/payhold/model"
)

const paymentCacheTTL = 5 * time.Minute

func paymentCacheKey(id string) string {
	return fmt.Sprintf("payments:%s", id)
}

func (d Datasource) RecordPayment(ctx context.Context, pmt *model.Payment) (*model.Payment, error) {
	ctx, span := otel.Tracer("payment.database").Start(ctx, "Saving payment to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(pmt.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO payments(payment_id,booking_id,amount,escrow_amount,platform_fee,currency,reference,status,paid_at,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		pmt.PaymentID, pmt.BookingID, pmt.Amount, pmt.EscrowAmount, pmt.PlatformFee, pmt.Currency, pmt.Reference, pmt.Status, pmt.PaidAt, pmt.CreatedAt, metaDataJSON,
	)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Payment with reference '%s' already exists", pmt.Reference), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record payment", err)
	}

	return pmt, nil
}

func (d Datasource) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	if d.Cache != nil {
		cached := &model.Payment{}
		if err := d.Cache.Get(ctx, paymentCacheKey(id), cached); err == nil && cached.PaymentID != "" {
			return cached, nil
		}
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT payment_id, booking_id, amount, escrow_amount, platform_fee, currency, reference, status, paid_at, created_at, meta_data
		FROM payments
		WHERE payment_id = $1
	`, id)

	pmt, err := scanPayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payment with ID '%s' not found", id), err)
		}
		return nil, err
	}

	if d.Cache != nil {
		if err := d.Cache.Set(ctx, paymentCacheKey(id), pmt, paymentCacheTTL); err != nil {
			// a failed cache write never fails the read
			_ = err
		}
	}

	return pmt, nil
}

func (d Datasource) GetPaymentByReference(ctx context.Context, reference string) (*model.Payment, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT payment_id, booking_id, amount, escrow_amount, platform_fee, currency, reference, status, paid_at, created_at, meta_data
		FROM payments
		WHERE reference = $1
	`, reference)

	pmt, err := scanPayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Payment with reference '%s' not found", reference), err)
		}
		return nil, err
	}
	return pmt, nil
}

func (d Datasource) PaymentExistsByReference(ctx context.Context, reference string) (bool, error) {
	ctx, span := otel.Tracer("payment.database").Start(ctx, "Checking payment reference")
	defer span.End()

	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM payments WHERE reference = $1)
	`, reference).Scan(&exists)

	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check if payment exists", err)
	}

	return exists, nil
}

// UpdatePaymentStatus moves a payment from one status to another. The WHERE
// clause carries the expected current status so a stale caller loses the race
// instead of clobbering a concurrent transition.
func (d Datasource) UpdatePaymentStatus(ctx context.Context, id string, fromStatus, toStatus model.PaymentStatus) error {
	if !model.CanTransition(fromStatus, toStatus) {
		return apierror.NewAPIError(apierror.ErrInvalidTransition, fmt.Sprintf("Payment cannot move from %s to %s", fromStatus, toStatus), nil)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE payments SET status = $1 WHERE payment_id = $2 AND status = $3
	`, toStatus, id, fromStatus)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update payment status", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update payment status", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidTransition, fmt.Sprintf("Payment '%s' is no longer in status %s", id, fromStatus), nil)
	}

	d.invalidatePayment(ctx, id)
	return nil
}

// ApplyEscrowBreakdown persists the escrow split and moves the payment from
// PENDING to ESCROW in a single statement, so a duplicate charge.success
// delivery cannot apply the split twice.
func (d Datasource) ApplyEscrowBreakdown(ctx context.Context, pmt *model.Payment) error {
	ctx, span := otel.Tracer("payment.database").Start(ctx, "Applying escrow breakdown")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, escrow_amount = $2, platform_fee = $3, paid_at = $4
		WHERE payment_id = $5 AND status = $6
	`, model.PaymentStatusEscrow, pmt.EscrowAmount, pmt.PlatformFee, pmt.PaidAt, pmt.PaymentID, model.PaymentStatusPending)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to apply escrow breakdown", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to apply escrow breakdown", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidTransition, fmt.Sprintf("Payment '%s' is not awaiting a charge", pmt.PaymentID), nil)
	}

	d.invalidatePayment(ctx, pmt.PaymentID)
	return nil
}

// UpdatePaymentBreakdown persists a recomputed breakdown without touching the
// payment status. The backfill path uses this for settled payments whose
// split columns were never written.
func (d Datasource) UpdatePaymentBreakdown(ctx context.Context, pmt *model.Payment) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE payments SET escrow_amount = $1, platform_fee = $2 WHERE payment_id = $3
	`, pmt.EscrowAmount, pmt.PlatformFee, pmt.PaymentID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update payment breakdown", err)
	}

	d.invalidatePayment(ctx, pmt.PaymentID)
	return nil
}

func (d Datasource) GetPaymentsMissingBreakdown(ctx context.Context, batchSize int, offset int64) ([]*model.Payment, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT payment_id, booking_id, amount, escrow_amount, platform_fee, currency, reference, status, paid_at, created_at, meta_data
		FROM payments
		WHERE status <> $1 AND (escrow_amount IS NULL OR platform_fee IS NULL)
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, model.PaymentStatusPending, batchSize, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payments missing breakdown", err)
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (d Datasource) GetPaymentsByStatus(ctx context.Context, status model.PaymentStatus, limit, offset int) ([]*model.Payment, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT payment_id, booking_id, amount, escrow_amount, platform_fee, currency, reference, status, paid_at, created_at, meta_data
		FROM payments
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payments", err)
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (d Datasource) invalidatePayment(ctx context.Context, id string) {
	if d.Cache == nil {
		return
	}
	_ = d.Cache.Delete(ctx, paymentCacheKey(id))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	pmt := &model.Payment{}
	var metaDataJSON []byte
	err := row.Scan(&pmt.PaymentID, &pmt.BookingID, &pmt.Amount, &pmt.EscrowAmount, &pmt.PlatformFee, &pmt.Currency, &pmt.Reference, &pmt.Status, &pmt.PaidAt, &pmt.CreatedAt, &metaDataJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan payment data", err)
	}

	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &pmt.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}

	return pmt, nil
}

func collectPayments(rows *sql.Rows) ([]*model.Payment, error) {
	payments := []*model.Payment{}
	for rows.Next() {
		pmt, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, pmt)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over payments", err)
	}
	return payments, nil
}
