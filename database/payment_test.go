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
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/payhold-io/payhold/internal/apierror"
	"github.com/payhold-io/payhold/model"
)

func newTestDataSource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return Datasource{Conn: db, Cache: nil}, mock
}

func pendingPayment() *model.Payment {
	return &model.Payment{
		PaymentID: "pay_123",
		BookingID: "bkn_456",
		Amount:    decimal.NewFromInt(1000),
		Currency:  "NGN",
		Reference: "REF_abc",
		Status:    model.PaymentStatusPending,
		CreatedAt: time.Now(),
		MetaData:  map[string]interface{}{"channel": "card"},
	}
}

func TestRecordPayment_Success(t *testing.T) {
	ds, mock := newTestDataSource(t)

	pmt := pendingPayment()

	mock.ExpectExec("INSERT INTO payments").
		WithArgs(pmt.PaymentID, pmt.BookingID, pmt.Amount, pmt.EscrowAmount, pmt.PlatformFee, pmt.Currency, pmt.Reference, pmt.Status, pmt.PaidAt, pmt.CreatedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.RecordPayment(context.Background(), pmt)
	assert.NoError(t, err)
	assert.Equal(t, "pay_123", created.PaymentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordPayment_DuplicateReference(t *testing.T) {
	ds, mock := newTestDataSource(t)

	pmt := pendingPayment()

	mock.ExpectExec("INSERT INTO payments").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	_, err := ds.RecordPayment(context.Background(), pmt)
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestGetPayment_Success(t *testing.T) {
	ds, mock := newTestDataSource(t)

	rows := sqlmock.NewRows([]string{"payment_id", "booking_id", "amount", "escrow_amount", "platform_fee", "currency", "reference", "status", "paid_at", "created_at", "meta_data"}).
		AddRow("pay_123", "bkn_456", "1000", "900", "100", "NGN", "REF_abc", "ESCROW", time.Now(), time.Now(), []byte(`{"channel":"card"}`))

	mock.ExpectQuery("SELECT payment_id, booking_id, amount, escrow_amount, platform_fee, currency, reference, status, paid_at, created_at, meta_data FROM payments WHERE payment_id = ?").
		WithArgs("pay_123").
		WillReturnRows(rows)

	pmt, err := ds.GetPayment(context.Background(), "pay_123")
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusEscrow, pmt.Status)
	assert.True(t, pmt.HasBreakdown())
	assert.True(t, pmt.BreakdownConsistent())
	assert.Equal(t, "card", pmt.MetaData["channel"])
}

func TestGetPayment_NotFound(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectQuery("SELECT payment_id, booking_id, amount, escrow_amount, platform_fee, currency, reference, status, paid_at, created_at, meta_data FROM payments WHERE payment_id = ?").
		WithArgs("pay_missing").
		WillReturnError(sql.ErrNoRows)

	_, err := ds.GetPayment(context.Background(), "pay_missing")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestPaymentExistsByReference(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("REF_abc").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := ds.PaymentExistsByReference(context.Background(), "REF_abc")
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestUpdatePaymentStatus_Success(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectExec("UPDATE payments SET status").
		WithArgs(model.PaymentStatusProcessingRelease, "pay_123", model.PaymentStatusEscrow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.UpdatePaymentStatus(context.Background(), "pay_123", model.PaymentStatusEscrow, model.PaymentStatusProcessingRelease)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePaymentStatus_IllegalTransition(t *testing.T) {
	ds, _ := newTestDataSource(t)

	err := ds.UpdatePaymentStatus(context.Background(), "pay_123", model.PaymentStatusReleased, model.PaymentStatusEscrow)
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrInvalidTransition))
}

func TestUpdatePaymentStatus_LostRace(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectExec("UPDATE payments SET status").
		WithArgs(model.PaymentStatusRefunded, "pay_123", model.PaymentStatusEscrow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.UpdatePaymentStatus(context.Background(), "pay_123", model.PaymentStatusEscrow, model.PaymentStatusRefunded)
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrInvalidTransition))
}

func TestApplyEscrowBreakdown_Success(t *testing.T) {
	ds, mock := newTestDataSource(t)

	pmt := pendingPayment()
	pmt.ApplyBreakdown(decimal.NewFromFloat(0.10), false)
	paidAt := time.Now()
	pmt.PaidAt = &paidAt

	mock.ExpectExec("UPDATE payments").
		WithArgs(model.PaymentStatusEscrow, pmt.EscrowAmount, pmt.PlatformFee, pmt.PaidAt, pmt.PaymentID, model.PaymentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.ApplyEscrowBreakdown(context.Background(), pmt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEscrowBreakdown_AlreadyCharged(t *testing.T) {
	ds, mock := newTestDataSource(t)

	pmt := pendingPayment()
	pmt.ApplyBreakdown(decimal.NewFromFloat(0.10), false)

	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.ApplyEscrowBreakdown(context.Background(), pmt)
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrInvalidTransition))
}

func TestGetPaymentsMissingBreakdown(t *testing.T) {
	ds, mock := newTestDataSource(t)

	// drift rows exist in any settled status, not just ESCROW
	rows := sqlmock.NewRows([]string{"payment_id", "booking_id", "amount", "escrow_amount", "platform_fee", "currency", "reference", "status", "paid_at", "created_at", "meta_data"}).
		AddRow("pay_1", "bkn_1", "500", nil, nil, "NGN", "REF_1", "ESCROW", time.Now(), time.Now(), []byte(`{}`)).
		AddRow("pay_2", "bkn_2", "750", nil, nil, "NGN", "REF_2", "RELEASED", time.Now(), time.Now(), []byte(`{}`)).
		AddRow("pay_3", "bkn_3", "250", nil, nil, "NGN", "REF_3", "REFUNDED", time.Now(), time.Now(), []byte(`{}`))

	mock.ExpectQuery("SELECT payment_id, booking_id, amount, escrow_amount, platform_fee, currency, reference, status, paid_at, created_at, meta_data FROM payments WHERE status <> \\$1 AND \\(escrow_amount IS NULL OR platform_fee IS NULL\\)").
		WithArgs(model.PaymentStatusPending, 10, int64(0)).
		WillReturnRows(rows)

	payments, err := ds.GetPaymentsMissingBreakdown(context.Background(), 10, 0)
	assert.NoError(t, err)
	assert.Len(t, payments, 3)
	assert.False(t, payments[0].HasBreakdown())
	assert.Equal(t, model.PaymentStatusReleased, payments[1].Status)
}

func TestUpdatePaymentBreakdown(t *testing.T) {
	ds, mock := newTestDataSource(t)

	pmt := pendingPayment()
	pmt.Status = model.PaymentStatusEscrow
	pmt.ApplyBreakdown(decimal.NewFromFloat(0.10), false)

	mock.ExpectExec("UPDATE payments SET escrow_amount").
		WithArgs(pmt.EscrowAmount, pmt.PlatformFee, pmt.PaymentID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.UpdatePaymentBreakdown(context.Background(), pmt)
	assert.NoError(t, err)
}
