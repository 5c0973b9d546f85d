package payhold

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/payhold-io/payhold/gateway"
	"github.com/payhold-io/payhold/internal/apierror"
	"github.com/payhold-io/payhold/model"
)

var paymentColumns = []string{"payment_id", "booking_id", "amount", "escrow_amount", "platform_fee", "currency", "reference", "status", "paid_at", "created_at", "meta_data"}

func TestInitiatePayment(t *testing.T) {
	p, mock := newTestPayhold(t)

	p.gateway = &MockGateway{
		ChargeFunc: func(_ context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
			return &gateway.ChargeResult{
				AuthorizationURL: "https://checkout.gateway.test/abc",
				Reference:        req.Reference,
			}, nil
		},
	}

	mock.ExpectExec("INSERT INTO payments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	payment, charge, err := p.InitiatePayment(context.Background(), &model.Payment{
		BookingID: gofakeit.UUID(),
		Amount:    decimal.NewFromInt(1000),
		Currency:  "NGN",
	})
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.NotEmpty(t, payment.PaymentID)
	assert.NotEmpty(t, payment.Reference)
	assert.False(t, payment.HasBreakdown())
	assert.Equal(t, "https://checkout.gateway.test/abc", charge.AuthorizationURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitiatePayment_DuplicateReference(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ref_client_1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, _, err := p.InitiatePayment(context.Background(), &model.Payment{
		BookingID: gofakeit.UUID(),
		Amount:    decimal.NewFromInt(1000),
		Currency:  "NGN",
		Reference: "ref_client_1",
	})
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrConflict))
}

func TestInitiatePayment_NonPositiveAmount(t *testing.T) {
	p, _ := newTestPayhold(t)

	_, _, err := p.InitiatePayment(context.Background(), &model.Payment{
		BookingID: gofakeit.UUID(),
		Amount:    decimal.Zero,
		Currency:  "NGN",
	})
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrInvalidInput))
}

func TestInitiatePayment_UnknownBooking(t *testing.T) {
	p, _ := newTestPayhold(t)

	p.bookings = &MockBookingService{
		GetBookingFunc: func(_ context.Context, bookingID string) (*Booking, error) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Booking not found", nil)
		},
	}

	_, _, err := p.InitiatePayment(context.Background(), &model.Payment{
		BookingID: gofakeit.UUID(),
		Amount:    decimal.NewFromInt(500),
		Currency:  "NGN",
	})
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
}

func TestApplyChargeSuccess_ComputesBreakdown(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectQuery("SELECT .* FROM payments WHERE reference = \\$1").
		WithArgs("ref_abc").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay_1", "bkn_1", "1000", nil, nil, "NGN", "ref_abc", "PENDING", nil, time.Now(), []byte(`{}`)))

	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	payment, err := p.ApplyChargeSuccess(context.Background(), "ref_abc", time.Now())
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusEscrow, payment.Status)
	assert.True(t, payment.EscrowAmount.Decimal.Equal(decimal.RequireFromString("900")))
	assert.True(t, payment.PlatformFee.Decimal.Equal(decimal.RequireFromString("100")))
	assert.NotNil(t, payment.PaidAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyChargeSuccess_AlreadyEscrowed(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectQuery("SELECT .* FROM payments WHERE reference = \\$1").
		WithArgs("ref_abc").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay_1", "bkn_1", "1000", "900", "100", "NGN", "ref_abc", "ESCROW", time.Now(), time.Now(), []byte(`{}`)))

	payment, err := p.ApplyChargeSuccess(context.Background(), "ref_abc", time.Now())
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusEscrow, payment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyChargeSuccess_ReleasedPayment(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectQuery("SELECT .* FROM payments WHERE reference = \\$1").
		WithArgs("ref_abc").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay_1", "bkn_1", "1000", nil, nil, "NGN", "ref_abc", "RELEASED", time.Now(), time.Now(), []byte(`{}`)))

	_, err := p.ApplyChargeSuccess(context.Background(), "ref_abc", time.Now())
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrInvalidTransition))
}

func TestApplyChargeFailure(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectQuery("SELECT .* FROM payments WHERE reference = \\$1").
		WithArgs("ref_abc").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay_1", "bkn_1", "1000", nil, nil, "NGN", "ref_abc", "PENDING", nil, time.Now(), []byte(`{}`)))

	mock.ExpectExec("UPDATE payments SET status").
		WithArgs(model.PaymentStatusFailed, "pay_1", model.PaymentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	payment, err := p.ApplyChargeFailure(context.Background(), "ref_abc")
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, payment.Status)
}

func TestRequestRelease_NoCompletionProof(t *testing.T) {
	p, mock := newTestPayhold(t)

	p.proofs = &MockCompletionService{
		IsJobCompletedFunc: func(_ context.Context, bookingID string) (bool, error) {
			return false, nil
		},
	}

	mock.ExpectQuery("SELECT .* FROM payments WHERE payment_id = \\$1").
		WithArgs("pay_1").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay_1", "bkn_1", "1000", "900", "100", "NGN", "ref_abc", "ESCROW", time.Now(), time.Now(), []byte(`{}`)))

	_, _, err := p.RequestRelease(context.Background(), "pay_1")
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrNotEligible))
}

func TestRequestRelease_NotInEscrow(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectQuery("SELECT .* FROM payments WHERE payment_id = \\$1").
		WithArgs("pay_1").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay_1", "bkn_1", "1000", nil, nil, "NGN", "ref_abc", "PENDING", nil, time.Now(), []byte(`{}`)))

	_, _, err := p.RequestRelease(context.Background(), "pay_1")
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrNotEligible))
}

func TestRequestRelease_CreatesPayout(t *testing.T) {
	p, mock := newTestPayhold(t)

	// release gate
	mock.ExpectQuery("SELECT .* FROM payments WHERE payment_id = \\$1").
		WithArgs("pay_1").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay_1", "bkn_1", "1000", "900", "100", "NGN", "ref_abc", "ESCROW", time.Now(), time.Now(), []byte(`{}`)))

	mock.ExpectExec("UPDATE payments SET status").
		WithArgs(model.PaymentStatusProcessingRelease, "pay_1", model.PaymentStatusEscrow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// payout request re-reads the payment
	mock.ExpectQuery("SELECT .* FROM payments WHERE payment_id = \\$1").
		WithArgs("pay_1").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay_1", "bkn_1", "1000", "900", "100", "NGN", "ref_abc", "PROCESSING_RELEASE", time.Now(), time.Now(), []byte(`{}`)))

	mock.ExpectExec("INSERT INTO payouts").
		WillReturnResult(sqlmock.NewResult(1, 1))

	payment, payout, err := p.RequestRelease(context.Background(), "pay_1")
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusProcessingRelease, payment.Status)
	assert.Equal(t, model.PayoutStatusPending, payout.Status)
	assert.True(t, payout.Amount.Equal(decimal.RequireFromString("900")))
	assert.Equal(t, "prv_mock", payout.ProviderID)
	assert.NoError(t, mock.ExpectationsWereMet())

	// the payout is waiting on the transfer queue
	queued, err := p.queue.GetPayoutFromQueue(payout.PayoutID)
	assert.NoError(t, err)
	assert.NotNil(t, queued)
	assert.Equal(t, payout.PayoutID, queued.PayoutID)
}

func TestRefundPayment(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectQuery("SELECT .* FROM payments WHERE payment_id = \\$1").
		WithArgs("pay_1").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay_1", "bkn_1", "1000", "900", "100", "NGN", "ref_abc", "ESCROW", time.Now(), time.Now(), []byte(`{}`)))

	mock.ExpectExec("UPDATE payments SET status").
		WithArgs(model.PaymentStatusRefunded, "pay_1", model.PaymentStatusEscrow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	payment, err := p.RefundPayment(context.Background(), "pay_1")
	assert.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, payment.Status)
}

func TestRefundPayment_AlreadyReleased(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectQuery("SELECT .* FROM payments WHERE payment_id = \\$1").
		WithArgs("pay_1").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay_1", "bkn_1", "1000", "900", "100", "NGN", "ref_abc", "RELEASED", time.Now(), time.Now(), []byte(`{}`)))

	_, err := p.RefundPayment(context.Background(), "pay_1")
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrInvalidTransition))
}
