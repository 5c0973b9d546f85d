package payhold

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/payhold-io/payhold/internal/apierror"
	"github.com/payhold-io/payhold/model"
)

var webhookEventColumns = []string{"event_id", "event_type", "external_reference", "payload", "processed", "error", "retry_count", "created_at", "processed_at"}

func TestIngestWebhook_InvalidSignature(t *testing.T) {
	p, mock := newTestPayhold(t)

	p.gateway = &MockGateway{
		VerifyFunc: func(payload []byte, signature string) bool { return false },
	}

	_, err := p.IngestWebhook(context.Background(), model.EventChargeSuccess, "ref_abc", json.RawMessage(`{"reference":"ref_abc"}`), "bad-signature")
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrInvalidSignature))

	// nothing was persisted
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestWebhook_ChargeSuccess(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectExec("INSERT INTO webhook_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery("SELECT .* FROM payments WHERE reference = \\$1").
		WithArgs("ref_abc").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay_1", "bkn_1", "1000", nil, nil, "NGN", "ref_abc", "PENDING", nil, time.Now(), []byte(`{}`)))

	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec("UPDATE webhook_events SET processed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	event, err := p.IngestWebhook(context.Background(), model.EventChargeSuccess, "ref_abc", json.RawMessage(`{"reference":"ref_abc"}`), "sig")
	assert.NoError(t, err)
	assert.True(t, event.Processed)
	assert.NotNil(t, event.ProcessedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestWebhook_DuplicateProcessedIsNoOp(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectExec("INSERT INTO webhook_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery("SELECT .* FROM webhook_events WHERE event_type = \\$1 AND external_reference = \\$2").
		WithArgs(model.EventChargeSuccess, "ref_abc").
		WillReturnRows(sqlmock.NewRows(webhookEventColumns).
			AddRow("evt_first", model.EventChargeSuccess, "ref_abc", []byte(`{}`), true, "", 0, time.Now(), time.Now()))

	event, err := p.IngestWebhook(context.Background(), model.EventChargeSuccess, "ref_abc", json.RawMessage(`{"reference":"ref_abc"}`), "sig")
	assert.NoError(t, err)
	assert.Equal(t, "evt_first", event.EventID)
	assert.True(t, event.Processed)

	// no settlement flow ran for the duplicate
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestWebhook_RedeliveryAfterRetriesExhausted(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectExec("INSERT INTO webhook_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery("SELECT .* FROM webhook_events WHERE event_type = \\$1 AND external_reference = \\$2").
		WithArgs(model.EventChargeSuccess, "ref_abc").
		WillReturnRows(sqlmock.NewRows(webhookEventColumns).
			AddRow("evt_first", model.EventChargeSuccess, "ref_abc", []byte(`{}`), false, "payment not found", 5, time.Now(), nil))

	_, err := p.IngestWebhook(context.Background(), model.EventChargeSuccess, "ref_abc", json.RawMessage(`{"reference":"ref_abc"}`), "sig")
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrGateway))

	// no settlement flow ran and the retry count was not bumped again
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestWebhook_DispatchFailureRecordsError(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectExec("INSERT INTO webhook_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery("SELECT .* FROM payments WHERE reference = \\$1").
		WithArgs("ref_unknown").
		WillReturnError(sql.ErrNoRows)

	mock.ExpectExec("UPDATE webhook_events SET error").
		WillReturnResult(sqlmock.NewResult(0, 1))

	event, err := p.IngestWebhook(context.Background(), model.EventChargeSuccess, "ref_unknown", json.RawMessage(`{"reference":"ref_unknown"}`), "sig")
	assert.Error(t, err)
	assert.False(t, event.Processed)
	assert.Equal(t, 1, event.RetryCount)
	assert.NotEmpty(t, event.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestWebhook_TransferFailed(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectExec("INSERT INTO webhook_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery("SELECT .* FROM payouts WHERE reference = \\$1").
		WithArgs("pytref_1").
		WillReturnRows(sqlmock.NewRows(payoutColumns).
			AddRow("pyt_1", "pay_1", "prv_1", "900", "NGN", "pytref_1", "PROCESSING", "TRF_1", "RCP_1", "", time.Now(), []byte(`{}`)))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payouts SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE payments SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("UPDATE webhook_events SET processed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	event, err := p.IngestWebhook(context.Background(), model.EventTransferFailed, "pytref_1", json.RawMessage(`{"reference":"pytref_1","reason":"insufficient balance"}`), "sig")
	assert.NoError(t, err)
	assert.True(t, event.Processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplayWebhookEvent_AlreadyProcessed(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectQuery("SELECT .* FROM webhook_events WHERE event_id = \\$1").
		WithArgs("evt_1").
		WillReturnRows(sqlmock.NewRows(webhookEventColumns).
			AddRow("evt_1", model.EventChargeSuccess, "ref_abc", []byte(`{}`), true, "", 1, time.Now(), time.Now()))

	event, err := p.ReplayWebhookEvent(context.Background(), "evt_1")
	assert.NoError(t, err)
	assert.True(t, event.Processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplayWebhookEvent_RetriesExhausted(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectQuery("SELECT .* FROM webhook_events WHERE event_id = \\$1").
		WithArgs("evt_1").
		WillReturnRows(sqlmock.NewRows(webhookEventColumns).
			AddRow("evt_1", model.EventChargeSuccess, "ref_abc", []byte(`{}`), false, "payment not found", 5, time.Now(), nil))

	_, err := p.ReplayWebhookEvent(context.Background(), "evt_1")
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrGateway))
}

func TestReplayWebhookEvent_Succeeds(t *testing.T) {
	p, mock := newTestPayhold(t)

	mock.ExpectQuery("SELECT .* FROM webhook_events WHERE event_id = \\$1").
		WithArgs("evt_1").
		WillReturnRows(sqlmock.NewRows(webhookEventColumns).
			AddRow("evt_1", model.EventChargeSuccess, "ref_abc", []byte(`{"reference":"ref_abc"}`), false, "payment not found", 2, time.Now(), nil))

	mock.ExpectQuery("SELECT .* FROM payments WHERE reference = \\$1").
		WithArgs("ref_abc").
		WillReturnRows(sqlmock.NewRows(paymentColumns).
			AddRow("pay_1", "bkn_1", "1000", nil, nil, "NGN", "ref_abc", "PENDING", nil, time.Now(), []byte(`{}`)))

	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec("UPDATE webhook_events SET processed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	event, err := p.ReplayWebhookEvent(context.Background(), "evt_1")
	assert.NoError(t, err)
	assert.True(t, event.Processed)
}
