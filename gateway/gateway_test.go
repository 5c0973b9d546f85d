package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/payhold-io/payhold/internal/apierror"
)

func newTestClient() *HTTPClient {
	return &HTTPClient{
		endpoint:      "https://api.gateway.test",
		secretKey:     "sk_test_123",
		webhookSecret: "whsec_test",
		timeout:       5 * time.Second,
	}
}

func TestCharge_Success(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://api.gateway.test/transaction/initialize",
		httpmock.NewStringResponder(200, `{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.gateway.test/abc","access_code":"abc","reference":"REF_1"}}`))

	c := newTestClient()
	result, err := c.Charge(context.Background(), ChargeRequest{
		Email:     "client@example.com",
		Amount:    decimal.NewFromInt(1000),
		Currency:  "NGN",
		Reference: "REF_1",
	})
	assert.NoError(t, err)
	assert.Equal(t, "https://checkout.gateway.test/abc", result.AuthorizationURL)
	assert.Equal(t, "REF_1", result.Reference)
}

func TestCharge_GatewayRejection(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://api.gateway.test/transaction/initialize",
		httpmock.NewStringResponder(200, `{"status":false,"message":"Invalid currency"}`))

	c := newTestClient()
	_, err := c.Charge(context.Background(), ChargeRequest{Reference: "REF_1"})
	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrGateway))
}

func TestTransfer_Success(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://api.gateway.test/transfer",
		httpmock.NewStringResponder(200, `{"status":true,"message":"Transfer queued","data":{"transfer_code":"TRF_1","status":"pending","reference":"PYT_REF_1"}}`))

	c := newTestClient()
	result, err := c.Transfer(context.Background(), TransferRequest{
		Amount:        decimal.NewFromInt(900),
		Currency:      "NGN",
		Reference:     "PYT_REF_1",
		RecipientCode: "RCP_1",
	})
	assert.NoError(t, err)
	assert.Equal(t, "TRF_1", result.TransferCode)
}

func TestTransfer_RetriesServerErrors(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	calls := 0
	httpmock.RegisterResponder("POST", "https://api.gateway.test/transfer",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return httpmock.NewStringResponse(502, `{}`), nil
			}
			return httpmock.NewStringResponse(200, `{"status":true,"data":{"transfer_code":"TRF_2","status":"pending","reference":"PYT_REF_2"}}`), nil
		})

	c := newTestClient()
	result, err := c.Transfer(context.Background(), TransferRequest{Reference: "PYT_REF_2"})
	assert.NoError(t, err)
	assert.Equal(t, "TRF_2", result.TransferCode)
	assert.Equal(t, 2, calls)
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := newTestClient()
	payload := []byte(`{"event":"charge.success","data":{"reference":"REF_1"}}`)

	mac := hmac.New(sha512.New, []byte("whsec_test"))
	mac.Write(payload)
	valid := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, c.VerifyWebhookSignature(payload, valid))
	assert.False(t, c.VerifyWebhookSignature(payload, "deadbeef"))
	assert.False(t, c.VerifyWebhookSignature([]byte(`tampered`), valid))
}
