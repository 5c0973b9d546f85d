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

// Package gateway is the client for the external payment gateway. It charges
// clients, submits provider transfers, and authenticates inbound webhooks.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/payhold-io/payhold/config"
	"github.com/payhold-io/payhold/internal/apierror"
	"github.com/payhold-io/payhold/internal/request"
)

// ChargeRequest initializes a client charge at the gateway.
type ChargeRequest struct {
	Email     string                 `json:"email"`
	Amount    decimal.Decimal        `json:"amount"`
	Currency  string                 `json:"currency"`
	Reference string                 `json:"reference"`
	MetaData  map[string]interface{} `json:"metadata,omitempty"`
}

// ChargeResult is the gateway's answer to a charge initialization. The
// client completes the charge on the authorization URL; settlement arrives
// later as a charge.success webhook.
type ChargeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// TransferRequest submits a provider payout transfer.
type TransferRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reference     string          `json:"reference"`
	RecipientCode string          `json:"recipient"`
	Reason        string          `json:"reason,omitempty"`
}

// TransferResult is the gateway's synchronous acknowledgement of a transfer.
// The terminal outcome arrives as a transfer.success or transfer.failed
// webhook.
type TransferResult struct {
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
	Reference    string `json:"reference"`
}

// Client is the surface the settlement flows need from the gateway.
type Client interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// envelope is the gateway's standard response wrapper.
type envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

type chargeEnvelope struct {
	envelope
	Data ChargeResult `json:"data"`
}

type transferEnvelope struct {
	envelope
	Data TransferResult `json:"data"`
}

// HTTPClient implements Client over the gateway's REST API.
type HTTPClient struct {
	endpoint      string
	secretKey     string
	webhookSecret string
	timeout       time.Duration
}

// NewClient builds an HTTPClient from the loaded configuration.
func NewClient() (*HTTPClient, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		endpoint:      cfg.Gateway.Endpoint,
		secretKey:     cfg.Gateway.SecretKey,
		webhookSecret: cfg.Gateway.WebhookSecret,
		timeout:       time.Duration(cfg.Gateway.TimeoutSec) * time.Second,
	}, nil
}

func (c *HTTPClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	var resp chargeEnvelope
	if err := c.post(ctx, "/transaction/initialize", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, apierror.NewAPIError(apierror.ErrGateway, fmt.Sprintf("Gateway rejected charge: %s", resp.Message), nil)
	}
	return &resp.Data, nil
}

func (c *HTTPClient) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	var resp transferEnvelope
	if err := c.post(ctx, "/transfer", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, apierror.NewAPIError(apierror.ErrGateway, fmt.Sprintf("Gateway rejected transfer: %s", resp.Message), nil)
	}
	return &resp.Data, nil
}

// VerifyWebhookSignature checks the HMAC-SHA512 signature the gateway attaches
// to webhook deliveries. hmac.Equal keeps the comparison constant-time.
func (c *HTTPClient) VerifyWebhookSignature(payload []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// post sends a JSON request to the gateway, retrying transport-level failures
// with exponential backoff. Gateway-level rejections are not retried.
func (c *HTTPClient) post(ctx context.Context, path string, body, response interface{}) error {
	operation := func() error {
		payload, err := request.ToJsonReq(body)
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+path, payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.secretKey)

		resp, err := request.CallWithTimeout(req, response, c.timeout)
		if err != nil {
			return errors.Wrap(err, "gateway call failed")
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return errors.Errorf("gateway returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return backoff.Permanent(errors.Errorf("gateway returned %d", resp.StatusCode))
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return apierror.NewAPIError(apierror.ErrGateway, "Gateway unreachable", err)
	}
	return nil
}
