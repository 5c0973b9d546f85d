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

	"github.com/sirupsen/logrus"

	"github.com/payhold-io/payhold/config"
	"github.com/payhold-io/payhold/internal/apierror"
	"github.com/payhold-io/payhold/internal/notification"
	"github.com/payhold-io/payhold/model"
)

// gatewayEventData is the slice of a gateway webhook payload the dispatch
// path needs.
type gatewayEventData struct {
	Reference string     `json:"reference"`
	Reason    string     `json:"reason"`
	PaidAt    *time.Time `json:"paid_at"`
}

// IngestWebhook authenticates and records an inbound gateway event, then
// dispatches it to the owning settlement flow. The unique
// (event_type, external_reference) index makes ingestion idempotent: a
// duplicate delivery of an already-processed event is a no-op success.
// Nothing is persisted for events that fail signature verification.
func (p *Payhold) IngestWebhook(ctx context.Context, eventType, externalReference string, payload json.RawMessage, signature string) (*model.WebhookEvent, error) {
	ctx, span := tracer.Start(ctx, "Ingesting gateway webhook")
	defer span.End()

	if !p.gateway.VerifyWebhookSignature(payload, signature) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidSignature, "Webhook signature verification failed", nil)
	}

	event := &model.WebhookEvent{
		EventID:           model.GenerateUUIDWithSuffix("evt"),
		EventType:         eventType,
		ExternalReference: externalReference,
		Payload:           payload,
		CreatedAt:         time.Now(),
	}

	event, created, err := p.datasource.RecordWebhookEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	if !created {
		if event.Processed {
			logrus.Infof("duplicate delivery of %s ignored", event.IdempotencyKey())
			return event, nil
		}
		// a redelivery of a failing event burns from the same retry budget
		// as an operator replay
		if err := p.checkRetryBudget(event); err != nil {
			return nil, err
		}
	}

	return p.processWebhookEvent(ctx, event)
}

// checkRetryBudget refuses further dispatch attempts for an event that has
// exhausted its retries; at that point the event needs an operator, and
// Slack is told so.
func (p *Payhold) checkRetryBudget(event *model.WebhookEvent) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}
	if event.RetryCount >= cnf.Settlement.MaxWebhookRetries {
		exhausted := fmt.Errorf("webhook event %s exhausted its %d retries: %s", event.EventID, cnf.Settlement.MaxWebhookRetries, event.Error)
		notification.NotifyError(exhausted)
		return apierror.NewAPIError(apierror.ErrGateway, exhausted.Error(), nil)
	}
	return nil
}

// ReplayWebhookEvent re-runs the dispatch for a stuck event, subject to the
// same retry budget as gateway redeliveries.
func (p *Payhold) ReplayWebhookEvent(ctx context.Context, id string) (*model.WebhookEvent, error) {
	ctx, span := tracer.Start(ctx, "Replaying webhook event")
	defer span.End()

	event, err := p.datasource.GetWebhookEventByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.Processed {
		return event, nil
	}

	if err := p.checkRetryBudget(event); err != nil {
		return nil, err
	}

	return p.processWebhookEvent(ctx, event)
}

// GetUnprocessedWebhookEvents lists events awaiting (re)processing, for
// operator visibility.
func (p *Payhold) GetUnprocessedWebhookEvents(ctx context.Context, limit, offset int) ([]*model.WebhookEvent, error) {
	return p.datasource.GetUnprocessedWebhookEvents(ctx, limit, offset)
}

// processWebhookEvent dispatches an event and settles its ledger row: marked
// processed on success, error recorded and retry count bumped on failure.
func (p *Payhold) processWebhookEvent(ctx context.Context, event *model.WebhookEvent) (*model.WebhookEvent, error) {
	dispatchErr := p.dispatchEvent(ctx, event)
	if dispatchErr != nil {
		if err := p.datasource.MarkWebhookEventFailed(ctx, event.EventID, dispatchErr.Error()); err != nil {
			logrus.Errorf("failed to record webhook failure for %s: %v", event.EventID, err)
		}
		event.Error = dispatchErr.Error()
		event.RetryCount++
		return event, dispatchErr
	}

	if err := p.datasource.MarkWebhookEventProcessed(ctx, event.EventID); err != nil {
		return nil, err
	}
	event.Processed = true
	event.Error = ""
	now := time.Now()
	event.ProcessedAt = &now
	return event, nil
}

// dispatchEvent routes an event to the settlement flow that owns it.
func (p *Payhold) dispatchEvent(ctx context.Context, event *model.WebhookEvent) error {
	var data gatewayEventData
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &data); err != nil {
			return apierror.NewAPIError(apierror.ErrInvalidInput, "Malformed webhook payload", err)
		}
	}

	switch event.EventType {
	case model.EventChargeSuccess:
		paidAt := time.Now()
		if data.PaidAt != nil {
			paidAt = *data.PaidAt
		}
		_, err := p.ApplyChargeSuccess(ctx, event.ExternalReference, paidAt)
		return err
	case model.EventChargeFailed:
		_, err := p.ApplyChargeFailure(ctx, event.ExternalReference)
		return err
	case model.EventTransferSuccess:
		_, err := p.OnTransferResult(ctx, event.ExternalReference, true, "")
		return err
	case model.EventTransferFailed:
		_, err := p.OnTransferResult(ctx, event.ExternalReference, false, data.Reason)
		return err
	default:
		return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Unknown event type '%s'", event.EventType), nil)
	}
}
