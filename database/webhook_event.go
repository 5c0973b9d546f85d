package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/payhold-io/payhold/internal/apierror"
	"github.com/payhold-io/payhold/model"
)

// RecordWebhookEvent inserts an inbound event into the webhook ledger. The
// insert rides on the unique (event_type, external_reference) index with ON
// CONFLICT DO NOTHING, so duplicate deliveries collapse onto the first row.
// It returns the stored row and whether this call created it.
func (d Datasource) RecordWebhookEvent(ctx context.Context, event *model.WebhookEvent) (*model.WebhookEvent, bool, error) {
	ctx, span := otel.Tracer("webhook.database").Start(ctx, "Recording webhook event")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		INSERT INTO webhook_events(event_id,event_type,external_reference,payload,processed,retry_count,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (event_type, external_reference) DO NOTHING
	`, event.EventID, event.EventType, event.ExternalReference, []byte(event.Payload), event.Processed, event.RetryCount, event.CreatedAt)
	if err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record webhook event", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record webhook event", err)
	}

	if rows == 0 {
		existing, err := d.GetWebhookEvent(ctx, event.EventType, event.ExternalReference)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	return event, true, nil
}

func (d Datasource) GetWebhookEvent(ctx context.Context, eventType, externalReference string) (*model.WebhookEvent, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT event_id, event_type, external_reference, payload, processed, error, retry_count, created_at, processed_at
		FROM webhook_events
		WHERE event_type = $1 AND external_reference = $2
	`, eventType, externalReference)

	event, err := scanWebhookEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No webhook event recorded for %s:%s", eventType, externalReference), err)
		}
		return nil, err
	}
	return event, nil
}

func (d Datasource) GetWebhookEventByID(ctx context.Context, id string) (*model.WebhookEvent, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT event_id, event_type, external_reference, payload, processed, error, retry_count, created_at, processed_at
		FROM webhook_events
		WHERE event_id = $1
	`, id)

	event, err := scanWebhookEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Webhook event with ID '%s' not found", id), err)
		}
		return nil, err
	}
	return event, nil
}

func (d Datasource) MarkWebhookEventProcessed(ctx context.Context, id string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE webhook_events SET processed = TRUE, error = '', processed_at = NOW() WHERE event_id = $1
	`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark webhook event processed", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Webhook event with ID '%s' not found", id), nil)
	}
	return nil
}

// MarkWebhookEventFailed stores the processing error and bumps the retry
// count. The event stays unprocessed so the replay path can pick it up.
func (d Datasource) MarkWebhookEventFailed(ctx context.Context, id string, processingError string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE webhook_events SET error = $1, retry_count = retry_count + 1 WHERE event_id = $2
	`, processingError, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark webhook event failed", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Webhook event with ID '%s' not found", id), nil)
	}
	return nil
}

func (d Datasource) GetUnprocessedWebhookEvents(ctx context.Context, limit, offset int) ([]*model.WebhookEvent, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT event_id, event_type, external_reference, payload, processed, error, retry_count, created_at, processed_at
		FROM webhook_events
		WHERE processed = FALSE
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve unprocessed webhook events", err)
	}
	defer rows.Close()

	events := []*model.WebhookEvent{}
	for rows.Next() {
		event, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over webhook events", err)
	}
	return events, nil
}

func scanWebhookEvent(row rowScanner) (*model.WebhookEvent, error) {
	event := &model.WebhookEvent{}
	var payload []byte
	var processingError sql.NullString
	err := row.Scan(&event.EventID, &event.EventType, &event.ExternalReference, &payload, &event.Processed, &processingError, &event.RetryCount, &event.CreatedAt, &event.ProcessedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan webhook event data", err)
	}
	event.Payload = payload
	event.Error = processingError.String
	return event, nil
}
