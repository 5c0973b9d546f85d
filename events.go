/*
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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/payhold-io/payhold/config"
)

// Notification event names emitted as the ledgers move.
const (
	EventPaymentEscrowed = "payment.escrowed"
	EventPaymentReleased = "payment.released"
	EventPaymentRefunded = "payment.refunded"
	EventPaymentFailed   = "payment.failed"
	EventPayoutCompleted = "payout.completed"
	EventPayoutFailed    = "payout.failed"
)

// NewEvent represents the structure of an outbound notification event.
// It includes an event type and associated payload data.
type NewEvent struct {
	Event   string      `json:"event"` // The event type that triggered the notification.
	Payload interface{} `json:"data"`  // The data associated with the event.
}

// processHTTP delivers a notification event via HTTP POST to the configured
// consumer endpoint.
func processHTTP(data NewEvent) error {
	conf, err := config.Fetch()
	if err != nil {
		log.Println("Error fetching config:", err)
		return err
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Println("Error marshaling data:", err)
		return err
	}
	payload := bytes.NewBuffer(jsonData)

	req, err := http.NewRequest("POST", conf.Notification.Webhook.Url, payload)
	if err != nil {
		log.Println("Error creating request:", err)
		return err
	}

	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		log.Println("Error sending request:", err)
		return err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logrus.Error(err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("Request failed with status code: %d\n", resp.StatusCode)
		return nil
	}

	log.Println("Notification event sent successfully:", data.Event)
	return nil
}

// SendEvent enqueues a notification event task. A missing consumer URL makes
// this a no-op, so the settlement flows can emit unconditionally.
func SendEvent(newEvent NewEvent) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: conf.Redis.Dns})
	defer func() {
		_ = client.Close()
	}()
	payload, err := json.Marshal(newEvent)
	if err != nil {
		log.Println(err)
		return err
	}
	taskOptions := []asynq.Option{asynq.Queue(conf.Queue.NotificationQueue)}
	task := asynq.NewTask(conf.Queue.NotificationQueue, payload, taskOptions...)
	info, err := client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	return err
}

// ProcessEvent processes a notification event task from the queue.
func ProcessEvent(_ context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	if conf.Notification.Webhook.Url == "" {
		return nil
	}
	var payload NewEvent
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		log.Printf("Error unmarshaling task payload: %v", err)
		return err
	}
	log.Printf("Processing notification event: %+v\n", payload.Event)
	return processHTTP(payload)
}
