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
	"hash/fnv"
	"log"

	"github.com/hibiken/asynq"

	"github.com/payhold-io/payhold/config"
	redis_db "github.com/payhold-io/payhold/internal/redis-db"
	"github.com/payhold-io/payhold/model"
)

// Queue wraps the asynq client and inspector used for transfer submission
// and notification dispatch.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance from the configured Redis.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(fmt.Sprintf("redis://%s", conf.Redis.Dns))
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueTransfer queues a payout for submission to the gateway. Payouts for
// the same provider hash onto the same queue, so transfers to one provider
// are processed serially and never race each other at the gateway.
func (q *Queue) EnqueueTransfer(ctx context.Context, payout *model.Payout) error {
	ctx, span := tracer.Start(ctx, "Adding payout to transfer queue")
	defer span.End()

	payload, err := json.Marshal(payout)
	if err != nil {
		return err
	}

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	queueIndex := hashProviderID(payout.ProviderID) % cnf.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cnf.Queue.TransferQueue, queueIndex+1)

	taskOptions := []asynq.Option{
		asynq.TaskID(payout.PayoutID),
		asynq.Queue(queueName),
		asynq.MaxRetry(cnf.Queue.MaxRetryAttempts),
	}
	task := asynq.NewTask(queueName, payload, taskOptions...)

	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued transfer: %+v", payout.Reference)
	return nil
}

// hashProviderID returns a consistent hash value for a provider ID.
func hashProviderID(providerID string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(providerID))
	return int(hasher.Sum32())
}

// GetPayoutFromQueue retrieves a queued payout by its ID, checking every
// transfer queue shard.
func (q *Queue) GetPayoutFromQueue(payoutID string) (*model.Payout, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.TransferQueue, i)
		task, err := q.Inspector.GetTaskInfo(queueName, payoutID)
		if err == nil && task != nil {
			var payout model.Payout
			if err := json.Unmarshal(task.Payload, &payout); err != nil {
				return nil, err
			}
			return &payout, nil
		}
	}
	return nil, nil
}
