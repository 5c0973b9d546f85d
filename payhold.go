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
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/payhold-io/payhold/config"
	"github.com/payhold-io/payhold/database"
	"github.com/payhold-io/payhold/gateway"
	redis_db "github.com/payhold-io/payhold/internal/redis-db"
)

// Payhold represents the main struct for the Payhold application.
type Payhold struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	gateway    gateway.Client
	bookings   BookingService
	proofs     CompletionService
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewPayhold initializes a new instance of Payhold with the provided database
// datasource. It fetches the configuration and initializes the Redis client,
// the task queue, the gateway client, and the booking/completion
// collaborators.
func NewPayhold(db database.IDataSource) (*Payhold, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	gatewayClient, err := gateway.NewClient()
	if err != nil {
		return nil, err
	}

	newPayhold := &Payhold{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		gateway:    gatewayClient,
		bookings:   NewHTTPBookingService(configuration),
		proofs:     NewHTTPCompletionService(configuration),
	}
	return newPayhold, nil
}
