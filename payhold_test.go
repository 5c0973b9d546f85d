package payhold

import (
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/payhold-io/payhold/config"
	"github.com/payhold-io/payhold/database"
	redis_db "github.com/payhold-io/payhold/internal/redis-db"
)

// newTestPayhold wires a Payhold instance against miniredis, a sqlmock-backed
// datasource, and stub collaborators.
func newTestPayhold(t *testing.T) (*Payhold, sqlmock.Sqlmock) {
	t.Helper()

	mr, err := miniredis.Run()
	assert.NoError(t, err)
	t.Cleanup(mr.Close)

	cnf := &config.Configuration{
		ProjectName: "payhold-test",
		Redis:       config.RedisConfig{Dns: mr.Addr()},
		Queue: config.QueueConfig{
			TransferQueue:     "new:transfer",
			NotificationQueue: "new:notification",
			NumberOfQueues:    2,
			MaxRetryAttempts:  3,
		},
		Settlement: config.SettlementConfig{FeeRate: 0.10, MaxWebhookRetries: 5},
		Gateway:    config.GatewayConfig{Endpoint: "https://api.gateway.test", TimeoutSec: 5},
	}
	config.MockConfig(cnf)

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", mr.Addr())})
	assert.NoError(t, err)

	p := &Payhold{
		datasource: database.Datasource{Conn: db, Cache: nil},
		queue:      NewQueue(cnf),
		redis:      redisClient.Client(),
		gateway:    &MockGateway{},
		bookings:   &MockBookingService{},
		proofs:     &MockCompletionService{},
	}
	return p, mock
}
