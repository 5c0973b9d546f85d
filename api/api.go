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
package api

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/payhold-io/payhold"
	"github.com/payhold-io/payhold/api/middleware"
	"github.com/payhold-io/payhold/config"
)

type Api struct {
	payhold *payhold.Payhold
	router  *gin.Engine
}

// Router registers the HTTP surface. The gateway webhook endpoint sits
// outside the secret-key group: the gateway authenticates with its HMAC
// signature, not an API key.
func (a Api) Router() *gin.Engine {
	router := a.router

	// gateway-facing
	router.POST("/webhooks/gateway", a.IngestGatewayWebhook)

	// operator/backend-facing
	secured := router.Group("/")
	conf, err := config.Fetch()
	if err == nil && conf.Server.Secure {
		secured.Use(middleware.SecretKeyAuthMiddleware())
	}

	secured.POST("/payments", a.InitiatePayment)
	secured.GET("/payments", a.ListPayments)
	secured.GET("/payments/:id", a.GetPayment)
	secured.POST("/payments/:id/release", a.RequestRelease)
	secured.POST("/payments/:id/refund", a.RefundPayment)
	secured.POST("/payments/:id/payouts", a.RequestPayout)
	secured.GET("/payments/:id/payout", a.GetPaymentPayout)

	secured.GET("/payouts/:id", a.GetPayout)

	secured.POST("/webhooks/:id/replay", a.ReplayWebhookEvent)
	secured.GET("/webhooks/unprocessed", a.GetUnprocessedWebhookEvents)

	secured.POST("/reconciliation/backfill-breakdown", a.BackfillBreakdown)

	return a.router
}

func NewAPI(p *payhold.Payhold) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{payhold: p, router: r}
}
