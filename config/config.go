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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"

	// DEFAULT_FEE_RATE is the platform's cut of every charge.
	DEFAULT_FEE_RATE = 0.10

	DEFAULT_MAX_WEBHOOK_RETRIES = 5
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"PAYHOLD_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"PAYHOLD_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"PAYHOLD_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"PAYHOLD_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"PAYHOLD_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"PAYHOLD_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"PAYHOLD_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"PAYHOLD_REDIS_DNS"`
}

type QueueConfig struct {
	TransferQueue     string `json:"transfer_queue" envconfig:"PAYHOLD_TRANSFER_QUEUE"`
	NotificationQueue string `json:"notification_queue" envconfig:"PAYHOLD_NOTIFICATION_QUEUE"`
	NumberOfQueues    int    `json:"number_of_queues" envconfig:"PAYHOLD_NUMBER_OF_QUEUES"`
	MonitoringPort    string `json:"monitoring_port" envconfig:"PAYHOLD_MONITORING_PORT"`
	MaxRetryAttempts  int    `json:"max_retry_attempts" envconfig:"PAYHOLD_MAX_RETRY_ATTEMPTS"`
}

// GatewayConfig points at the external payment gateway the service charges
// clients and pays providers through.
type GatewayConfig struct {
	Endpoint      string `json:"endpoint" envconfig:"PAYHOLD_GATEWAY_ENDPOINT"`
	SecretKey     string `json:"secret_key" envconfig:"PAYHOLD_GATEWAY_SECRET_KEY"`
	WebhookSecret string `json:"webhook_secret" envconfig:"PAYHOLD_GATEWAY_WEBHOOK_SECRET"`
	TimeoutSec    int    `json:"timeout" envconfig:"PAYHOLD_GATEWAY_TIMEOUT_SEC"`
}

// SettlementConfig carries the escrow split policy and the webhook retry cap.
type SettlementConfig struct {
	FeeRate           float64 `json:"fee_rate" envconfig:"PAYHOLD_FEE_RATE"`
	MaxWebhookRetries int     `json:"max_webhook_retries" envconfig:"PAYHOLD_MAX_WEBHOOK_RETRIES"`
}

// CollaboratorConfig is the HTTP location of a read-only collaborator
// (booking lookups, job-completion proof).
type CollaboratorConfig struct {
	Url     string `json:"url"`
	Timeout int    `json:"timeout"`
	Headers struct {
		Authorization string `json:"Authorization"`
	} `json:"headers"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"PAYHOLD_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"PAYHOLD_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"PAYHOLD_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName     string             `json:"project_name" envconfig:"PAYHOLD_PROJECT_NAME"`
	EnableTelemetry bool               `json:"enable_telemetry" envconfig:"PAYHOLD_ENABLE_TELEMETRY"`
	Server          ServerConfig       `json:"server"`
	DataSource      DataSourceConfig   `json:"data_source"`
	Redis           RedisConfig        `json:"redis"`
	Queue           QueueConfig        `json:"queue"`
	Gateway         GatewayConfig      `json:"gateway"`
	Settlement      SettlementConfig   `json:"settlement"`
	Booking         CollaboratorConfig `json:"booking"`
	Completion      CollaboratorConfig `json:"completion"`
	Notification    Notification       `json:"notification"`
	RateLimit       RateLimitConfig    `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("payhold", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called payhold.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Payhold Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Gateway.Endpoint == "" {
		log.Println("Error: Gateway endpoint is empty. It's a required field.")
		return errors.New("gateway endpoint is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Gateway.Endpoint = strings.TrimSpace(cnf.Gateway.Endpoint)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Settlement.FeeRate <= 0 || cnf.Settlement.FeeRate >= 1 {
		cnf.Settlement.FeeRate = DEFAULT_FEE_RATE
		log.Printf("Warning: Fee rate not specified or out of range. Setting default rate: %.2f", DEFAULT_FEE_RATE)
	}

	if cnf.Settlement.MaxWebhookRetries <= 0 {
		cnf.Settlement.MaxWebhookRetries = DEFAULT_MAX_WEBHOOK_RETRIES
	}

	if cnf.Gateway.TimeoutSec <= 0 {
		cnf.Gateway.TimeoutSec = 30
	}

	if cnf.Queue.TransferQueue == "" {
		cnf.Queue.TransferQueue = "new:transfer"
	}
	if cnf.Queue.NotificationQueue == "" {
		cnf.Queue.NotificationQueue = "new:notification"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 4
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5003"
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}

	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
