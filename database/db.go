package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/payhold-io/payhold/config"
	"github.com/payhold-io/payhold/internal/cache"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		ca, errCache := cache.NewCache()
		if errCache != nil {
			log.Printf("cache disabled: %v", errCache)
			ca = nil
		}
		instance = &Datasource{Conn: con, Cache: ca}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createPaymentTable(db)
	if err != nil {
		return nil, err
	}
	err = createPayoutTable(db)
	if err != nil {
		return nil, err
	}
	err = createWebhookEventTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createPaymentTable creates a PostgreSQL table for the Payment struct
func createPaymentTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS payments (
			id SERIAL PRIMARY KEY,
			payment_id TEXT NOT NULL UNIQUE,
			booking_id TEXT NOT NULL,
			amount NUMERIC(20,4) NOT NULL,
			escrow_amount NUMERIC(20,4),
			platform_fee NUMERIC(20,4),
			currency TEXT NOT NULL,
			reference TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			paid_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating payments table: %v", err)
	}
	return err
}

// createPayoutTable creates a PostgreSQL table for the Payout struct.
// The unique index on payment_id enforces one payout per payment.
func createPayoutTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS payouts (
			id SERIAL PRIMARY KEY,
			payout_id TEXT NOT NULL UNIQUE,
			payment_id TEXT NOT NULL UNIQUE REFERENCES payments(payment_id),
			provider_id TEXT NOT NULL,
			amount NUMERIC(20,4) NOT NULL,
			currency TEXT NOT NULL,
			reference TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			transfer_code TEXT,
			recipient_code TEXT,
			error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		)
	`)
	if err != nil {
		log.Printf("Error creating payouts table: %v", err)
	}
	return err
}

// createWebhookEventTable creates a PostgreSQL table for the WebhookEvent
// struct. The unique index on (event_type, external_reference) is what makes
// webhook ingestion idempotent.
func createWebhookEventTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS webhook_events (
			id SERIAL PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			external_reference TEXT NOT NULL,
			payload JSONB NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMP,
			UNIQUE (event_type, external_reference)
		)
	`)
	if err != nil {
		log.Printf("Error creating webhook_events table: %v", err)
	}
	return err
}
