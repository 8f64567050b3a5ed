// Package testutil opens in-memory sqlite databases carrying the service schema.
package testutil

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Schema mirrors the postgres migrations with sqlite column types.
var Schema = []string{
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		type TEXT NOT NULL DEFAULT '',
		images TEXT NOT NULL DEFAULT '[]',
		metadata TEXT NOT NULL DEFAULT '{}',
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE prices (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		unit_amount INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		recurring_interval TEXT,
		recurring_interval_count INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE cart_items (
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		product_type TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, product_id)
	)`,
	`CREATE TABLE checkout_sessions (
		id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		client TEXT NOT NULL,
		amount INTEGER,
		currency TEXT,
		price_id TEXT,
		payment_intent_client_secret TEXT NOT NULL DEFAULT '',
		ephemeral_key_secret TEXT NOT NULL DEFAULT '',
		customer TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE stripe_customers (
		user_id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		customer TEXT NOT NULL DEFAULT '',
		amount INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		invoice_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE invoices (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		subscription_id TEXT NOT NULL DEFAULT '',
		payment_intent_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		amount_paid INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		customer TEXT NOT NULL DEFAULT '',
		price_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		current_period_end DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE purchase_requests (
		id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		items TEXT NOT NULL,
		total_amount INTEGER NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		payment_intent_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		processed_at DATETIME,
		UNIQUE (user_id, payment_intent_id)
	)`,
	`CREATE TABLE purchased_credits (
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		first_purchase_at DATETIME NOT NULL,
		last_purchase_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, product_id)
	)`,
	`CREATE TABLE emissions (
		user_id TEXT NOT NULL,
		month TEXT NOT NULL,
		inputs TEXT NOT NULL DEFAULT '{}',
		subtotals TEXT NOT NULL DEFAULT '{}',
		total_emissions REAL NOT NULL DEFAULT 0,
		total_offset INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, month)
	)`,
	`CREATE TABLE community_stats (
		id TEXT PRIMARY KEY,
		user_months INTEGER NOT NULL DEFAULT 0,
		total_emissions REAL NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	)`,
}

var dbSeq atomic.Int64

// NewDB opens a fresh in-memory database with every table created. A single
// connection keeps sqlite from reporting table locks under concurrent tests,
// so code under test must not use the outer handle inside a transaction.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// SeedProduct inserts a carbon-credit product with one active price.
func SeedProduct(t *testing.T, db *gorm.DB, id, name string, remaining int64, priceID string, unitAmount int64) {
	t.Helper()

	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO products (id, name, active, type, images, metadata, version, created_at, updated_at)
		 VALUES (?, ?, 1, 'carbon_credit', '[]', ?, 0, ?, ?)`,
		id, name, fmt.Sprintf(`{"remaining": %d, "type": "carbon_credit"}`, remaining), now, now,
	).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if priceID == "" {
		return
	}
	if err := db.Exec(
		`INSERT INTO prices (id, product_id, currency, unit_amount, active, created_at) VALUES (?, ?, 'usd', ?, 1, ?)`,
		priceID, id, unitAmount, now,
	).Error; err != nil {
		t.Fatalf("seed price: %v", err)
	}
}

// Remaining reads the inventory counter straight from product metadata.
func Remaining(t *testing.T, db *gorm.DB, productID string) int64 {
	t.Helper()

	var raw string
	if err := db.Raw(`SELECT metadata FROM products WHERE id = ?`, productID).Scan(&raw).Error; err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var meta struct {
		Remaining int64 `json:"remaining"`
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		t.Fatalf("decode metadata %q: %v", raw, err)
	}
	return meta.Remaining
}
