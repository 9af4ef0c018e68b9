package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id UUID PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price DECIMAL(10,2) NOT NULL,
	category VARCHAR(100) NOT NULL DEFAULT '',
	is_refundable BOOLEAN NOT NULL DEFAULT FALSE,
	stock INTEGER NOT NULL DEFAULT 100,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS wallets (
	id UUID PRIMARY KEY,
	user_id VARCHAR(64) NOT NULL UNIQUE,
	balance DECIMAL(10,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transactions (
	id UUID PRIMARY KEY,
	wallet_id UUID NOT NULL REFERENCES wallets(id),
	type VARCHAR(10) NOT NULL CHECK (type IN ('credit', 'debit')),
	amount DECIMAL(10,2) NOT NULL CHECK (amount >= 0),
	description VARCHAR(255) NOT NULL DEFAULT '',
	reference_type VARCHAR(50) NOT NULL DEFAULT '',
	reference_id VARCHAR(64) NOT NULL DEFAULT '',
	balance_after DECIMAL(10,2) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions (wallet_id, created_at DESC);

CREATE TABLE IF NOT EXISTS coupons (
	id UUID PRIMARY KEY,
	code VARCHAR(50) NOT NULL UNIQUE,
	discount_amount DECIMAL(10,2) NOT NULL,
	user_id VARCHAR(64) NOT NULL,
	is_used BOOLEAN NOT NULL DEFAULT FALSE,
	expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_coupons_user ON coupons (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY,
	user_id VARCHAR(64) NOT NULL,
	product_id UUID NOT NULL REFERENCES products(id),
	quantity INTEGER NOT NULL CHECK (quantity >= 1),
	original_price DECIMAL(10,2) NOT NULL,
	discount_applied DECIMAL(10,2) NOT NULL DEFAULT 0,
	amount_paid DECIMAL(10,2) NOT NULL,
	coupon_id UUID REFERENCES coupons(id),
	status VARCHAR(20) NOT NULL DEFAULT 'completed' CHECK (status IN ('completed', 'refunded')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS notifications (
	id UUID PRIMARY KEY,
	user_id VARCHAR(64) NOT NULL,
	type VARCHAR(50) NOT NULL,
	title VARCHAR(255) NOT NULL,
	message TEXT NOT NULL,
	metadata JSONB,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS achievements (
	id UUID PRIMARY KEY,
	user_id VARCHAR(64) NOT NULL UNIQUE,
	wallet_balance DECIMAL(10,2) NOT NULL,
	method VARCHAR(50) NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// InitSchema creates all tables if they do not exist yet
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

type seedProduct struct {
	name         string
	description  string
	price        string
	category     string
	isRefundable bool
	stock        int
}

var seedProducts = []seedProduct{
	{"Wireless Charging Pad", "Fast Qi wireless charging pad with LED status indicator.", "10.00", "Accessories", false, 150},
	{"USB-C Hub Pro 7-in-1", "Aluminum USB-C hub with HDMI 4K output and 100W passthrough.", "10.00", "Accessories", false, 200},
	{"Mechanical Keyboard MX", "Full-size mechanical keyboard with per-key RGB backlighting.", "30.00", "Peripherals", false, 75},
	{"Smart LED Desk Lamp", "Touch-controlled LED desk lamp with 5 color temperatures.", "30.00", "Home Office", false, 120},
	{"Premium Noise-Canceling Headphones", "Over-ear wireless headphones with hybrid ANC and 40h battery.", "45.00", "Audio", false, 60},
	{"Ergonomic Office Chair Pro", "Adjustable ergonomic chair with adaptive lumbar support.", "60.00", "Furniture", true, 30},
	{"UltraWide Monitor 34\"", "34-inch curved WQHD ultrawide monitor with 144Hz refresh rate.", "60.00", "Displays", true, 25},
	{"Standing Desk Converter", "Height-adjustable standing desk converter with dual monitor arms.", "75.00", "Furniture", false, 40},
}

// Seed inserts the demo catalog. Runs only against an empty products table.
func (s *Store) Seed(ctx context.Context) error {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM products"); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range seedProducts {
		price, err := decimal.NewFromString(p.price)
		if err != nil {
			return fmt.Errorf("invalid seed price %q: %w", p.price, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO products (id, name, description, price, category, is_refundable, stock)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)`,
			p.name, p.description, price, p.category, p.isRefundable, p.stock)
		if err != nil {
			return fmt.Errorf("failed to seed product %q: %w", p.name, err)
		}
	}

	return tx.Commit()
}
