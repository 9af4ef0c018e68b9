package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog item
type Product struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Description  string          `db:"description" json:"description,omitempty"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Category     string          `db:"category" json:"category,omitempty"`
	IsRefundable bool            `db:"is_refundable" json:"is_refundable"`
	Stock        int             `db:"stock" json:"stock"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Wallet holds a user's balance, one wallet per user
type Wallet struct {
	ID        string          `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"user_id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Transaction is one immutable ledger entry. The entries for a wallet,
// ordered by creation time, reconstruct its balance exactly.
type Transaction struct {
	ID            string          `db:"id" json:"id"`
	WalletID      string          `db:"wallet_id" json:"wallet_id"`
	Type          string          `db:"type" json:"type"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Description   string          `db:"description" json:"description"`
	ReferenceType string          `db:"reference_type" json:"reference_type"`
	ReferenceID   string          `db:"reference_id" json:"reference_id,omitempty"`
	BalanceAfter  decimal.Decimal `db:"balance_after" json:"balance_after"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Order is one purchased cart line
type Order struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	ProductID       string          `db:"product_id" json:"product_id"`
	Quantity        int             `db:"quantity" json:"quantity"`
	OriginalPrice   decimal.Decimal `db:"original_price" json:"original_price"`
	DiscountApplied decimal.Decimal `db:"discount_applied" json:"discount_applied"`
	AmountPaid      decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	CouponID        *string         `db:"coupon_id" json:"coupon_id,omitempty"`
	Status          string          `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderDetail is an order joined with its product for API responses and
// refund policy checks. ProductPrice is the current listed price, not the
// price paid at purchase time.
type OrderDetail struct {
	Order
	ProductName       string          `db:"product_name" json:"product_name"`
	ProductPrice      decimal.Decimal `db:"product_price" json:"product_price"`
	ProductRefundable bool            `db:"product_refundable" json:"product_refundable"`
}

// Coupon is a user-scoped single-use discount voucher
type Coupon struct {
	ID             string          `db:"id" json:"id"`
	Code           string          `db:"code" json:"code"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	UserID         string          `db:"user_id" json:"user_id"`
	IsUsed         bool            `db:"is_used" json:"is_used"`
	ExpiresAt      *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Notification is a record for the external delivery collaborator
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Metadata  JSONMap   `db:"metadata" json:"metadata,omitempty"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Achievement records the one-time balance achievement, at most one per user
type Achievement struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	WalletBalance decimal.Decimal `db:"wallet_balance" json:"wallet_balance"`
	Method        string          `db:"method" json:"method"`
	CompletedAt   time.Time       `db:"completed_at" json:"completed_at"`
}

// Transaction types
const (
	TxTypeCredit = "credit"
	TxTypeDebit  = "debit"
)

// Ledger reference kinds
const (
	RefTypePurchase    = "purchase"
	RefTypeRefund      = "refund"
	RefTypeCashback    = "cashback"
	RefTypeSignupBonus = "signup_bonus"
	RefTypeSystem      = "system"
)

// Order statuses
const (
	OrderStatusCompleted = "completed"
	OrderStatusRefunded  = "refunded"
)

// Notification types
const (
	NotificationCashbackCredited = "cashback_credited"
	NotificationCouponGenerated  = "coupon_generated"
	NotificationRefundProcessed  = "refund_processed"
	NotificationSystemAlert      = "system_alert"
)

// AchievementMethodBalance tags an achievement earned by pushing the wallet
// balance above its starting value.
const AchievementMethodBalance = "balance_exceeded_initial"

// JSONMap stores free-form metadata in a JSONB column
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	return json.Unmarshal(b, m)
}
