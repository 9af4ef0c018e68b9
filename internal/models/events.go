package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypePurchaseQualified = "PURCHASE_QUALIFIED"
	EventTypeOrderSettled      = "ORDER_SETTLED"
	EventTypeOrderRefunded     = "ORDER_REFUNDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PurchaseQualifiedEvent is published per checkout line whose original price
// hits the promotional threshold. A worker consumes it after the settlement
// delay and runs the cashback flow.
type PurchaseQualifiedEvent struct {
	BaseEvent
	UserID        string          `json:"user_id"`
	ProductID     string          `json:"product_id"`
	OrderID       string          `json:"order_id"`
	OriginalPrice decimal.Decimal `json:"original_price"`
}

// OrderSettledEvent is published after a checkout commits
type OrderSettledEvent struct {
	BaseEvent
	UserID    string          `json:"user_id"`
	OrderIDs  []string        `json:"order_ids"`
	TotalPaid decimal.Decimal `json:"total_paid"`
}

// OrderRefundedEvent is published after a refund is processed
type OrderRefundedEvent struct {
	BaseEvent
	UserID       string          `json:"user_id"`
	OrderID      string          `json:"order_id"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}
