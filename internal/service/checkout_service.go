package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"market-service/config"
	"market-service/internal/models"
	"market-service/internal/store"
	"market-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Cart validation errors
var (
	ErrEmptyCart        = errors.New("cart must contain at least one item")
	ErrInvalidQuantity  = errors.New("quantity must be between 1 and 10")
	ErrDuplicateRequest = errors.New("duplicate checkout request")
)

const (
	maxLineQuantity   = 10
	idempotencyTTL    = 24 * time.Hour
	promotionEventTTL = 24 * time.Hour
)

// checkoutStore is the slice of the store the orchestrator needs
type checkoutStore interface {
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	SettleCheckoutTx(ctx context.Context, userID string, lines []store.CheckoutLine, couponID *string) ([]models.Order, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal, description, refType, refID string) (*models.Transaction, error)
	GetOrderDetailsByIDs(ctx context.Context, ids []string) ([]models.OrderDetail, error)
	GetOrdersByUserID(ctx context.Context, userID string) ([]models.OrderDetail, error)
	GetOrderDetailByID(ctx context.Context, orderID, userID string) (*models.OrderDetail, error)
}

// couponValidator validates a coupon code without consuming it
type couponValidator interface {
	Validate(ctx context.Context, code, userID string) (*models.Coupon, error)
}

// promotionPublisher schedules the async promotion flow
type promotionPublisher interface {
	PublishPurchaseQualified(ctx context.Context, event *models.PurchaseQualifiedEvent) error
	PublishOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error
}

// idempotencyGuard claims request idempotency keys
type idempotencyGuard interface {
	ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// CheckoutService settles a cart: it validates products and stock, applies
// a single coupon across lines, commits orders + stock + coupon in one
// transaction, then debits the wallet as a second unit.
type CheckoutService struct {
	store     checkoutStore
	coupons   couponValidator
	publisher promotionPublisher
	guard     idempotencyGuard
	cfg       config.BusinessConfig
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout orchestrator
func NewCheckoutService(
	store checkoutStore,
	coupons couponValidator,
	publisher promotionPublisher,
	guard idempotencyGuard,
	cfg config.BusinessConfig,
) *CheckoutService {
	return &CheckoutService{
		store:     store,
		coupons:   coupons,
		publisher: publisher,
		guard:     guard,
		cfg:       cfg,
		logger:    util.NamedLogger("checkout"),
	}
}

// CheckoutRequest represents a cart submitted for settlement
type CheckoutRequest struct {
	UserID         string            `json:"-"`
	Items          []CheckoutItemReq `json:"items" binding:"required,min=1,dive"`
	CouponCode     string            `json:"coupon_code,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// CheckoutItemReq is one requested cart line
type CheckoutItemReq struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1,max=10"`
}

// CheckoutResponse returns the created orders with product detail
type CheckoutResponse struct {
	Orders    []models.OrderDetail `json:"orders"`
	TotalPaid decimal.Decimal      `json:"total_paid"`
}

// Checkout runs the settlement algorithm
func (cs *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if len(req.Items) == 0 {
		util.CheckoutsFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}
	for _, item := range req.Items {
		if item.Quantity < 1 || item.Quantity > maxLineQuantity {
			util.CheckoutsFailedTotal.WithLabelValues("invalid_quantity").Inc()
			return nil, fmt.Errorf("%w: product %s requested %d", ErrInvalidQuantity, item.ProductID, item.Quantity)
		}
	}

	if req.IdempotencyKey != "" && cs.guard != nil {
		claimed, err := cs.guard.ClaimIdempotencyKey(ctx, req.IdempotencyKey, idempotencyTTL)
		if err != nil {
			cs.logger.Warn("Idempotency check failed, continuing without it", zap.Error(err))
		} else if !claimed {
			util.CheckoutsFailedTotal.WithLabelValues("duplicate").Inc()
			return nil, ErrDuplicateRequest
		}
	}

	products, quantities, err := cs.loadProducts(ctx, req.Items)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	for _, p := range products {
		if p.Stock < quantities[p.ID] {
			util.CheckoutsFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, fmt.Errorf("%w: %q", store.ErrInsufficientStock, p.Name)
		}
	}

	var coupon *models.Coupon
	discount := decimal.Zero
	if req.CouponCode != "" {
		coupon, err = cs.coupons.Validate(ctx, req.CouponCode, req.UserID)
		if err != nil {
			util.CheckoutsFailedTotal.WithLabelValues("coupon").Inc()
			return nil, err
		}
		discount = coupon.DiscountAmount
	}

	lines := distributeDiscount(products, quantities, discount, coupon)

	grandTotal := decimal.Zero
	for _, line := range lines {
		grandTotal = grandTotal.Add(line.AmountPaid)
	}

	// Short-circuit only; the debit below re-checks under the row lock
	balance, err := cs.store.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(grandTotal) {
		util.CheckoutsFailedTotal.WithLabelValues("insufficient_funds").Inc()
		util.InsufficientFundsTotal.Inc()
		return nil, fmt.Errorf("%w: balance=%s, total=%s", store.ErrInsufficientFunds, balance.StringFixed(2), grandTotal.StringFixed(2))
	}

	var couponID *string
	if coupon != nil {
		couponID = &coupon.ID
	}

	orders, err := cs.store.SettleCheckoutTx(ctx, req.UserID, lines, couponID)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("settlement").Inc()
		return nil, err
	}
	if coupon != nil {
		util.CouponsConsumedTotal.Inc()
	}

	// Second atomic unit. If this fails the orders stay committed; the gap
	// is a recorded inconsistency, surfaced rather than rolled back.
	description := fmt.Sprintf("Purchase: %s", productNames(products, lines))
	if _, err := cs.store.Debit(ctx, req.UserID, grandTotal, description, models.RefTypePurchase, orders[0].ID); err != nil {
		util.SettlementDebitFailures.Inc()
		cs.logger.Error("Orders committed but wallet debit failed",
			zap.String("user_id", req.UserID),
			zap.String("total", grandTotal.StringFixed(2)),
			zap.Strings("order_ids", orderIDs(orders)),
			zap.Error(err))
		return nil, err
	}
	util.WalletDebitsTotal.WithLabelValues(models.RefTypePurchase).Inc()

	cs.publishPostSettlement(ctx, req.UserID, orders, grandTotal)

	details, err := cs.store.GetOrderDetailsByIDs(ctx, orderIDs(orders))
	if err != nil {
		return nil, fmt.Errorf("failed to load settled orders: %w", err)
	}

	util.CheckoutsTotal.Inc()
	cs.logger.Info("Checkout settled",
		zap.String("user_id", req.UserID),
		zap.Int("lines", len(orders)),
		zap.String("total_paid", grandTotal.StringFixed(2)))

	return &CheckoutResponse{Orders: details, TotalPaid: grandTotal}, nil
}

// publishPostSettlement emits the settled event and one PurchaseQualified
// event per line whose original unit price hits the promotional threshold.
// Eligibility looks at the pre-discount price on purpose. Fire-and-forget:
// publish errors are logged, never surfaced to the caller.
func (cs *CheckoutService) publishPostSettlement(ctx context.Context, userID string, orders []models.Order, total decimal.Decimal) {
	if cs.publisher == nil {
		return
	}

	now := time.Now()
	settled := &models.OrderSettledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderSettled,
			Timestamp: now,
		},
		UserID:    userID,
		OrderIDs:  orderIDs(orders),
		TotalPaid: total,
	}
	if err := cs.publisher.PublishOrderSettled(ctx, settled); err != nil {
		cs.logger.Error("Failed to publish OrderSettled event", zap.Error(err))
	}

	for _, order := range orders {
		if !order.OriginalPrice.Equal(cs.cfg.CashbackThreshold) {
			continue
		}
		event := &models.PurchaseQualifiedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePurchaseQualified,
				Timestamp: now,
			},
			UserID:        userID,
			ProductID:     order.ProductID,
			OrderID:       order.ID,
			OriginalPrice: order.OriginalPrice,
		}
		if err := cs.publisher.PublishPurchaseQualified(ctx, event); err != nil {
			cs.logger.Error("Failed to publish PurchaseQualified event",
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
	}
}

// loadProducts fetches all referenced products and folds duplicate cart
// lines into per-product quantities
func (cs *CheckoutService) loadProducts(ctx context.Context, items []CheckoutItemReq) ([]models.Product, map[string]int, error) {
	quantities := make(map[string]int, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := quantities[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	products, err := cs.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	if len(products) != len(ids) {
		return nil, nil, fmt.Errorf("%w: one or more products missing", store.ErrProductNotFound)
	}
	return products, quantities, nil
}

// distributeDiscount walks the lines from most to least expensive gross
// price, consuming the discount greedily. A line never goes negative; ties
// break on product id so the split is deterministic. The coupon reference
// lands only on lines that actually received a discount.
func distributeDiscount(products []models.Product, quantities map[string]int, discount decimal.Decimal, coupon *models.Coupon) []store.CheckoutLine {
	lines := make([]store.CheckoutLine, 0, len(products))
	for _, p := range products {
		qty := quantities[p.ID]
		lines = append(lines, store.CheckoutLine{
			ProductID:     p.ID,
			Quantity:      qty,
			OriginalPrice: p.Price,
			AmountPaid:    p.Price.Mul(decimal.NewFromInt(int64(qty))),
		})
	}

	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].AmountPaid.Equal(lines[j].AmountPaid) {
			return lines[i].AmountPaid.GreaterThan(lines[j].AmountPaid)
		}
		return lines[i].ProductID < lines[j].ProductID
	})

	remaining := discount
	for i := range lines {
		gross := lines[i].AmountPaid
		applied := decimal.Min(remaining, gross)
		remaining = remaining.Sub(applied)

		lines[i].DiscountApplied = applied
		lines[i].AmountPaid = gross.Sub(applied)
		if applied.IsPositive() && coupon != nil {
			id := coupon.ID
			lines[i].CouponID = &id
		}
		if remaining.IsZero() {
			break
		}
	}
	return lines
}

func orderIDs(orders []models.Order) []string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}

func productNames(products []models.Product, lines []store.CheckoutLine) string {
	byID := make(map[string]string, len(products))
	for _, p := range products {
		byID[p.ID] = p.Name
	}
	names := make([]string, len(lines))
	for i, line := range lines {
		names[i] = byID[line.ProductID]
	}
	return strings.Join(names, ", ")
}

// ListOrders returns a user's order history newest-first
func (cs *CheckoutService) ListOrders(ctx context.Context, userID string) ([]models.OrderDetail, error) {
	return cs.store.GetOrdersByUserID(ctx, userID)
}

// GetOrder returns one order scoped to its owner
func (cs *CheckoutService) GetOrder(ctx context.Context, orderID, userID string) (*models.OrderDetail, error) {
	return cs.store.GetOrderDetailByID(ctx, orderID, userID)
}
