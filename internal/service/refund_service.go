package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-service/internal/models"
	"market-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNotRefundable marks products excluded from the refund policy
var ErrNotRefundable = errors.New("product is not eligible for refund")

// refundStore is the slice of the store the refund processor needs
type refundStore interface {
	GetCompletedOrder(ctx context.Context, orderID, userID string) (*models.OrderDetail, error)
	MarkOrderRefunded(ctx context.Context, orderID string) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal, description, refType, refID string) (*models.Transaction, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// achievementChecker evaluates the one-time balance achievement
type achievementChecker interface {
	CheckCompletion(ctx context.Context, userID string, balance decimal.Decimal) error
}

// refundPublisher emits the refund event for downstream consumers
type refundPublisher interface {
	PublishOrderRefunded(ctx context.Context, event *models.OrderRefundedEvent) error
}

// RefundService reverses a settled order. The refund amount is the
// product's current listed price, not the amount paid at purchase time.
// That policy is intentional and must not be changed here.
type RefundService struct {
	store        refundStore
	achievements achievementChecker
	publisher    refundPublisher
	logger       *zap.Logger
}

// NewRefundService creates a new refund processor
func NewRefundService(store refundStore, achievements achievementChecker, publisher refundPublisher) *RefundService {
	return &RefundService{
		store:        store,
		achievements: achievements,
		publisher:    publisher,
		logger:       util.NamedLogger("refund"),
	}
}

// RefundResult reports a processed refund
type RefundResult struct {
	OrderID      string          `json:"order_id"`
	ProductName  string          `json:"product_name"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
}

// Process refunds one order for its owner
func (rs *RefundService) Process(ctx context.Context, orderID, userID string) (*RefundResult, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.Process")
	defer span.End()

	order, err := rs.store.GetCompletedOrder(ctx, orderID, userID)
	if err != nil {
		util.RefundsFailedTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	if !order.ProductRefundable {
		util.RefundsFailedTotal.WithLabelValues("not_refundable").Inc()
		return nil, fmt.Errorf("%w: %q", ErrNotRefundable, order.ProductName)
	}

	// Current listed price, regardless of what was actually paid
	refundAmount := order.ProductPrice

	description := fmt.Sprintf("Refund: %s", order.ProductName)
	if _, err := rs.store.Credit(ctx, userID, refundAmount, description, models.RefTypeRefund, order.ID); err != nil {
		util.RefundsFailedTotal.WithLabelValues("credit").Inc()
		return nil, err
	}
	util.WalletCreditsTotal.WithLabelValues(models.RefTypeRefund).Inc()

	// Credit and status change are separate writes; if this one fails the
	// wallet already holds the refund while the order stays completed. That
	// window is a known inconsistency, logged rather than reconciled.
	if err := rs.store.MarkOrderRefunded(ctx, order.ID); err != nil {
		rs.logger.Error("Wallet credited but order status update failed",
			zap.String("order_id", order.ID),
			zap.String("user_id", userID),
			zap.String("refund_amount", refundAmount.StringFixed(2)),
			zap.Error(err))
		return nil, err
	}

	notification := &models.Notification{
		UserID:  userID,
		Type:    models.NotificationRefundProcessed,
		Title:   "Refund Processed",
		Message: fmt.Sprintf("Your refund of $%s for %q has been credited to your wallet.", refundAmount.StringFixed(2), order.ProductName),
		Metadata: models.JSONMap{
			"orderId": order.ID,
			"amount":  refundAmount.StringFixed(2),
		},
	}
	if err := rs.store.CreateNotification(ctx, notification); err != nil {
		rs.logger.Error("Failed to create refund notification", zap.Error(err))
	}

	if rs.publisher != nil {
		event := &models.OrderRefundedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderRefunded,
				Timestamp: time.Now(),
			},
			UserID:       userID,
			OrderID:      order.ID,
			RefundAmount: refundAmount,
		}
		if err := rs.publisher.PublishOrderRefunded(ctx, event); err != nil {
			rs.logger.Error("Failed to publish OrderRefunded event", zap.Error(err))
		}
	}

	balance, err := rs.store.GetBalance(ctx, userID)
	if err != nil {
		rs.logger.Error("Failed to read balance for achievement check", zap.Error(err))
	} else if err := rs.achievements.CheckCompletion(ctx, userID, balance); err != nil {
		rs.logger.Error("Achievement check failed", zap.Error(err))
	}

	util.RefundsTotal.Inc()
	rs.logger.Info("Refund processed",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("amount", refundAmount.StringFixed(2)))

	return &RefundResult{
		OrderID:      order.ID,
		ProductName:  order.ProductName,
		RefundAmount: refundAmount,
	}, nil
}
