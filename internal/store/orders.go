package store

import (
	"context"
	"database/sql"
	"fmt"

	"market-service/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// CheckoutLine is one settled cart line ready for persistence
type CheckoutLine struct {
	ProductID       string
	Quantity        int
	OriginalPrice   decimal.Decimal
	DiscountApplied decimal.Decimal
	AmountPaid      decimal.Decimal
	CouponID        *string
}

// SettleCheckoutTx creates one order row per line, decrements each product's
// stock and consumes the coupon, all in a single transaction. A failure
// anywhere rolls back everything. The wallet debit is deliberately a second,
// separate unit handled by the caller.
func (s *Store) SettleCheckoutTx(ctx context.Context, userID string, lines []CheckoutLine, couponID *string) ([]models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	orders := make([]models.Order, 0, len(lines))
	for _, line := range lines {
		var order models.Order
		err = tx.GetContext(ctx, &order, `
			INSERT INTO orders (id, user_id, product_id, quantity, original_price, discount_applied, amount_paid, coupon_id, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING *`,
			uuid.New().String(), userID, line.ProductID, line.Quantity,
			line.OriginalPrice, line.DiscountApplied, line.AmountPaid,
			line.CouponID, models.OrderStatusCompleted)
		if err != nil {
			return nil, fmt.Errorf("failed to create order: %w", err)
		}
		orders = append(orders, order)

		// Conditional decrement, no oversell under concurrent checkouts
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1",
			line.Quantity, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement stock: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInsufficientStock, line.ProductID)
		}
	}

	if couponID != nil {
		res, err := tx.ExecContext(ctx,
			"UPDATE coupons SET is_used = TRUE WHERE id = $1 AND is_used = FALSE",
			*couponID)
		if err != nil {
			return nil, fmt.Errorf("failed to consume coupon: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, ErrCouponAlreadyUsed
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrderDetailsByIDs retrieves orders joined with product detail
func (s *Store) GetOrderDetailsByIDs(ctx context.Context, ids []string) ([]models.OrderDetail, error) {
	if len(ids) == 0 {
		return []models.OrderDetail{}, nil
	}

	query := `
		SELECT o.*, p.name AS product_name, p.price AS product_price, p.is_refundable AS product_refundable
		FROM orders o
		JOIN products p ON p.id = o.product_id
		WHERE o.id = ANY($1)
		ORDER BY o.created_at, o.id`

	var orders []models.OrderDetail
	err := s.db.SelectContext(ctx, &orders, query, pq.Array(ids))
	return orders, err
}

// GetOrdersByUserID retrieves a user's orders newest-first with product detail
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string) ([]models.OrderDetail, error) {
	var orders []models.OrderDetail
	err := s.db.SelectContext(ctx, &orders, `
		SELECT o.*, p.name AS product_name, p.price AS product_price, p.is_refundable AS product_refundable
		FROM orders o
		JOIN products p ON p.id = o.product_id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id DESC`, userID)
	return orders, err
}

// GetOrderDetailByID retrieves one order scoped to its owner
func (s *Store) GetOrderDetailByID(ctx context.Context, orderID, userID string) (*models.OrderDetail, error) {
	var order models.OrderDetail
	err := s.db.GetContext(ctx, &order, `
		SELECT o.*, p.name AS product_name, p.price AS product_price, p.is_refundable AS product_refundable
		FROM orders o
		JOIN products p ON p.id = o.product_id
		WHERE o.id = $1 AND o.user_id = $2`, orderID, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetCompletedOrder retrieves a completed order scoped to (orderID, userID).
// Refunded or foreign orders come back as ErrOrderNotFound.
func (s *Store) GetCompletedOrder(ctx context.Context, orderID, userID string) (*models.OrderDetail, error) {
	var order models.OrderDetail
	err := s.db.GetContext(ctx, &order, `
		SELECT o.*, p.name AS product_name, p.price AS product_price, p.is_refundable AS product_refundable
		FROM orders o
		JOIN products p ON p.id = o.product_id
		WHERE o.id = $1 AND o.user_id = $2 AND o.status = $3`,
		orderID, userID, models.OrderStatusCompleted)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkOrderRefunded transitions an order to refunded, exactly once
func (s *Store) MarkOrderRefunded(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.OrderStatusRefunded, orderID, models.OrderStatusCompleted)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return nil
}
