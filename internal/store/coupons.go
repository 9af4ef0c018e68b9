package store

import (
	"context"
	"database/sql"
	"fmt"

	"market-service/internal/models"
)

// CreateCoupon inserts a freshly minted coupon
func (s *Store) CreateCoupon(ctx context.Context, coupon *models.Coupon) error {
	return s.db.GetContext(ctx, coupon, `
		INSERT INTO coupons (id, code, discount_amount, user_id, is_used, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		coupon.ID, coupon.Code, coupon.DiscountAmount, coupon.UserID,
		coupon.IsUsed, coupon.ExpiresAt)
}

// GetCouponByCode looks a coupon up by its normalized code
func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := s.db.GetContext(ctx, &coupon, "SELECT * FROM coupons WHERE code = $1", code)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrCouponNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// ListCouponsByUser retrieves all coupons owned by a user, newest first
func (s *Store) ListCouponsByUser(ctx context.Context, userID string) ([]models.Coupon, error) {
	var coupons []models.Coupon
	err := s.db.SelectContext(ctx, &coupons,
		"SELECT * FROM coupons WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return coupons, err
}
