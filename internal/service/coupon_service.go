package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"market-service/internal/models"
	"market-service/internal/store"
	"market-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Coupon validation errors beyond what the store reports
var (
	ErrCouponNotOwned = errors.New("coupon is not assigned to this account")
	ErrCouponExpired  = errors.New("coupon has expired")
)

const couponCodePrefix = "ZDM-"

// couponStore is the slice of the store the coupon manager needs
type couponStore interface {
	CreateCoupon(ctx context.Context, coupon *models.Coupon) error
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	ListCouponsByUser(ctx context.Context, userID string) ([]models.Coupon, error)
}

// CouponService manages the coupon lifecycle: generate, validate, list.
// Consumption happens inside the checkout transaction so a crash cannot
// leave a used coupon without its order.
type CouponService struct {
	store  couponStore
	logger *zap.Logger
}

// NewCouponService creates a new coupon service
func NewCouponService(store couponStore) *CouponService {
	return &CouponService{
		store:  store,
		logger: util.NamedLogger("coupon"),
	}
}

// NormalizeCode canonicalizes user-supplied coupon codes for lookup
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// newCouponCode mints a globally unique, unguessable code
func newCouponCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return couponCodePrefix + strings.ToUpper(raw[:8])
}

// Generate mints a coupon for a user, valid for validDays from now
func (cs *CouponService) Generate(ctx context.Context, userID string, discountAmount decimal.Decimal, validDays int) (*models.Coupon, error) {
	ctx, span := util.StartSpan(ctx, "CouponService.Generate")
	defer span.End()

	if !discountAmount.IsPositive() {
		return nil, fmt.Errorf("discount amount must be positive, got %s", discountAmount)
	}

	expiresAt := time.Now().AddDate(0, 0, validDays)
	coupon := &models.Coupon{
		ID:             uuid.New().String(),
		Code:           newCouponCode(),
		DiscountAmount: discountAmount,
		UserID:         userID,
		IsUsed:         false,
		ExpiresAt:      &expiresAt,
	}

	if err := cs.store.CreateCoupon(ctx, coupon); err != nil {
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}

	util.CouponsGeneratedTotal.Inc()
	cs.logger.Info("Coupon generated",
		zap.String("user_id", userID),
		zap.String("code", coupon.Code),
		zap.String("discount", discountAmount.StringFixed(2)))
	return coupon, nil
}

// Validate checks a coupon code for a user without consuming it. Each
// failure mode is a distinct error so the caller can render it.
func (cs *CouponService) Validate(ctx context.Context, code, userID string) (*models.Coupon, error) {
	coupon, err := cs.store.GetCouponByCode(ctx, NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	if err := checkCoupon(coupon, userID, time.Now()); err != nil {
		return nil, err
	}
	return coupon, nil
}

// ListForUser returns all coupons owned by a user, newest first
func (cs *CouponService) ListForUser(ctx context.Context, userID string) ([]models.Coupon, error) {
	return cs.store.ListCouponsByUser(ctx, userID)
}

// checkCoupon applies the ownership, single-use and expiry rules
func checkCoupon(coupon *models.Coupon, userID string, now time.Time) error {
	if coupon.UserID != userID {
		return ErrCouponNotOwned
	}
	if coupon.IsUsed {
		return store.ErrCouponAlreadyUsed
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(now) {
		return ErrCouponExpired
	}
	return nil
}
