package service

import (
	"context"
	"fmt"
	"time"

	"market-service/config"
	"market-service/internal/models"
	"market-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// promotionStore is the slice of the store the promotion engine needs
type promotionStore interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, description, refType, refID string) (*models.Transaction, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	CreateAchievement(ctx context.Context, userID string, balance decimal.Decimal, method string) (bool, error)
	GetAchievement(ctx context.Context, userID string) (*models.Achievement, error)
}

// couponMinter mints promotional coupons
type couponMinter interface {
	Generate(ctx context.Context, userID string, discountAmount decimal.Decimal, validDays int) (*models.Coupon, error)
}

// PromotionService runs the post-purchase promotion: cashback credit, a
// freshly minted coupon, and the one-time balance achievement check. It is
// invoked off the request path by the promotion worker.
type PromotionService struct {
	store   promotionStore
	coupons couponMinter
	cfg     config.BusinessConfig
	logger  *zap.Logger
}

// NewPromotionService creates a new promotion engine
func NewPromotionService(store promotionStore, coupons couponMinter, cfg config.BusinessConfig) *PromotionService {
	return &PromotionService{
		store:   store,
		coupons: coupons,
		cfg:     cfg,
		logger:  util.NamedLogger("promotion"),
	}
}

// ProcessCashback credits the promotional cashback, mints the reward coupon,
// writes both notification records and re-evaluates the achievement.
func (ps *PromotionService) ProcessCashback(ctx context.Context, userID, productID string) error {
	ctx, span := util.StartSpan(ctx, "PromotionService.ProcessCashback")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CashbackProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	cashback := ps.cfg.CashbackAmount
	_, err := ps.store.Credit(ctx, userID, cashback,
		"Promotional cashback: Limited Time Offer", models.RefTypeCashback, productID)
	if err != nil {
		return fmt.Errorf("failed to credit cashback: %w", err)
	}
	util.WalletCreditsTotal.WithLabelValues(models.RefTypeCashback).Inc()

	coupon, err := ps.coupons.Generate(ctx, userID, ps.cfg.CouponDiscount, ps.cfg.CouponValidDays)
	if err != nil {
		return fmt.Errorf("failed to mint reward coupon: %w", err)
	}

	cashbackNote := &models.Notification{
		UserID:  userID,
		Type:    models.NotificationCashbackCredited,
		Title:   "Cashback Credited!",
		Message: fmt.Sprintf("$%s cashback has been added to your wallet as part of our limited-time offer.", cashback.StringFixed(2)),
		Metadata: models.JSONMap{
			"amount":    cashback.StringFixed(2),
			"productId": productID,
		},
	}
	if err := ps.store.CreateNotification(ctx, cashbackNote); err != nil {
		ps.logger.Error("Failed to create cashback notification", zap.Error(err))
	}

	couponNote := &models.Notification{
		UserID:  userID,
		Type:    models.NotificationCouponGenerated,
		Title:   "Exclusive Coupon Earned!",
		Message: fmt.Sprintf("You've earned an exclusive $%s discount coupon! Your code: %s", coupon.DiscountAmount.StringFixed(2), coupon.Code),
		Metadata: models.JSONMap{
			"couponCode": coupon.Code,
			"discount":   coupon.DiscountAmount.StringFixed(2),
		},
	}
	if err := ps.store.CreateNotification(ctx, couponNote); err != nil {
		ps.logger.Error("Failed to create coupon notification", zap.Error(err))
	}

	balance, err := ps.store.GetBalance(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to read balance after cashback: %w", err)
	}
	if err := ps.CheckCompletion(ctx, userID, balance); err != nil {
		ps.logger.Error("Achievement check failed", zap.Error(err))
	}

	ps.logger.Info("Cashback processed",
		zap.String("user_id", userID),
		zap.String("amount", cashback.StringFixed(2)),
		zap.String("coupon_code", coupon.Code))
	return nil
}

// CheckCompletion creates the achievement record the first time a user's
// balance strictly exceeds the starting balance. The insert is idempotent,
// so crossing the threshold repeatedly still yields exactly one record.
func (ps *PromotionService) CheckCompletion(ctx context.Context, userID string, balance decimal.Decimal) error {
	if balance.LessThanOrEqual(ps.cfg.InitialWalletBalance) {
		return nil
	}

	created, err := ps.store.CreateAchievement(ctx, userID, balance, models.AchievementMethodBalance)
	if err != nil {
		return fmt.Errorf("failed to create achievement: %w", err)
	}
	if !created {
		return nil
	}

	util.AchievementsTotal.Inc()
	notification := &models.Notification{
		UserID:  userID,
		Type:    models.NotificationSystemAlert,
		Title:   "Achievement Unlocked",
		Message: "Congratulations! You have successfully exploited a critical business logic flaw in ZeroDay Market.",
		Metadata: models.JSONMap{
			"category":       "security_achievement",
			"currentBalance": balance.StringFixed(2),
			"initialBalance": ps.cfg.InitialWalletBalance.StringFixed(2),
		},
	}
	if err := ps.store.CreateNotification(ctx, notification); err != nil {
		ps.logger.Error("Failed to create achievement notification", zap.Error(err))
	}

	ps.logger.Info("Achievement recorded",
		zap.String("user_id", userID),
		zap.String("balance", balance.StringFixed(2)))
	return nil
}

// IsCompleted reports whether a user holds the achievement
func (ps *PromotionService) IsCompleted(ctx context.Context, userID string) (*models.Achievement, error) {
	return ps.store.GetAchievement(ctx, userID)
}
