package service

import (
	"context"
	"testing"

	"market-service/internal/models"
	"market-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRefundStore implements refundStore in memory
type fakeRefundStore struct {
	order   *models.OrderDetail
	balance decimal.Decimal

	creditedAmount decimal.Decimal
	credited       bool
	markedRefunded bool
	notifications  []*models.Notification
}

func (f *fakeRefundStore) GetCompletedOrder(_ context.Context, orderID, userID string) (*models.OrderDetail, error) {
	if f.order == nil || f.order.ID != orderID || f.order.UserID != userID ||
		f.order.Status != models.OrderStatusCompleted {
		return nil, store.ErrOrderNotFound
	}
	return f.order, nil
}

func (f *fakeRefundStore) MarkOrderRefunded(_ context.Context, orderID string) error {
	if f.order == nil || f.order.ID != orderID {
		return store.ErrOrderNotFound
	}
	f.order.Status = models.OrderStatusRefunded
	f.markedRefunded = true
	return nil
}

func (f *fakeRefundStore) Credit(_ context.Context, _ string, amount decimal.Decimal, _, _, _ string) (*models.Transaction, error) {
	f.credited = true
	f.creditedAmount = amount
	f.balance = f.balance.Add(amount)
	return &models.Transaction{Amount: amount, BalanceAfter: f.balance}, nil
}

func (f *fakeRefundStore) GetBalance(context.Context, string) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeRefundStore) CreateNotification(_ context.Context, n *models.Notification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

// fakeAchievements records the balance it was asked to evaluate
type fakeAchievements struct {
	checked     bool
	seenBalance decimal.Decimal
}

func (f *fakeAchievements) CheckCompletion(_ context.Context, _ string, balance decimal.Decimal) error {
	f.checked = true
	f.seenBalance = balance
	return nil
}

func refundableOrder() *models.OrderDetail {
	return &models.OrderDetail{
		Order: models.Order{
			ID:            "o1",
			UserID:        "u1",
			ProductID:     "p1",
			Quantity:      1,
			OriginalPrice: dec("45.00"),
			AmountPaid:    dec("35.00"),
			Status:        models.OrderStatusCompleted,
		},
		ProductName:       "Office Chair",
		ProductPrice:      dec("60.00"),
		ProductRefundable: true,
	}
}

func TestRefundCreditsCurrentListedPrice(t *testing.T) {
	fs := &fakeRefundStore{order: refundableOrder(), balance: dec("15.00")}
	rs := NewRefundService(fs, &fakeAchievements{}, nil)

	result, err := rs.Process(context.Background(), "o1", "u1")
	require.NoError(t, err)

	// The refund follows the product's current price, not the 35.00 that
	// was actually paid
	assert.True(t, result.RefundAmount.Equal(dec("60.00")), "got %s", result.RefundAmount)
	assert.True(t, fs.creditedAmount.Equal(dec("60.00")))
	assert.True(t, fs.markedRefunded)
}

func TestRefundNotRefundableProduct(t *testing.T) {
	order := refundableOrder()
	order.ProductRefundable = false
	fs := &fakeRefundStore{order: order, balance: dec("15.00")}
	rs := NewRefundService(fs, &fakeAchievements{}, nil)

	_, err := rs.Process(context.Background(), "o1", "u1")
	assert.ErrorIs(t, err, ErrNotRefundable)
	assert.False(t, fs.credited)
}

func TestRefundTwiceFails(t *testing.T) {
	fs := &fakeRefundStore{order: refundableOrder(), balance: dec("15.00")}
	rs := NewRefundService(fs, &fakeAchievements{}, nil)

	_, err := rs.Process(context.Background(), "o1", "u1")
	require.NoError(t, err)

	// The order is now refunded, so the second pass cannot find it
	_, err = rs.Process(context.Background(), "o1", "u1")
	assert.ErrorIs(t, err, store.ErrOrderNotFound)
	assert.True(t, fs.creditedAmount.Equal(dec("60.00")))
}

func TestRefundScopedToOwner(t *testing.T) {
	fs := &fakeRefundStore{order: refundableOrder(), balance: dec("15.00")}
	rs := NewRefundService(fs, &fakeAchievements{}, nil)

	_, err := rs.Process(context.Background(), "o1", "someone-else")
	assert.ErrorIs(t, err, store.ErrOrderNotFound)
	assert.False(t, fs.credited)
}

func TestRefundUnknownOrder(t *testing.T) {
	fs := &fakeRefundStore{balance: dec("15.00")}
	rs := NewRefundService(fs, &fakeAchievements{}, nil)

	_, err := rs.Process(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, store.ErrOrderNotFound)
}

func TestRefundWritesNotificationAndChecksAchievement(t *testing.T) {
	fs := &fakeRefundStore{order: refundableOrder(), balance: dec("15.00")}
	ach := &fakeAchievements{}
	rs := NewRefundService(fs, ach, nil)

	_, err := rs.Process(context.Background(), "o1", "u1")
	require.NoError(t, err)

	require.Len(t, fs.notifications, 1)
	assert.Equal(t, models.NotificationRefundProcessed, fs.notifications[0].Type)

	assert.True(t, ach.checked)
	assert.True(t, ach.seenBalance.Equal(dec("75.00")), "got %s", ach.seenBalance)
}
