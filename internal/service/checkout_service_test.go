package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"market-service/config"
	"market-service/internal/models"
	"market-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testBusinessConfig() config.BusinessConfig {
	return config.BusinessConfig{
		InitialWalletBalance: dec("50.00"),
		CashbackThreshold:    dec("30.00"),
		CashbackAmount:       dec("30.00"),
		CouponDiscount:       dec("10.00"),
		CouponValidDays:      30,
		SettlementDelay:      3 * time.Second,
	}
}

// fakeCheckoutStore implements checkoutStore in memory
type fakeCheckoutStore struct {
	products map[string]models.Product
	balance  decimal.Decimal

	settledLines  []store.CheckoutLine
	settledCoupon *string
	orders        []models.Order

	debitAmount decimal.Decimal
	debitErr    error
	debited     bool
}

func newFakeCheckoutStore(balance string, products ...models.Product) *fakeCheckoutStore {
	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &fakeCheckoutStore{products: byID, balance: dec(balance)}
}

func (f *fakeCheckoutStore) GetProductsByIDs(_ context.Context, ids []string) ([]models.Product, error) {
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCheckoutStore) GetBalance(context.Context, string) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeCheckoutStore) SettleCheckoutTx(_ context.Context, userID string, lines []store.CheckoutLine, couponID *string) ([]models.Order, error) {
	f.settledLines = lines
	f.settledCoupon = couponID
	f.orders = f.orders[:0]
	for i, line := range lines {
		f.orders = append(f.orders, models.Order{
			ID:              "order-" + string(rune('a'+i)),
			UserID:          userID,
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			OriginalPrice:   line.OriginalPrice,
			DiscountApplied: line.DiscountApplied,
			AmountPaid:      line.AmountPaid,
			CouponID:        line.CouponID,
			Status:          models.OrderStatusCompleted,
		})
	}
	return f.orders, nil
}

func (f *fakeCheckoutStore) Debit(_ context.Context, _ string, amount decimal.Decimal, _, _, _ string) (*models.Transaction, error) {
	if f.debitErr != nil {
		return nil, f.debitErr
	}
	f.debited = true
	f.debitAmount = amount
	f.balance = f.balance.Sub(amount)
	return &models.Transaction{Amount: amount, BalanceAfter: f.balance}, nil
}

func (f *fakeCheckoutStore) GetOrderDetailsByIDs(_ context.Context, ids []string) ([]models.OrderDetail, error) {
	details := make([]models.OrderDetail, 0, len(ids))
	for _, order := range f.orders {
		p := f.products[order.ProductID]
		details = append(details, models.OrderDetail{
			Order:             order,
			ProductName:       p.Name,
			ProductPrice:      p.Price,
			ProductRefundable: p.IsRefundable,
		})
	}
	return details, nil
}

func (f *fakeCheckoutStore) GetOrdersByUserID(context.Context, string) ([]models.OrderDetail, error) {
	return nil, nil
}

func (f *fakeCheckoutStore) GetOrderDetailByID(context.Context, string, string) (*models.OrderDetail, error) {
	return nil, store.ErrOrderNotFound
}

// fakeValidator hands back a fixed coupon or error
type fakeValidator struct {
	coupon *models.Coupon
	err    error
}

func (f *fakeValidator) Validate(context.Context, string, string) (*models.Coupon, error) {
	return f.coupon, f.err
}

// fakePublisher records emitted events
type fakePublisher struct {
	qualified []*models.PurchaseQualifiedEvent
	settled   []*models.OrderSettledEvent
}

func (f *fakePublisher) PublishPurchaseQualified(_ context.Context, e *models.PurchaseQualifiedEvent) error {
	f.qualified = append(f.qualified, e)
	return nil
}

func (f *fakePublisher) PublishOrderSettled(_ context.Context, e *models.OrderSettledEvent) error {
	f.settled = append(f.settled, e)
	return nil
}

// fakeGuard rejects keys it has already seen
type fakeGuard struct {
	seen map[string]bool
}

func (f *fakeGuard) ClaimIdempotencyKey(_ context.Context, key string, _ time.Duration) (bool, error) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func TestDistributeDiscountMostExpensiveFirst(t *testing.T) {
	products := []models.Product{
		{ID: "p-cheap", Name: "Cheap", Price: dec("15.00")},
		{ID: "p-dear", Name: "Dear", Price: dec("20.00")},
	}
	quantities := map[string]int{"p-cheap": 1, "p-dear": 1}
	coupon := &models.Coupon{ID: "c1", DiscountAmount: dec("25.00")}

	lines := distributeDiscount(products, quantities, coupon.DiscountAmount, coupon)
	require.Len(t, lines, 2)

	// The 20.00 line absorbs 20.00 and pays nothing, the 15.00 line
	// absorbs the remaining 5.00 and pays 10.00
	assert.Equal(t, "p-dear", lines[0].ProductID)
	assert.True(t, lines[0].DiscountApplied.Equal(dec("20.00")), "got %s", lines[0].DiscountApplied)
	assert.True(t, lines[0].AmountPaid.IsZero(), "got %s", lines[0].AmountPaid)

	assert.Equal(t, "p-cheap", lines[1].ProductID)
	assert.True(t, lines[1].DiscountApplied.Equal(dec("5.00")), "got %s", lines[1].DiscountApplied)
	assert.True(t, lines[1].AmountPaid.Equal(dec("10.00")), "got %s", lines[1].AmountPaid)
}

func TestDistributeDiscountUsesGrossLinePrice(t *testing.T) {
	// Quantity makes the unit-cheaper line the bigger gross, so it takes
	// the discount first
	products := []models.Product{
		{ID: "p1", Price: dec("20.00")},
		{ID: "p2", Price: dec("8.00")},
	}
	quantities := map[string]int{"p1": 1, "p2": 3}
	coupon := &models.Coupon{ID: "c1", DiscountAmount: dec("10.00")}

	lines := distributeDiscount(products, quantities, coupon.DiscountAmount, coupon)
	require.Len(t, lines, 2)

	assert.Equal(t, "p2", lines[0].ProductID)
	assert.True(t, lines[0].AmountPaid.Equal(dec("14.00")), "got %s", lines[0].AmountPaid)
	assert.Equal(t, "p1", lines[1].ProductID)
	assert.True(t, lines[1].AmountPaid.Equal(dec("20.00")), "got %s", lines[1].AmountPaid)
}

func TestDistributeDiscountNeverNegative(t *testing.T) {
	products := []models.Product{{ID: "p1", Price: dec("5.00")}}
	quantities := map[string]int{"p1": 1}
	coupon := &models.Coupon{ID: "c1", DiscountAmount: dec("100.00")}

	lines := distributeDiscount(products, quantities, coupon.DiscountAmount, coupon)
	require.Len(t, lines, 1)
	assert.True(t, lines[0].AmountPaid.IsZero())
	assert.True(t, lines[0].DiscountApplied.Equal(dec("5.00")))
}

func TestDistributeDiscountCouponOnlyOnDiscountedLines(t *testing.T) {
	products := []models.Product{
		{ID: "p1", Price: dec("30.00")},
		{ID: "p2", Price: dec("10.00")},
	}
	quantities := map[string]int{"p1": 1, "p2": 1}
	coupon := &models.Coupon{ID: "c1", DiscountAmount: dec("10.00")}

	lines := distributeDiscount(products, quantities, coupon.DiscountAmount, coupon)
	require.Len(t, lines, 2)

	require.NotNil(t, lines[0].CouponID)
	assert.Equal(t, "c1", *lines[0].CouponID)
	assert.Nil(t, lines[1].CouponID)
}

func TestDistributeDiscountTieBreaksOnProductID(t *testing.T) {
	products := []models.Product{
		{ID: "p-b", Price: dec("10.00")},
		{ID: "p-a", Price: dec("10.00")},
	}
	quantities := map[string]int{"p-a": 1, "p-b": 1}
	coupon := &models.Coupon{ID: "c1", DiscountAmount: dec("10.00")}

	lines := distributeDiscount(products, quantities, coupon.DiscountAmount, coupon)
	require.Len(t, lines, 2)
	assert.Equal(t, "p-a", lines[0].ProductID)
	assert.True(t, lines[0].AmountPaid.IsZero())
	assert.True(t, lines[1].AmountPaid.Equal(dec("10.00")))
}

func TestCheckoutDebitsGrandTotal(t *testing.T) {
	fs := newFakeCheckoutStore("50.00",
		models.Product{ID: "p1", Name: "Keyboard", Price: dec("30.00"), Stock: 5},
		models.Product{ID: "p2", Name: "Mouse", Price: dec("10.00"), Stock: 5},
	)
	cs := NewCheckoutService(fs, &fakeValidator{}, nil, nil, testBusinessConfig())

	resp, err := cs.Checkout(context.Background(), &CheckoutRequest{
		UserID: "u1",
		Items: []CheckoutItemReq{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 2},
		},
	})
	require.NoError(t, err)

	assert.True(t, fs.debited)
	assert.True(t, fs.debitAmount.Equal(dec("50.00")), "got %s", fs.debitAmount)
	assert.True(t, resp.TotalPaid.Equal(dec("50.00")))
	assert.Len(t, resp.Orders, 2)
}

func TestCheckoutFoldsDuplicateLines(t *testing.T) {
	fs := newFakeCheckoutStore("100.00",
		models.Product{ID: "p1", Name: "Mouse", Price: dec("10.00"), Stock: 10},
	)
	cs := NewCheckoutService(fs, &fakeValidator{}, nil, nil, testBusinessConfig())

	_, err := cs.Checkout(context.Background(), &CheckoutRequest{
		UserID: "u1",
		Items: []CheckoutItemReq{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p1", Quantity: 3},
		},
	})
	require.NoError(t, err)

	require.Len(t, fs.settledLines, 1)
	assert.Equal(t, 5, fs.settledLines[0].Quantity)
	assert.True(t, fs.debitAmount.Equal(dec("50.00")))
}

func TestCheckoutRejectsQuantityOutOfBounds(t *testing.T) {
	fs := newFakeCheckoutStore("1000.00",
		models.Product{ID: "p1", Price: dec("10.00"), Stock: 100},
	)
	cs := NewCheckoutService(fs, &fakeValidator{}, nil, nil, testBusinessConfig())

	_, err := cs.Checkout(context.Background(), &CheckoutRequest{
		UserID: "u1",
		Items:  []CheckoutItemReq{{ProductID: "p1", Quantity: 11}},
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = cs.Checkout(context.Background(), &CheckoutRequest{
		UserID: "u1",
		Items:  []CheckoutItemReq{{ProductID: "p1", Quantity: 0}},
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	fs := newFakeCheckoutStore("50.00")
	cs := NewCheckoutService(fs, &fakeValidator{}, nil, nil, testBusinessConfig())

	_, err := cs.Checkout(context.Background(), &CheckoutRequest{UserID: "u1"})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckoutUnknownProduct(t *testing.T) {
	fs := newFakeCheckoutStore("50.00")
	cs := NewCheckoutService(fs, &fakeValidator{}, nil, nil, testBusinessConfig())

	_, err := cs.Checkout(context.Background(), &CheckoutRequest{
		UserID: "u1",
		Items:  []CheckoutItemReq{{ProductID: "nope", Quantity: 1}},
	})
	assert.ErrorIs(t, err, store.ErrProductNotFound)
}

func TestCheckoutInsufficientStock(t *testing.T) {
	fs := newFakeCheckoutStore("500.00",
		models.Product{ID: "p1", Name: "Desk", Price: dec("75.00"), Stock: 1},
	)
	cs := NewCheckoutService(fs, &fakeValidator{}, nil, nil, testBusinessConfig())

	_, err := cs.Checkout(context.Background(), &CheckoutRequest{
		UserID: "u1",
		Items:  []CheckoutItemReq{{ProductID: "p1", Quantity: 2}},
	})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Nil(t, fs.settledLines)
}

func TestCheckoutInsufficientFunds(t *testing.T) {
	fs := newFakeCheckoutStore("50.00",
		models.Product{ID: "p1", Price: dec("60.00"), Stock: 5},
	)
	cs := NewCheckoutService(fs, &fakeValidator{}, nil, nil, testBusinessConfig())

	_, err := cs.Checkout(context.Background(), &CheckoutRequest{
		UserID: "u1",
		Items:  []CheckoutItemReq{{ProductID: "p1", Quantity: 1}},
	})
	assert.ErrorIs(t, err, store.ErrInsufficientFunds)
	assert.False(t, fs.debited)
	assert.Nil(t, fs.settledLines)
}

func TestCheckoutCouponReducesDebit(t *testing.T) {
	fs := newFakeCheckoutStore("50.00",
		models.Product{ID: "p1", Name: "Lamp", Price: dec("30.00"), Stock: 5},
	)
	coupon := &models.Coupon{ID: "c1", Code: "ZDM-TESTCODE", UserID: "u1", DiscountAmount: dec("10.00")}
	cs := NewCheckoutService(fs, &fakeValidator{coupon: coupon}, nil, nil, testBusinessConfig())

	resp, err := cs.Checkout(context.Background(), &CheckoutRequest{
		UserID:     "u1",
		Items:      []CheckoutItemReq{{ProductID: "p1", Quantity: 1}},
		CouponCode: "zdm-testcode",
	})
	require.NoError(t, err)

	assert.True(t, resp.TotalPaid.Equal(dec("20.00")), "got %s", resp.TotalPaid)
	assert.True(t, fs.debitAmount.Equal(dec("20.00")))
	require.NotNil(t, fs.settledCoupon)
	assert.Equal(t, "c1", *fs.settledCoupon)
}

func TestCheckoutCouponRejectionAborts(t *testing.T) {
	fs := newFakeCheckoutStore("50.00",
		models.Product{ID: "p1", Price: dec("30.00"), Stock: 5},
	)
	cs := NewCheckoutService(fs, &fakeValidator{err: ErrCouponExpired}, nil, nil, testBusinessConfig())

	_, err := cs.Checkout(context.Background(), &CheckoutRequest{
		UserID:     "u1",
		Items:      []CheckoutItemReq{{ProductID: "p1", Quantity: 1}},
		CouponCode: "ZDM-EXPIRED1",
	})
	assert.ErrorIs(t, err, ErrCouponExpired)
	assert.Nil(t, fs.settledLines)
}

func TestCheckoutDebitFailureLeavesOrdersCommitted(t *testing.T) {
	fs := newFakeCheckoutStore("50.00",
		models.Product{ID: "p1", Price: dec("30.00"), Stock: 5},
	)
	fs.debitErr = errors.New("connection reset")
	cs := NewCheckoutService(fs, &fakeValidator{}, nil, nil, testBusinessConfig())

	_, err := cs.Checkout(context.Background(), &CheckoutRequest{
		UserID: "u1",
		Items:  []CheckoutItemReq{{ProductID: "p1", Quantity: 1}},
	})
	require.Error(t, err)

	// Orders and the wallet live in separate transactions, so the failed
	// debit does not undo the settled orders
	assert.NotNil(t, fs.settledLines)
	assert.True(t, fs.balance.Equal(dec("50.00")))
}

func TestCheckoutPublishesQualifiedEventPerThresholdLine(t *testing.T) {
	fs := newFakeCheckoutStore("200.00",
		models.Product{ID: "p1", Name: "Lamp", Price: dec("30.00"), Stock: 5},
		models.Product{ID: "p2", Name: "Mouse", Price: dec("10.00"), Stock: 5},
		models.Product{ID: "p3", Name: "Keyboard", Price: dec("30.00"), Stock: 5},
	)
	pub := &fakePublisher{}
	cs := NewCheckoutService(fs, &fakeValidator{}, pub, nil, testBusinessConfig())

	_, err := cs.Checkout(context.Background(), &CheckoutRequest{
		UserID: "u1",
		Items: []CheckoutItemReq{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 1},
			{ProductID: "p3", Quantity: 1},
		},
	})
	require.NoError(t, err)

	require.Len(t, pub.settled, 1)
	require.Len(t, pub.qualified, 2)
	for _, e := range pub.qualified {
		assert.Equal(t, models.EventTypePurchaseQualified, e.EventType)
		assert.True(t, e.OriginalPrice.Equal(dec("30.00")))
		assert.NotEmpty(t, e.EventID)
	}
}

func TestCheckoutQualifiedEligibilityIgnoresDiscount(t *testing.T) {
	// Eligibility is judged on the original price even when a coupon drops
	// what was actually paid below the threshold
	fs := newFakeCheckoutStore("50.00",
		models.Product{ID: "p1", Name: "Lamp", Price: dec("30.00"), Stock: 5},
	)
	coupon := &models.Coupon{ID: "c1", UserID: "u1", DiscountAmount: dec("10.00")}
	pub := &fakePublisher{}
	cs := NewCheckoutService(fs, &fakeValidator{coupon: coupon}, pub, nil, testBusinessConfig())

	_, err := cs.Checkout(context.Background(), &CheckoutRequest{
		UserID:     "u1",
		Items:      []CheckoutItemReq{{ProductID: "p1", Quantity: 1}},
		CouponCode: "ZDM-DISCOUNT",
	})
	require.NoError(t, err)
	assert.Len(t, pub.qualified, 1)
}

func TestCheckoutDuplicateIdempotencyKey(t *testing.T) {
	fs := newFakeCheckoutStore("100.00",
		models.Product{ID: "p1", Price: dec("10.00"), Stock: 10},
	)
	cs := NewCheckoutService(fs, &fakeValidator{}, nil, &fakeGuard{}, testBusinessConfig())

	req := &CheckoutRequest{
		UserID:         "u1",
		Items:          []CheckoutItemReq{{ProductID: "p1", Quantity: 1}},
		IdempotencyKey: "key-1",
	}

	_, err := cs.Checkout(context.Background(), req)
	require.NoError(t, err)

	_, err = cs.Checkout(context.Background(), req)
	assert.ErrorIs(t, err, ErrDuplicateRequest)
}
