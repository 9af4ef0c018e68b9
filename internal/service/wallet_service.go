package service

import (
	"context"

	"market-service/config"
	"market-service/internal/models"
	"market-service/internal/store"
	"market-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletService exposes the ledger to the HTTP edge
type WalletService struct {
	store  *store.Store
	cfg    config.BusinessConfig
	logger *zap.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(store *store.Store, cfg config.BusinessConfig) *WalletService {
	return &WalletService{
		store:  store,
		cfg:    cfg,
		logger: util.NamedLogger("wallet"),
	}
}

// Open creates the user's wallet with the fixed starting balance
func (ws *WalletService) Open(ctx context.Context, userID string) (*models.Wallet, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.Open")
	defer span.End()

	wallet, err := ws.store.OpenWallet(ctx, userID, ws.cfg.InitialWalletBalance)
	if err != nil {
		return nil, err
	}

	util.WalletCreditsTotal.WithLabelValues(models.RefTypeSignupBonus).Inc()
	ws.logger.Info("Wallet opened",
		zap.String("user_id", userID),
		zap.String("balance", wallet.Balance.StringFixed(2)))
	return wallet, nil
}

// Balance returns the current wallet balance
func (ws *WalletService) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return ws.store.GetBalance(ctx, userID)
}

// TransactionPage is one page of ledger history
type TransactionPage struct {
	Transactions []models.Transaction `json:"transactions"`
	Page         int                  `json:"page"`
	Limit        int                  `json:"limit"`
	Total        int                  `json:"total"`
	Pages        int                  `json:"pages"`
}

// Transactions returns ledger entries newest-first, paginated
func (ws *WalletService) Transactions(ctx context.Context, userID string, page, limit int) (*TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	entries, total, err := ws.store.ListTransactions(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}

	pages := total / limit
	if total%limit != 0 {
		pages++
	}

	return &TransactionPage{
		Transactions: entries,
		Page:         page,
		Limit:        limit,
		Total:        total,
		Pages:        pages,
	}, nil
}
