package store

import (
	"context"
	"database/sql"
	"fmt"

	"market-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet rows are the only shared mutable resource in the system. Every
// balance change goes through a FOR UPDATE lock on the wallet row, computes
// the new balance from the locked value, persists it and appends exactly one
// ledger entry in the same transaction. Unrelated wallets never block each
// other.

const (
	walletLockTimeout = "3s"
	maxLedgerRetries  = 3
)

// OpenWallet creates a wallet with its signup-bonus ledger entry in one
// transaction. Fails with ErrDuplicateWallet if the user already has one.
func (s *Store) OpenWallet(ctx context.Context, userID string, startingBalance decimal.Decimal) (*models.Wallet, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	wallet := &models.Wallet{
		ID:      uuid.New().String(),
		UserID:  userID,
		Balance: startingBalance,
	}

	err = tx.GetContext(ctx, wallet, `
		INSERT INTO wallets (id, user_id, balance)
		VALUES ($1, $2, $3)
		RETURNING *`,
		wallet.ID, wallet.UserID, wallet.Balance)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWallet, userID)
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, wallet_id, type, amount, description, reference_type, reference_id, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), wallet.ID, models.TxTypeCredit, startingBalance,
		"Welcome bonus: initial wallet balance", models.RefTypeSignupBonus, wallet.ID, startingBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to record signup bonus: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return wallet, nil
}

// GetWalletByUserID retrieves a user's wallet
func (s *Store) GetWalletByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.GetContext(ctx, &wallet, "SELECT * FROM wallets WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetBalance retrieves the current balance for a user
func (s *Store) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	wallet, err := s.GetWalletByUserID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

// Credit adds funds to a user's wallet and appends the ledger entry
func (s *Store) Credit(ctx context.Context, userID string, amount decimal.Decimal, description, refType, refID string) (*models.Transaction, error) {
	return s.applyEntry(ctx, userID, models.TxTypeCredit, amount, description, refType, refID)
}

// Debit removes funds from a user's wallet and appends the ledger entry.
// Fails with ErrInsufficientFunds without touching any state.
func (s *Store) Debit(ctx context.Context, userID string, amount decimal.Decimal, description, refType, refID string) (*models.Transaction, error) {
	return s.applyEntry(ctx, userID, models.TxTypeDebit, amount, description, refType, refID)
}

// applyEntry serializes on the wallet row lock, retrying a bounded number of
// times when the lock wait times out under contention.
func (s *Store) applyEntry(ctx context.Context, userID, txType string, amount decimal.Decimal, description, refType, refID string) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("ledger amount must be positive, got %s", amount)
	}

	var entry *models.Transaction
	var err error
	for attempt := 0; attempt < maxLedgerRetries; attempt++ {
		entry, err = s.applyEntryOnce(ctx, userID, txType, amount, description, refType, refID)
		if err == nil || !isRetryable(err) {
			return entry, err
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
}

func (s *Store) applyEntryOnce(ctx context.Context, userID, txType string, amount decimal.Decimal, description, refType, refID string) (*models.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%s'", walletLockTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set lock timeout: %w", err)
	}

	var wallet models.Wallet
	err = tx.GetContext(ctx, &wallet, "SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE", userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}

	var newBalance decimal.Decimal
	switch txType {
	case models.TxTypeCredit:
		newBalance = wallet.Balance.Add(amount)
	case models.TxTypeDebit:
		if wallet.Balance.LessThan(amount) {
			return nil, fmt.Errorf("%w: balance=%s, requested=%s", ErrInsufficientFunds, wallet.Balance, amount)
		}
		newBalance = wallet.Balance.Sub(amount)
	default:
		return nil, fmt.Errorf("unknown transaction type %q", txType)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2",
		newBalance, wallet.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	entry := &models.Transaction{
		ID:            uuid.New().String(),
		WalletID:      wallet.ID,
		Type:          txType,
		Amount:        amount,
		Description:   description,
		ReferenceType: refType,
		ReferenceID:   refID,
		BalanceAfter:  newBalance,
	}

	err = tx.GetContext(ctx, entry, `
		INSERT INTO transactions (id, wallet_id, type, amount, description, reference_type, reference_id, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *`,
		entry.ID, entry.WalletID, entry.Type, entry.Amount,
		entry.Description, entry.ReferenceType, entry.ReferenceID, entry.BalanceAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListTransactions retrieves ledger entries for a user newest-first,
// paginated. Also returns the total entry count.
func (s *Store) ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]models.Transaction, int, error) {
	wallet, err := s.GetWalletByUserID(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int
	err = s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM transactions WHERE wallet_id = $1", wallet.ID)
	if err != nil {
		return nil, 0, err
	}

	var entries []models.Transaction
	err = s.db.SelectContext(ctx, &entries, `
		SELECT * FROM transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		wallet.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
