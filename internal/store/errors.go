package store

import (
	"errors"

	"github.com/lib/pq"
)

// Domain errors surfaced by the store. Callers distinguish them with
// errors.Is so each maps to a specific user-facing condition.
var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrDuplicateWallet   = errors.New("wallet already exists for user")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOrderNotFound     = errors.New("order not found or not eligible")
	ErrCouponNotFound    = errors.New("invalid coupon code")
	ErrCouponAlreadyUsed = errors.New("coupon has already been used")
	ErrLockTimeout       = errors.New("row lock wait timed out")
)

// Postgres error codes worth retrying: lock_not_available, deadlock_detected,
// serialization_failure.
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "55P03", "40P01", "40001":
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
