package store

import (
	"context"
	"database/sql"

	"market-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateAchievement records the one-time achievement for a user. The unique
// constraint on user_id plus ON CONFLICT DO NOTHING makes this idempotent;
// the bool reports whether this call actually created the record.
func (s *Store) CreateAchievement(ctx context.Context, userID string, balance decimal.Decimal, method string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO achievements (id, user_id, wallet_balance, method)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		uuid.New().String(), userID, balance, method)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetAchievement retrieves a user's achievement record, nil if absent
func (s *Store) GetAchievement(ctx context.Context, userID string) (*models.Achievement, error) {
	var a models.Achievement
	err := s.db.GetContext(ctx, &a, "SELECT * FROM achievements WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
