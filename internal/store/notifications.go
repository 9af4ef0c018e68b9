package store

import (
	"context"

	"market-service/internal/models"

	"github.com/google/uuid"
)

// CreateNotification appends a notification record for the external
// delivery collaborator
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return s.db.GetContext(ctx, n, `
		INSERT INTO notifications (id, user_id, type, title, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Metadata)
}

// ListNotifications retrieves a user's notifications newest-first
func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	query := "SELECT * FROM notifications WHERE user_id = $1"
	if unreadOnly {
		query += " AND is_read = FALSE"
	}
	query += " ORDER BY created_at DESC"

	var notifications []models.Notification
	err := s.db.SelectContext(ctx, &notifications, query, userID)
	return notifications, err
}

// MarkNotificationRead flags one notification as delivered
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2", id, userID)
	return err
}
