package store

import (
	"context"
	"fmt"
)

func (s *SQLStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, message_id, is_read, created_at
		FROM notifications
		WHERE recipient_id=$1 AND ($2 = FALSE OR is_read = FALSE)
		ORDER BY created_at DESC, id DESC
	`, userID, unreadOnly)
	if err != nil {
		return nil, classify(fmt.Errorf("list notifications: %w", err))
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.RecipientID, &item.MessageID, &item.IsRead, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate notifications: %w", err))
	}
	return items, nil
}

// MarkNotificationsRead has the same conditional bulk contract as MarkRead.
func (s *SQLStore) MarkNotificationsRead(ctx context.Context, userID string, notificationIDs []string) (int64, error) {
	ids := dedupe(notificationIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE recipient_id=$1 AND is_read = FALSE AND id IN (`+placeholders(2, len(ids))+`)
	`, args...)
	if err != nil {
		return 0, classify(fmt.Errorf("mark notifications read: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, classify(fmt.Errorf("mark notifications read rows: %w", err))
	}
	return affected, nil
}
