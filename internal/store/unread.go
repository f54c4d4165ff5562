package store

import (
	"context"
	"fmt"
)

func (s *SQLStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE receiver_id=$1 AND is_read = FALSE
	`, userID).Scan(&count)
	if err != nil {
		return 0, classify(fmt.Errorf("count unread: %w", err))
	}
	return count, nil
}

// MarkRead flips is_read for the listed messages that are addressed to userID
// and still unread, in a single UPDATE. Ids owned by someone else or already
// read are skipped silently. The result is the number of rows changed.
func (s *SQLStore) MarkRead(ctx context.Context, userID string, messageIDs []string) (int64, error) {
	ids := dedupe(messageIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE receiver_id=$1 AND is_read = FALSE AND id IN (`+placeholders(2, len(ids))+`)
	`, args...)
	if err != nil {
		return 0, classify(fmt.Errorf("mark read: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, classify(fmt.Errorf("mark read rows: %w", err))
	}
	s.metrics.MarkedRead(affected)
	return affected, nil
}

// ListUnread returns the unread projection for userID, newest first.
func (s *SQLStore) ListUnread(ctx context.Context, userID string) ([]UnreadMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.body, m.created_at, m.is_read, m.is_edited, u.id, u.username, u.email
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.receiver_id=$1 AND m.is_read = FALSE
		ORDER BY m.created_at DESC, m.id DESC
	`, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("list unread: %w", err))
	}
	defer rows.Close()

	items := make([]UnreadMessage, 0)
	for rows.Next() {
		var item UnreadMessage
		if err := rows.Scan(
			&item.ID,
			&item.Body,
			&item.CreatedAt,
			&item.IsRead,
			&item.IsEdited,
			&item.Sender.ID,
			&item.Sender.Username,
			&item.Sender.Email,
		); err != nil {
			return nil, fmt.Errorf("scan unread: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate unread: %w", err))
	}
	return items, nil
}

// ListUnreadIDsFrom returns the ids of unread messages sent by senderID to userID.
func (s *SQLStore) ListUnreadIDsFrom(ctx context.Context, userID, senderID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM messages
		WHERE receiver_id=$1 AND sender_id=$2 AND is_read = FALSE
	`, userID, senderID)
	if err != nil {
		return nil, classify(fmt.Errorf("list unread ids: %w", err))
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unread id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate unread ids: %w", err))
	}
	return ids, nil
}

// UnreadCountsBySender groups userID's unread messages by sender.
func (s *SQLStore) UnreadCountsBySender(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_id, COUNT(*)
		FROM messages
		WHERE receiver_id=$1 AND is_read = FALSE
		GROUP BY sender_id
	`, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("unread counts: %w", err))
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			senderID string
			count    int
		)
		if err := rows.Scan(&senderID, &count); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		counts[senderID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate unread counts: %w", err))
	}
	return counts, nil
}

// LatestPerCounterparty returns, for every user userID has exchanged messages
// with, the newest message between them. Results are newest first.
func (s *SQLStore) LatestPerCounterparty(ctx context.Context, userID string) ([]LatestMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		JOIN (
			SELECT id, ROW_NUMBER() OVER (
				PARTITION BY CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END
				ORDER BY created_at DESC, id DESC
			) AS rn
			FROM messages
			WHERE sender_id = $1 OR receiver_id = $1
		) ranked ON ranked.id = m.id
		WHERE ranked.rn = 1
		ORDER BY m.created_at DESC, m.id DESC
	`, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("latest per counterparty: %w", err))
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, classify(err)
	}

	items := make([]LatestMessage, 0, len(messages))
	for _, msg := range messages {
		counterparty := msg.SenderID
		if msg.SenderID == userID {
			counterparty = msg.ReceiverID
		}
		items = append(items, LatestMessage{CounterpartyID: counterparty, Message: msg})
	}
	return items, nil
}
