package store

import (
	"context"
	"fmt"
)

// ThreadMessages returns rootID and every message whose parent chain reaches
// it, oldest first, in one query. The slice is empty when rootID is unknown.
func (s *SQLStore) ThreadMessages(ctx context.Context, rootID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE closure(id) AS (
			SELECT id FROM messages WHERE id = $1
			UNION
			SELECT child.id FROM messages child JOIN closure c ON child.parent_id = c.id
		)
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.id IN (SELECT id FROM closure)
		ORDER BY m.created_at ASC, m.id ASC
	`, rootID)
	if err != nil {
		return nil, classify(fmt.Errorf("thread messages: %w", err))
	}
	items, err := scanMessages(rows)
	if err != nil {
		return nil, classify(err)
	}
	return items, nil
}

// ConversationMessages returns every message exchanged between two users,
// oldest first.
func (s *SQLStore) ConversationMessages(ctx context.Context, userA, userB string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE (m.sender_id = $1 AND m.receiver_id = $2)
		   OR (m.sender_id = $2 AND m.receiver_id = $1)
		ORDER BY m.created_at ASC, m.id ASC
	`, userA, userB)
	if err != nil {
		return nil, classify(fmt.Errorf("conversation messages: %w", err))
	}
	items, err := scanMessages(rows)
	if err != nil {
		return nil, classify(err)
	}
	return items, nil
}
