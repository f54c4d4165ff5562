package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"courier/api/internal/audit"
	"courier/api/internal/notify"
	"courier/api/internal/util"
)

// errStaleVersion reports a lost compare-and-swap inside EditMessage.
var errStaleVersion = errors.New("message version changed")

// CreateMessage validates the input, derives the thread depth from the parent
// and commits the message together with its notification.
func (s *SQLStore) CreateMessage(ctx context.Context, in NewMessage) (Message, error) {
	if strings.TrimSpace(in.Body) == "" {
		return Message{}, fmt.Errorf("%w: message body must not be empty", ErrValidation)
	}
	if in.SenderID == "" || in.ReceiverID == "" {
		return Message{}, fmt.Errorf("%w: sender and receiver are required", ErrValidation)
	}

	msg := Message{
		ID:         util.NewID("msg"),
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Body:       in.Body,
		CreatedAt:  s.timestamp(),
		Version:    1,
	}
	if in.ParentID != nil {
		parentID := *in.ParentID
		if parentID == msg.ID {
			return Message{}, fmt.Errorf("%w: message cannot reply to itself", ErrValidation)
		}
		msg.ParentID = &parentID
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, userID := range []string{in.SenderID, in.ReceiverID} {
			if err := userExists(ctx, tx, userID); err != nil {
				return err
			}
		}

		if msg.ParentID != nil {
			var parentDepth int
			err := tx.QueryRowContext(ctx, `SELECT thread_depth FROM messages WHERE id=$1`, *msg.ParentID).Scan(&parentDepth)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: parent message %s does not exist", ErrValidation, *msg.ParentID)
			}
			if err != nil {
				return fmt.Errorf("read parent: %w", err)
			}
			msg.ThreadDepth = parentDepth + 1
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, sender_id, receiver_id, body, created_at, parent_id, thread_depth)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Body, msg.CreatedAt, msg.ParentID, msg.ThreadDepth); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		_, err := s.fanout.Emit(ctx, tx, notify.Created{MessageID: msg.ID, RecipientID: msg.ReceiverID, At: msg.CreatedAt})
		return err
	})
	if err != nil {
		return Message{}, fmt.Errorf("create message: %w", err)
	}

	s.metrics.MessageCreated()
	s.metrics.NotificationEmitted()
	s.logger.InfoContext(ctx, "message created", "message_id", msg.ID, "sender_id", msg.SenderID, "receiver_id", msg.ReceiverID, "thread_depth", msg.ThreadDepth)
	return msg, nil
}

func (s *SQLStore) GetMessage(ctx context.Context, messageID string) (Message, error) {
	msg, err := getMessage(ctx, s.db, messageID)
	if err != nil {
		return Message{}, classify(err)
	}
	return msg, nil
}

func getMessage(ctx context.Context, q queryer, messageID string) (Message, error) {
	row := q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id=$1`, messageID)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// EditMessage replaces the body of a message. The prior body is written to
// message_history before the new body becomes visible, in the same
// transaction. The body update only applies if the row still carries the
// version that was diffed; otherwise the edit is retried against fresh state.
// An unchanged body writes nothing. Only a participant of the message may
// edit it.
func (s *SQLStore) EditMessage(ctx context.Context, messageID, newBody, editorID string) (Message, error) {
	if strings.TrimSpace(newBody) == "" {
		return Message{}, fmt.Errorf("%w: message body must not be empty", ErrValidation)
	}

	for attempt := 1; attempt <= s.editAttempts; attempt++ {
		msg, changed, err := s.editOnce(ctx, messageID, newBody, editorID)
		if errors.Is(err, errStaleVersion) {
			s.logger.DebugContext(ctx, "edit lost version race", "message_id", messageID, "attempt", attempt)
			continue
		}
		if err != nil {
			return Message{}, fmt.Errorf("edit message: %w", err)
		}
		if changed {
			s.metrics.MessageEdited("changed")
			s.logger.InfoContext(ctx, "message edited", "message_id", messageID, "editor_id", editorID, "version", msg.Version)
		} else {
			s.metrics.MessageEdited("unchanged")
		}
		return msg, nil
	}

	s.metrics.MessageEdited("conflict")
	return Message{}, fmt.Errorf("edit message %s: %w", messageID, ErrConflict)
}

func (s *SQLStore) editOnce(ctx context.Context, messageID, newBody, editorID string) (Message, bool, error) {
	var (
		out     Message
		changed bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		out = current

		entry, ok := audit.Diff(audit.Snapshot{MessageID: current.ID, Body: current.Body, Version: current.Version}, newBody, editorID, s.timestamp())
		if !ok {
			return nil
		}
		if err := userExists(ctx, tx, editorID); err != nil {
			return err
		}
		if editorID != current.SenderID && editorID != current.ReceiverID {
			return fmt.Errorf("edit by %s: %w", editorID, ErrForbidden)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_history (id, message_id, body, editor_id, edited_at)
			VALUES ($1, $2, $3, $4, $5)
		`, util.NewID("hist"), entry.MessageID, entry.Body, entry.EditorID, entry.EditedAt); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		if s.beforeSwap != nil {
			if err := s.beforeSwap(ctx, tx, messageID); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE messages
			SET body=$1, is_edited=TRUE, last_edited=$2, version=version+1
			WHERE id=$3 AND version=$4
		`, newBody, entry.EditedAt, messageID, entry.PriorVersion)
		if err != nil {
			return fmt.Errorf("update message body: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update message rows: %w", err)
		}
		if affected == 0 {
			return errStaleVersion
		}

		editedAt := entry.EditedAt
		out.Body = newBody
		out.IsEdited = true
		out.LastEdited = &editedAt
		out.Version = entry.PriorVersion + 1
		changed = true
		return nil
	})
	return out, changed, err
}

func (s *SQLStore) ListHistory(ctx context.Context, messageID string) ([]MessageHistory, error) {
	if _, err := s.GetMessage(ctx, messageID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, body, editor_id, edited_at
		FROM message_history
		WHERE message_id=$1
		ORDER BY edited_at DESC, id DESC
	`, messageID)
	if err != nil {
		return nil, classify(fmt.Errorf("list history: %w", err))
	}
	defer rows.Close()

	items := make([]MessageHistory, 0)
	for rows.Next() {
		var item MessageHistory
		if err := rows.Scan(&item.ID, &item.MessageID, &item.Body, &item.EditorID, &item.EditedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate history: %w", err))
	}
	return items, nil
}

// ListMessages returns the messages userID sent or received that match
// filter, newest first.
func (s *SQLStore) ListMessages(ctx context.Context, userID string, filter MessageFilter) ([]Message, error) {
	args := []any{userID}
	conds := []string{"(m.sender_id = $1 OR m.receiver_id = $1)"}
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if sender := strings.TrimSpace(filter.Sender); sender != "" {
		add("LOWER(su.username) = LOWER($%d)", sender)
	}
	if filter.CounterpartyID != "" {
		add("(m.sender_id = $%[1]d OR m.receiver_id = $%[1]d)", filter.CounterpartyID)
	}
	if filter.SentAfter != nil {
		add("m.created_at >= $%d", filter.SentAfter.UTC())
	}
	if filter.SentBefore != nil {
		add("m.created_at <= $%d", filter.SentBefore.UTC())
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		JOIN users su ON su.id = m.sender_id
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY m.created_at DESC, m.id DESC
	`, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list messages: %w", err))
	}
	items, err := scanMessages(rows)
	if err != nil {
		return nil, classify(err)
	}
	return items, nil
}

const messageSubtree = `
	WITH RECURSIVE doomed(id) AS (
		SELECT id FROM messages WHERE id = $1
		UNION
		SELECT child.id FROM messages child JOIN doomed d ON child.parent_id = d.id
	)`

// DeleteMessage removes a message, every reply beneath it, and their history
// and notifications in one transaction.
func (s *SQLStore) DeleteMessage(ctx context.Context, messageID string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getMessage(ctx, tx, messageID); err != nil {
			return err
		}
		for _, stmt := range []struct{ name, query string }{
			{"notifications", messageSubtree + ` DELETE FROM notifications WHERE message_id IN (SELECT id FROM doomed)`},
			{"history", messageSubtree + ` DELETE FROM message_history WHERE message_id IN (SELECT id FROM doomed)`},
			{"messages", messageSubtree + ` DELETE FROM messages WHERE id IN (SELECT id FROM doomed)`},
		} {
			if _, err := tx.ExecContext(ctx, stmt.query, messageID); err != nil {
				return fmt.Errorf("delete %s: %w", stmt.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	s.logger.InfoContext(ctx, "message deleted", "message_id", messageID)
	return nil
}

const userSubtree = `
	WITH RECURSIVE doomed(id) AS (
		SELECT id FROM messages WHERE sender_id = $1 OR receiver_id = $1
		UNION
		SELECT child.id FROM messages child JOIN doomed d ON child.parent_id = d.id
	)`

// DeleteUserData purges a user and everything that references them. It runs
// as one transaction; a failure at any step rolls back every step. Running it
// again after success is a no-op that reports zero rows.
func (s *SQLStore) DeleteUserData(ctx context.Context, userID string) (Purge, error) {
	var purge Purge
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		purge = Purge{}
		for _, stmt := range []struct {
			name   string
			query  string
			target *int64
		}{
			{"notifications", userSubtree + ` DELETE FROM notifications WHERE recipient_id = $1 OR message_id IN (SELECT id FROM doomed)`, &purge.Notifications},
			{"history", userSubtree + ` DELETE FROM message_history WHERE editor_id = $1 OR message_id IN (SELECT id FROM doomed)`, &purge.History},
			{"messages", userSubtree + ` DELETE FROM messages WHERE id IN (SELECT id FROM doomed)`, &purge.Messages},
			{"user", `DELETE FROM users WHERE id = $1`, &purge.Users},
		} {
			result, err := tx.ExecContext(ctx, stmt.query, userID)
			if err != nil {
				return fmt.Errorf("delete %s: %w", stmt.name, err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("delete %s rows: %w", stmt.name, err)
			}
			*stmt.target = affected
		}
		return nil
	})
	if err != nil {
		return Purge{}, fmt.Errorf("delete user data: %w", err)
	}
	s.metrics.UserPurged()
	s.logger.InfoContext(ctx, "user data deleted",
		"user_id", userID,
		"messages", purge.Messages,
		"history", purge.History,
		"notifications", purge.Notifications,
		"users", purge.Users,
	)
	return purge, nil
}
