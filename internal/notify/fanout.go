// Package notify writes the single notification that accompanies a message
// creation. It runs on the creating transaction so the message and its
// notification commit or roll back together.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"courier/api/internal/logging"
	"courier/api/internal/util"
)

// Execer is satisfied by *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Created describes a committed-to-be message creation.
type Created struct {
	MessageID   string
	RecipientID string
	At          time.Time
}

// Fanout does not count what it writes; the caller records the notification
// once its transaction commits.
type Fanout struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Fanout {
	return &Fanout{logger: logging.OrDiscard(logger)}
}

// Emit inserts one unread notification addressed to the recipient and returns
// its id. The notifications table allows a single row per message, so a
// second Emit for the same message fails instead of duplicating.
func (f *Fanout) Emit(ctx context.Context, tx Execer, ev Created) (string, error) {
	if ev.MessageID == "" || ev.RecipientID == "" {
		return "", fmt.Errorf("emit notification: message and recipient are required")
	}
	id := util.NewID("ntf")
	_, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, message_id, is_read, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
	`, id, ev.RecipientID, ev.MessageID, ev.At)
	if err != nil {
		return "", fmt.Errorf("emit notification: %w", err)
	}
	f.logger.DebugContext(ctx, "notification emitted", "notification_id", id, "message_id", ev.MessageID, "recipient_id", ev.RecipientID)
	return id, nil
}
