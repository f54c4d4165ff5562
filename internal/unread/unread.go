// Package unread answers inbox questions over the message store.
package unread

import (
	"context"
	"fmt"

	"courier/api/internal/store"
)

type Store interface {
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID string, messageIDs []string) (int64, error)
	ListUnread(ctx context.Context, userID string) ([]store.UnreadMessage, error)
	ListUnreadIDsFrom(ctx context.Context, userID, senderID string) ([]string, error)
	UnreadCountsBySender(ctx context.Context, userID string) (map[string]int, error)
	LatestPerCounterparty(ctx context.Context, userID string) ([]store.LatestMessage, error)
}

// Conversation is one inbox row: the newest message exchanged with a
// counterparty and how many of their messages the user has not read.
type Conversation struct {
	CounterpartyID string
	Latest         store.Message
	UnreadCount    int
}

type Index struct {
	store Store
}

func New(s Store) *Index {
	return &Index{store: s}
}

func (i *Index) CountUnread(ctx context.Context, userID string) (int, error) {
	return i.store.CountUnread(ctx, userID)
}

// MarkRead marks the given messages read for userID and reports how many
// changed. Ids that are not userID's unread messages are ignored.
func (i *Index) MarkRead(ctx context.Context, userID string, messageIDs []string) (int, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	n, err := i.store.MarkRead(ctx, userID, messageIDs)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (i *Index) ListUnread(ctx context.Context, userID string) ([]store.UnreadMessage, error) {
	return i.store.ListUnread(ctx, userID)
}

// Inbox lists userID's conversations, newest first.
func (i *Index) Inbox(ctx context.Context, userID string) ([]Conversation, error) {
	latest, err := i.store.LatestPerCounterparty(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("inbox latest: %w", err)
	}
	counts, err := i.store.UnreadCountsBySender(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("inbox counts: %w", err)
	}

	out := make([]Conversation, 0, len(latest))
	for _, item := range latest {
		out = append(out, Conversation{
			CounterpartyID: item.CounterpartyID,
			Latest:         item.Message,
			UnreadCount:    counts[item.CounterpartyID],
		})
	}
	return out, nil
}

// MarkConversationRead marks everything otherID sent to userID as read.
func (i *Index) MarkConversationRead(ctx context.Context, userID, otherID string) (int, error) {
	ids, err := i.store.ListUnreadIDsFrom(ctx, userID, otherID)
	if err != nil {
		return 0, fmt.Errorf("conversation unread ids: %w", err)
	}
	return i.MarkRead(ctx, userID, ids)
}
