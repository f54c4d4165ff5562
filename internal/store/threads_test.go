package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThreadMessagesReturnsClosureOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice, bob := mustUser(t, s, "alice"), mustUser(t, s, "bob")

	a := mustSend(t, s, alice, bob, "A", nil)
	b := mustSend(t, s, bob, alice, "B", &a)
	c := mustSend(t, s, alice, bob, "C", &b)
	mustSend(t, s, alice, bob, "elsewhere", nil)

	items, err := s.ThreadMessages(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, []string{a.ID, b.ID, c.ID}, []string{items[0].ID, items[1].ID, items[2].ID})

	sub, err := s.ThreadMessages(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, sub, 2)

	none, err := s.ThreadMessages(ctx, "msg_missing")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestConversationMessagesBothDirections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice, bob, carol := mustUser(t, s, "alice"), mustUser(t, s, "bob"), mustUser(t, s, "carol")

	mustSend(t, s, alice, bob, "hi", nil)
	mustSend(t, s, bob, alice, "hey", nil)
	mustSend(t, s, alice, carol, "other", nil)

	items, err := s.ConversationMessages(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "hi", items[0].Body)
	require.Equal(t, "hey", items[1].Body)
}
