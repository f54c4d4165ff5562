package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// stepClock returns a strictly increasing time on every call so rows created
// in sequence sort deterministically.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC), step: time.Second}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func newTestStore(t *testing.T, opts ...Option) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := OpenDriver(ctx, DriverSQLite, filepath.Join(t.TempDir(), "messaging.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := newStepClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewSQLStore(db, nil, opts...)
}

func mustUser(t *testing.T, s *SQLStore, name string) User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), User{Username: name, Email: name + "@example.test"})
	require.NoError(t, err)
	return user
}

func mustSend(t *testing.T, s *SQLStore, from, to User, body string, parent *Message) Message {
	t.Helper()
	in := NewMessage{SenderID: from.ID, ReceiverID: to.ID, Body: body}
	if parent != nil {
		in.ParentID = &parent.ID
	}
	msg, err := s.CreateMessage(context.Background(), in)
	require.NoError(t, err)
	return msg
}

func countRows(t *testing.T, s *SQLStore, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

// counterValue sums every series of the named counter family in reg.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}
