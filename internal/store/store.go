package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"courier/api/internal/logging"
	"courier/api/internal/metrics"
	"courier/api/internal/notify"
)

const defaultEditAttempts = 5

// SQLStore persists users, messages, history and notifications. Queries use
// numbered placeholders in ascending order of first use so the same text runs
// on both pgx and go-sqlite3.
type SQLStore struct {
	db           *sql.DB
	fanout       *notify.Fanout
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics
	editAttempts int

	// beforeSwap runs inside an edit transaction after the history row is
	// written and before the versioned body update.
	beforeSwap func(ctx context.Context, tx *sql.Tx, messageID string) error
}

type Option func(*SQLStore)

// WithClock replaces the wall clock used for created_at and edited_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLStore) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLStore) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SQLStore) { s.metrics = m }
}

// WithEditAttempts bounds how often EditMessage re-reads after losing a
// version race.
func WithEditAttempts(n int) Option {
	return func(s *SQLStore) {
		if n > 0 {
			s.editAttempts = n
		}
	}
}

func NewSQLStore(db *sql.DB, fanout *notify.Fanout, opts ...Option) *SQLStore {
	s := &SQLStore{
		db:           db,
		fanout:       fanout,
		now:          time.Now,
		editAttempts: defaultEditAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger)
	if s.fanout == nil {
		s.fanout = notify.New(s.logger)
	}
	return s
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx))
}

// timestamp returns the current time at the precision both backends keep.
func (s *SQLStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *SQLStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const messageColumns = `m.id, m.sender_id, m.receiver_id, m.body, m.created_at, m.is_read, m.is_edited, m.last_edited, m.parent_id, m.thread_depth, m.version`

func scanMessage(row rowScanner) (Message, error) {
	var (
		item       Message
		lastEdited sql.NullTime
		parentID   sql.NullString
	)
	if err := row.Scan(
		&item.ID,
		&item.SenderID,
		&item.ReceiverID,
		&item.Body,
		&item.CreatedAt,
		&item.IsRead,
		&item.IsEdited,
		&lastEdited,
		&parentID,
		&item.ThreadDepth,
		&item.Version,
	); err != nil {
		return Message{}, err
	}
	if lastEdited.Valid {
		t := lastEdited.Time
		item.LastEdited = &t
	}
	if parentID.Valid {
		id := parentID.String
		item.ParentID = &id
	}
	return item, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()
	items := make([]Message, 0)
	for rows.Next() {
		item, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

// placeholders renders "$start, $start+1, ..." for n values.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
