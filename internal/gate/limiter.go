package gate

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultRateLimit  = 5
	DefaultRateWindow = time.Minute
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is a sliding-window counter keyed by request origin. Allow evicts
// hits older than now minus the window, refuses when the remaining hits
// reach the limit, and otherwise records now. Refusals are not recorded.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}

// MemoryLimiter keeps hits in process memory. Each key has its own lock so
// unrelated origins never contend.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	mu   sync.Mutex
	hits []time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &MemoryLimiter{limit: limit, window: window, buckets: make(map[string]*bucket)}
}

func (l *MemoryLimiter) bucket(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	return b
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	b := l.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.evict(now, l.window)
	if len(b.hits) >= l.limit {
		return Decision{RetryAfter: b.hits[0].Add(l.window).Sub(now)}, nil
	}
	b.hits = append(b.hits, now)
	return Decision{Allowed: true}, nil
}

func (b *bucket) evict(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	drop := 0
	for drop < len(b.hits) && b.hits[drop].Before(cutoff) {
		drop++
	}
	if drop > 0 {
		b.hits = append(b.hits[:0], b.hits[drop:]...)
	}
}

// Sweep forgets keys with no hits inside the window.
func (l *MemoryLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		b.evict(now, l.window)
		empty := len(b.hits) == 0
		b.mu.Unlock()
		if empty {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}
