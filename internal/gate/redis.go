package gate

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"courier/api/internal/util"
)

// slidingWindow runs eviction, the limit check and the insert atomically.
// Scores are Unix microseconds passed as strings so Lua never reformats them.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. ARGV[2])
if redis.call('ZCARD', key) >= tonumber(ARGV[3]) then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, oldest[2]}
end
redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return {1, ''}
`)

// RedisLimiter shares sliding windows between API instances through a sorted
// set per key.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(redisURL string, limit int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLimiterWithClient(client, limit, window), nil
}

func NewRedisLimiterWithClient(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RedisLimiter{client: client, prefix: "ratelimit:", limit: limit, window: window}
}

func (l *RedisLimiter) key(origin string) string {
	return l.prefix + origin
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	nowMicros := now.UnixMicro()
	cutoff := now.Add(-l.window).UnixMicro()
	ttl := l.window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	raw, err := slidingWindow.Run(ctx, l.client, []string{l.key(key)},
		strconv.FormatInt(nowMicros, 10),
		strconv.FormatInt(cutoff, 10),
		strconv.Itoa(l.limit),
		util.NewID("hit"),
		strconv.FormatInt(ttl, 10),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("sliding window: %w", err)
	}
	if len(raw) != 2 {
		return Decision{}, fmt.Errorf("sliding window: unexpected reply %v", raw)
	}
	if allowed, _ := raw[0].(int64); allowed == 1 {
		return Decision{Allowed: true}, nil
	}

	oldestText, _ := raw[1].(string)
	oldest, err := strconv.ParseFloat(oldestText, 64)
	if err != nil {
		return Decision{}, fmt.Errorf("parse oldest hit %q: %w", oldestText, err)
	}
	oldestAt := time.UnixMicro(int64(math.Round(oldest)))
	return Decision{RetryAfter: oldestAt.Add(l.window).Sub(now)}, nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
