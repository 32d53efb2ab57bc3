package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// recordScript applies one event to the hash at KEYS[1].
// ARGV: now (ms), window (ms), max. Returns {allowed, remaining, reset_ms}.
var recordScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

local reset = tonumber(redis.call('HGET', KEYS[1], 'reset') or '0')
if reset == 0 or now >= reset then
  reset = now + window
  redis.call('HSET', KEYS[1], 'count', 1, 'reset', reset)
  redis.call('PEXPIRE', KEYS[1], window)
  return {1, max - 1, reset}
end

local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
if count >= max then
  return {0, 0, reset}
end

count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, max - count, reset}
`)

// RedisStore is a Store shared across instances through Redis. The window
// arithmetic runs server-side in a Lua script so each Record is atomic.
type RedisStore struct {
	client redis.Scripter
	now    func() time.Time
}

func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// NewRedisClient parses a redis:// URL and checks connectivity. Only a bad
// URL is an error: an unreachable server is logged and the client returned
// anyway, since FallbackStore serves locally until Redis comes back.
func NewRedisClient(ctx context.Context, url string, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, counting locally until it recovers",
			slog.String("addr", opts.Addr),
			slog.Any("error", err))
	}
	return client, nil
}

func (s *RedisStore) Record(ctx context.Context, key string, window time.Duration, max int) (Result, error) {
	now := s.now().UnixMilli()

	vals, err := recordScript.Run(ctx, s.client, []string{key}, now, window.Milliseconds(), max).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("redis record %s: %w", key, err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("redis record %s: unexpected reply length %d", key, len(vals))
	}

	return Result{
		Allowed:   vals[0] == 1,
		Remaining: int(vals[1]),
		ResetAt:   time.UnixMilli(vals[2]),
	}, nil
}
