package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, clock *fakeClock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client)
	s.now = clock.Now
	return s, mr
}

func TestRedisStore_FixedWindow(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestRedisStore(t, clock)
	ctx := context.Background()
	wantReset := time.UnixMilli(clock.Now().Add(time.Minute).UnixMilli())

	for i := 1; i <= 3; i++ {
		res, err := s.Record(ctx, "rl:login:1.2.3.4", time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3-i, res.Remaining)
		assert.True(t, wantReset.Equal(res.ResetAt))
	}

	res, err := s.Record(ctx, "rl:login:1.2.3.4", time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.True(t, wantReset.Equal(res.ResetAt))
}

func TestRedisStore_NewWindowAfterReset(t *testing.T) {
	clock := newFakeClock()
	s, _ := newTestRedisStore(t, clock)
	ctx := context.Background()

	_, err := s.Record(ctx, "k", time.Minute, 1)
	require.NoError(t, err)
	denied, err := s.Record(ctx, "k", time.Minute, 1)
	require.NoError(t, err)
	assert.False(t, denied.Allowed)

	clock.Advance(time.Minute)
	res, err := s.Record(ctx, "k", time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisStore_SetsExpiry(t *testing.T) {
	clock := newFakeClock()
	s, mr := newTestRedisStore(t, clock)

	_, err := s.Record(context.Background(), "k", time.Minute, 5)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestRedisStore_MatchesMemoryStore(t *testing.T) {
	clock := newFakeClock()
	rs, _ := newTestRedisStore(t, clock)
	ms := newTestMemoryStore(clock)
	ctx := context.Background()

	steps := []time.Duration{0, 10 * time.Second, 10 * time.Second, 0, 45 * time.Second, time.Second}
	for i, step := range steps {
		clock.Advance(step)
		want, err := ms.Record(ctx, "k", time.Minute, 2)
		require.NoError(t, err)
		got, err := rs.Record(ctx, "k", time.Minute, 2)
		require.NoError(t, err)

		assert.Equal(t, want.Allowed, got.Allowed, "step %d", i)
		assert.Equal(t, want.Remaining, got.Remaining, "step %d", i)
		assert.Equal(t, want.ResetAt.UnixMilli(), got.ResetAt.UnixMilli(), "step %d", i)
	}
}

func TestRedisStore_ConnectionError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	_, err := NewRedisStore(client).Record(context.Background(), "k", time.Minute, 5)
	assert.Error(t, err)
}

func TestNewRedisClient_UnreachableServerIsNotFatal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, "redis://127.0.0.1:1/0?dial_timeout=100ms&max_retries=-1", discardLogger())
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()

	// Counting carries on through the local store
	f := NewFallbackStore(NewRedisStore(client), NewMemoryStore(), 200*time.Millisecond, discardLogger())
	got, err := f.Record(ctx, "rl:login:1.2.3.4", time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, got.Allowed)

	got, err = f.Record(ctx, "rl:login:1.2.3.4", time.Minute, 1)
	require.NoError(t, err)
	assert.False(t, got.Allowed)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url", discardLogger())
	assert.Error(t, err)
}
