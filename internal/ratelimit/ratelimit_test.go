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

func TestMemoryAllow(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(3, time.Hour)
	m.now = func() time.Time { return clock }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "buyer:a@x.com")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}

	ok, _ := m.Allow(ctx, "buyer:a@x.com")
	assert.False(t, ok)

	// other keys have their own bucket
	ok, _ = m.Allow(ctx, "vendor:a@x.com")
	assert.True(t, ok)

	// one token refills every window/burst
	clock = clock.Add(20 * time.Minute)
	ok, _ = m.Allow(ctx, "buyer:a@x.com")
	assert.True(t, ok)
}

func TestMemoryCleanup(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(2, time.Minute)
	m.now = func() time.Time { return clock }

	_, _ = m.Allow(context.Background(), "k")
	require.Len(t, m.visitors, 1)

	clock = clock.Add(2 * time.Minute)
	m.Cleanup()
	assert.Empty(t, m.visitors)
}

func newRedis(t *testing.T, limit int, window time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, "otp", limit, window), mr
}

func TestRedisAllow(t *testing.T) {
	r, mr := newRedis(t, 2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := r.Allow(ctx, "buyer:a@x.com")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}
	ok, err := r.Allow(ctx, "buyer:a@x.com")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, time.Hour, mr.TTL("otp:buyer:a@x.com"))

	// the window ends with the key
	mr.FastForward(time.Hour)
	ok, err = r.Allow(ctx, "buyer:a@x.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRestoresMissingExpiry(t *testing.T) {
	r, mr := newRedis(t, 5, time.Hour)

	// a counter left behind without a ttl
	require.NoError(t, mr.Set("otp:buyer:a@x.com", "7"))

	ok, err := r.Allow(context.Background(), "buyer:a@x.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Hour, mr.TTL("otp:buyer:a@x.com"))
}

func TestRedisUnavailable(t *testing.T) {
	r, mr := newRedis(t, 5, time.Hour)
	mr.Close()

	_, err := r.Allow(context.Background(), "buyer:a@x.com")
	assert.Error(t, err)
}
