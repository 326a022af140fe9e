package recognition

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDebounce(t *testing.T) {
	d := NewMemoryDebounce(time.Minute)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	_, ok, err := d.Last(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Mark(ctx, "alice", at))
	got, ok, err := d.Last(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, got)
	assert.Equal(t, 1, d.Len())

	require.NoError(t, d.Reset(ctx))
	assert.Equal(t, 0, d.Len())
}

func TestMemoryDebounceExpires(t *testing.T) {
	d := NewMemoryDebounce(20 * time.Millisecond)
	ctx := context.Background()
	require.NoError(t, d.Mark(ctx, "alice", time.Now()))

	assert.Eventually(t, func() bool {
		_, ok, _ := d.Last(ctx, "alice")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 500 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisDebounce(t *testing.T) {
	client := redisClient(t)
	prefix := "faceclock-test:" + t.Name()
	d := NewRedisDebounce(client, prefix, time.Minute)
	ctx := context.Background()
	t.Cleanup(func() { _ = d.Reset(context.Background()) })

	at := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, d.Mark(ctx, "alice", at))
	require.NoError(t, d.Mark(ctx, "bob", at))

	got, ok, err := d.Last(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(at))

	ttl, err := client.PTTL(ctx, prefix+":alice").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, d.Reset(ctx))
	_, ok, err = d.Last(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}
