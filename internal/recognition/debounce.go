package recognition

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// DebounceStore remembers when each person was last recognized. Entries may
// expire once they are older than the debounce window.
type DebounceStore interface {
	Last(ctx context.Context, personID string) (time.Time, bool, error)
	Mark(ctx context.Context, personID string, at time.Time) error
	Reset(ctx context.Context) error
}

// MemoryDebounce is a process-local TTL map.
type MemoryDebounce struct {
	c   *cache.Cache
	ttl time.Duration
}

// NewMemoryDebounce keeps entries for window. A zero window keeps them until Reset.
func NewMemoryDebounce(window time.Duration) *MemoryDebounce {
	ttl := window
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	cleanup := 2 * window
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &MemoryDebounce{c: cache.New(ttl, cleanup), ttl: ttl}
}

func (m *MemoryDebounce) Last(_ context.Context, personID string) (time.Time, bool, error) {
	v, ok := m.c.Get(personID)
	if !ok {
		return time.Time{}, false, nil
	}
	return v.(time.Time), true, nil
}

func (m *MemoryDebounce) Mark(_ context.Context, personID string, at time.Time) error {
	m.c.Set(personID, at, cache.DefaultExpiration)
	return nil
}

func (m *MemoryDebounce) Reset(context.Context) error {
	m.c.Flush()
	return nil
}

// Len reports live entries.
func (m *MemoryDebounce) Len() int { return m.c.ItemCount() }

// RedisDebounce shares debounce state between kiosks through Redis keys with a PX expiry.
type RedisDebounce struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisDebounce stores entries as <prefix>:<personID>.
func NewRedisDebounce(client *redis.Client, prefix string, window time.Duration) *RedisDebounce {
	if prefix == "" {
		prefix = "faceclock:debounce"
	}
	return &RedisDebounce{client: client, prefix: prefix, window: window}
}

func (r *RedisDebounce) key(personID string) string { return r.prefix + ":" + personID }

func (r *RedisDebounce) Last(ctx context.Context, personID string) (time.Time, bool, error) {
	ms, err := r.client.Get(ctx, r.key(personID)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (r *RedisDebounce) Mark(ctx context.Context, personID string, at time.Time) error {
	// 0 means no expiry; a negative duration would mean KEEPTTL.
	return r.client.Set(ctx, r.key(personID), at.UnixMilli(), max(r.window, 0)).Err()
}

// Reset deletes every key under the prefix.
func (r *RedisDebounce) Reset(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
