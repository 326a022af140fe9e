package store

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the client shared by the attempt queue and the debounce store.
// Every key it hands out lives under Prefix so several kiosks can share one instance.
type Redis struct {
	Client *redis.Client
	Prefix string
}

// NewRedis builds a lazily connecting client with short timeouts.
func NewRedis(addr, prefix string) *Redis {
	if prefix == "" {
		prefix = "faceclock"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client, Prefix: prefix}
}

// Key joins parts under the prefix: Key("debounce") is "faceclock:debounce".
func (r *Redis) Key(parts ...string) string {
	return strings.Join(append([]string{r.Prefix}, parts...), ":")
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
