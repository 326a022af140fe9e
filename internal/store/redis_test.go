package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRedisKey(t *testing.T) {
	r := NewRedis("localhost:0", "")
	defer r.Close()
	assert.Equal(t, "faceclock:debounce", r.Key("debounce"))
	assert.Equal(t, "faceclock:debounce:alice", r.Key("debounce", "alice"))

	custom := &Redis{Prefix: "site-a"}
	assert.Equal(t, "site-a:attempts", custom.Key("attempts"))
}

func TestRedisHealthyUnreachable(t *testing.T) {
	var nilRedis *Redis
	assert.False(t, nilRedis.Healthy(context.Background()))
	assert.NoError(t, nilRedis.Close())

	r := NewRedis("127.0.0.1:1", "")
	defer r.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.False(t, r.Healthy(ctx))
}
