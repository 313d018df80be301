package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestClient_NilIsAlwaysMiss(t *testing.T) {
	ctx := context.Background()

	for name, c := range map[string]*Client{"nil": nil, "no redis": New(nil)} {
		t.Run(name, func(t *testing.T) {
			c.Set(ctx, "k", []byte("v"), time.Minute)
			assert.Nil(t, c.Get(ctx, "k"))

			var out []string
			assert.False(t, c.GetJSON(ctx, "k", &out))
			c.Delete(ctx, "k")
			assert.ErrorIs(t, c.Ping(ctx), ErrDisabled)
		})
	}
}

func TestClient_UnreachableRedisFailsSafe(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	c := New(rdb)
	ctx := context.Background()

	c.SetJSON(ctx, "k", []string{"a"}, time.Minute)
	assert.Nil(t, c.Get(ctx, "k"))
	assert.Error(t, c.Ping(ctx))
}
