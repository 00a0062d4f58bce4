package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(time.Minute, rdb, "emhr:test:", zerolog.Nop()), mr
}

func TestCache_LocalOnly(t *testing.T) {
	ctx := context.Background()
	c := New(time.Minute, nil, "", zerolog.Nop())

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "k", "v"))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCache_WritesThroughToRedis(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)

	require.NoError(t, c.Set(ctx, "setting:timezone", "America/Chicago"))
	got, err := mr.Get("emhr:test:setting:timezone")
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", got)
	assert.True(t, mr.TTL("emhr:test:setting:timezone") > 0)
}

func TestCache_RedisHitRefillsLocal(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	require.NoError(t, mr.Set("emhr:test:shared", "from-redis"))

	v, err := c.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "from-redis", v)

	mr.Del("emhr:test:shared")
	v, err = c.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "from-redis", v, "expected local tier hit")

	c.Flush()
	_, err = c.Get(ctx, "shared")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCache_DeleteBothTiers(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	require.NoError(t, c.Set(ctx, "k", "v"))
	require.NoError(t, c.Delete(ctx, "k"))

	assert.False(t, mr.Exists("emhr:test:k"))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestCache_RedisDownIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	mr.Close()

	_, err := c.Get(ctx, "anything")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Error(t, c.Set(ctx, "k", "v"))
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestNewRedisClient_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	c.Close()
}
