package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()})), mr
}

func TestClient_GetMissingKey(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestClient_TTL(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	t.Run("MissingKey", func(t *testing.T) {
		_, err := c.TTL(ctx, "absent")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("LiveKey", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
		ttl, err := c.TTL(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, time.Minute, ttl)
	})

	t.Run("ExpiredKey", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "dying", "v", time.Second))
		mr.FastForward(2 * time.Second)
		_, err := c.TTL(ctx, "dying")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestClient_HashRecord(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	t.Run("MissingHash", func(t *testing.T) {
		_, err := c.HGetAll(ctx, "absent")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("IncrementPreservesTTL", func(t *testing.T) {
		key := "record"
		require.NoError(t, c.HSet(ctx, key, map[string]interface{}{"attempt": 0, "code": 123456}))
		require.NoError(t, c.Expire(ctx, key, time.Minute))

		n, err := c.HIncrBy(ctx, key, "attempt", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		n, err = c.HIncrBy(ctx, key, "attempt", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		ttl, err := c.TTL(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, time.Minute, ttl)

		record, err := c.HGetAll(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "2", record["attempt"])
		assert.Equal(t, "123456", record["code"])
	})

	t.Run("DeletedHashIsGone", func(t *testing.T) {
		key := "doomed"
		require.NoError(t, c.HSet(ctx, key, map[string]interface{}{"code": 1}))
		require.NoError(t, c.Del(ctx, key))
		_, err := c.HGetAll(ctx, key)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestClient_SetNX(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "window", "x", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "window", "x", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Minute)
	ok, err = c.SetNX(ctx, "window", "x", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
