package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/ipscope/internal/config"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ipscope/pkg/errors"
)

func startMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr
}

func newMiniredisClient(t *testing.T, mr *miniredis.Miniredis) *Client {
	t.Helper()
	client, err := NewClient(config.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClient_ConnectsAndPings(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)

	assert.NoError(t, client.Ping(context.Background()))
	assert.NotNil(t, client.PoolStats())
}

func TestNewClient_ConnectionRefused(t *testing.T) {
	client, err := NewClient(config.RedisConfig{Addr: "127.0.0.1:1"}, logging.NewNopLogger())
	require.Error(t, err)
	assert.Nil(t, client)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
}

func TestClient_SetGetRoundTrip(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k1", "v1", time.Minute).Err())

	got, err := client.Get(ctx, "k1").Result()
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	n, err := client.Exists(ctx, "k1", "absent").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	deleted, err := client.Del(ctx, "k1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestClient_SetNXOnlyOnce(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	ctx := context.Background()

	first, err := client.SetNX(ctx, "once", "a", time.Minute).Result()
	require.NoError(t, err)
	assert.True(t, first)

	second, err := client.SetNX(ctx, "once", "b", time.Minute).Result()
	require.NoError(t, err)
	assert.False(t, second)
}

func TestClient_ClosedGuard(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	require.NoError(t, client.Close())

	ctx := context.Background()
	assert.ErrorIs(t, client.Ping(ctx), ErrClientClosed)
	assert.ErrorIs(t, client.Get(ctx, "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, client.Set(ctx, "k", "v", 0).Err(), ErrClientClosed)
	assert.ErrorIs(t, client.SetNX(ctx, "k", "v", 0).Err(), ErrClientClosed)
	assert.ErrorIs(t, client.Del(ctx, "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, client.Exists(ctx, "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, client.Expire(ctx, "k", time.Minute).Err(), ErrClientClosed)
	assert.ErrorIs(t, client.TTL(ctx, "k").Err(), ErrClientClosed)
	assert.ErrorIs(t, client.PTTL(ctx, "k").Err(), ErrClientClosed)
}

func TestClient_CloseIdempotent(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)

	require.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}
