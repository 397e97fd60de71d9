package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNewClientInvalidURL(t *testing.T) {
	_, err := NewClient("not-a-redis-url", "test", zap.NewNop())
	assert.Error(t, err)
}

func TestSetAndGet(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k1", "v1", time.Minute))

	val, err := client.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)
}

func TestGetMissingKey(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Get(context.Background(), "missing")
	assert.Equal(t, Nil, err)
}

func TestSetNX(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	ok, err := client.SetNX(ctx, "k1", "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second write must not clobber the live value
	ok, err = client.SetNX(ctx, "k1", "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	val, err := client.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "first", val)
}

func TestGetDel(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k1", "v1", time.Minute))

	val, err := client.GetDel(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)

	// Consumed exactly once
	_, err = client.GetDel(ctx, "k1")
	assert.Equal(t, Nil, err)
}

func TestSetExpiry(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k1", "v1", time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err := client.Get(ctx, "k1")
	assert.Equal(t, Nil, err)
}

func TestDeleteAndExists(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k1", "v1", time.Minute))
	require.NoError(t, client.Set(ctx, "k2", "v2", time.Minute))

	n, err := client.Exists(ctx, "k1", "k2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, client.Delete(ctx, "k1", "k2"))

	n, err = client.Exists(ctx, "k1", "k2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestExpire(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k1", "v1", time.Hour))
	require.NoError(t, client.Expire(ctx, "k1", time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err := client.Get(ctx, "k1")
	assert.Equal(t, Nil, err)
}

func TestHealth(t *testing.T) {
	client, mr := newTestClient(t)

	assert.NoError(t, client.Health(context.Background()))

	mr.Close()
	assert.Error(t, client.Health(context.Background()))
}

func TestPrefixForLog(t *testing.T) {
	assert.Equal(t, "short", prefixForLog("short"))

	long := "staging:login:state:abcdefghijklmnopqrstuvwxyz"
	truncated := prefixForLog(long)
	assert.Equal(t, "staging:login:state:abcd…", truncated)
	assert.NotContains(t, truncated, "wxyz")
}
