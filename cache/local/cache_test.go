package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestCache(t *testing.T) *Cache {
	c := NewCache(Config{GCInterval: time.Minute})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", "value1", 0))
	v, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, "value1", v)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ttl_key", "val", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	_, err := c.Get(ctx, "ttl_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDel_RemovesEveryKind(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "k", "v", 0)
	_ = c.HSet(ctx, "h", map[string]string{"a": "1"})
	_ = c.LPush(ctx, "l", "x")

	require.NoError(t, c.Del(ctx, "k", "h", "l"))
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	h, _ := c.HGetAll(ctx, "h")
	assert.Empty(t, h)
	l, _ := c.LRange(ctx, "l", 0, -1)
	assert.Empty(t, l)
}

func TestSetNX(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	v, _ := c.Get(ctx, "lock")
	assert.Equal(t, "a", v)
}

func TestSetNX_AfterExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_, _ = c.SetNX(ctx, "lock", "a", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	ok, err := c.SetNX(ctx, "lock", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpire(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "k", "v", 20*time.Millisecond)
	require.NoError(t, c.Expire(ctx, "k", time.Minute))
	time.Sleep(30 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	assert.NoError(t, err, "Expire must extend the TTL")

	assert.ErrorIs(t, c.Expire(ctx, "missing", time.Minute), ErrNotFound)
}

func TestHash(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "pet", map[string]string{"needs": "{}", "x": "1"}))
	require.NoError(t, c.HSet(ctx, "pet", map[string]string{"x": "2"}))
	all, err := c.HGetAll(ctx, "pet")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"needs": "{}", "x": "2"}, all)

	// the returned map is a copy
	all["needs"] = "mutated"
	again, _ := c.HGetAll(ctx, "pet")
	assert.Equal(t, "{}", again["needs"])
}

func TestList(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "j", "a", "b"))
	require.NoError(t, c.LPush(ctx, "j", "c"))
	all, err := c.LRange(ctx, "j", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, all)

	first, _ := c.LRange(ctx, "j", 0, 0)
	assert.Equal(t, []string{"c"}, first)
	tail, _ := c.LRange(ctx, "j", -2, -1)
	assert.Equal(t, []string{"b", "a"}, tail)
	none, _ := c.LRange(ctx, "j", 5, 10)
	assert.Empty(t, none)

	require.NoError(t, c.LTrim(ctx, "j", 0, 1))
	all, _ = c.LRange(ctx, "j", 0, -1)
	assert.Equal(t, []string{"c", "b"}, all)
}

func TestGC_EvictsExpired(t *testing.T) {
	c := NewCache(Config{GCInterval: 5 * time.Millisecond})
	defer c.Close()
	ctx := context.Background()
	_ = c.Set(ctx, "k", "v", time.Millisecond)
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, present := c.kv["k"]
		return !present
	}, time.Second, 5*time.Millisecond)
}

func TestClose_StopsGC(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := NewCache(Config{GCInterval: time.Millisecond})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
