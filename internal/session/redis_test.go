package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and a RedisBackend pointing at it
func setupTestRedis(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisBackend(client, DefaultTTL), mr
}

func TestRedisBackend(t *testing.T) {
	backend, _ := setupTestRedis(t)
	testBackend(t, backend)
}

func TestRedisBackend_StoredShape(t *testing.T) {
	backend, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := backend.CompareAndSet(ctx, "abc", 0, []byte(`{"session_id":"abc"}`))
	require.NoError(t, err)

	raw, err := mr.Get("session:abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"payload":{"session_id":"abc"}}`, raw)
}

func TestRedisBackend_TTL(t *testing.T) {
	backend, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := backend.CompareAndSet(ctx, "abc", 0, []byte(`{}`))
	require.NoError(t, err)

	ttl := mr.TTL("session:abc")
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.Less(t, ttl, 20*time.Minute)

	// a write refreshes the expiry
	mr.FastForward(10 * time.Minute)
	_, err = backend.CompareAndSet(ctx, "abc", 1, []byte(`{}`))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, mr.TTL("session:abc"), 15*time.Minute)

	mr.FastForward(20 * time.Minute)
	_, ok, err := backend.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBackend_InvalidJSON(t *testing.T) {
	backend, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("session:bad", "not json"))

	_, _, err := backend.Get(ctx, "bad")
	assert.Error(t, err)

	_, err = backend.CompareAndSet(ctx, "bad", 0, []byte(`{}`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrVersionConflict)
}

func TestRedisBackend_ConnectionError(t *testing.T) {
	backend, mr := setupTestRedis(t)
	mr.Close()

	_, _, err := backend.Get(context.Background(), "abc")
	assert.Error(t, err)

	_, err = backend.CompareAndSet(context.Background(), "abc", 0, []byte(`{}`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrVersionConflict)
}
