package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/servicemocker/pkg/adapters/redis"
	"github.com/aretw0/servicemocker/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)

	store := redis.NewFromClient(client)
	ports.RunKVStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()

	_, err := store.Set(ctx, "k", "v")
	require.NoError(t, err)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "k")

	// Key expiration is driven by miniredis time.
	mr.FastForward(2 * time.Second)

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Index pruning uses wall-clock time, so wait past the TTL.
	time.Sleep(1200 * time.Millisecond)

	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	_, err := store.Set(ctx, "my-key", "v")
	require.NoError(t, err)

	assert.True(t, mr.Exists("custom:app:data:my-key"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")
}

func TestRedisStore_ClearLeavesOtherNamespaces(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()

	mine := redis.NewFromClient(client, redis.WithPrefix("a:"))
	other := redis.NewFromClient(client, redis.WithPrefix("b:"))

	_, err := mine.Set(ctx, "k", "mine")
	require.NoError(t, err)
	_, err = other.Set(ctx, "k", "other")
	require.NoError(t, err)

	require.NoError(t, mine.Clear(ctx))

	assert.False(t, mr.Exists("a:data:k"))
	assert.False(t, mr.Exists("a:index"))
	got, err := other.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "other", got)
}
