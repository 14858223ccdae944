package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunKVStoreContract runs a suite of tests to verify that a KVStore implementation
// adheres to the defined interface contract.
func RunKVStoreContract(t *testing.T, store KVStore) {
	ctx := context.Background()
	key := "contract-test-key-" + time.Now().Format("20060102150405")

	t.Run("Set and Get", func(t *testing.T) {
		stored, err := store.Set(ctx, key, "v")
		require.NoError(t, err, "Set should not return error")
		assert.Equal(t, "v", stored)

		got, err := store.Get(ctx, key)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, "v", got)
	})

	t.Run("Structured Value", func(t *testing.T) {
		value := map[string]any{"status": "ok", "tags": []any{"a", "b"}}
		_, err := store.Set(ctx, key+"-structured", value)
		require.NoError(t, err)

		got, err := store.Get(ctx, key+"-structured")
		require.NoError(t, err)
		// JSON-backed stores hand numbers back as float64, so stick to strings here.
		assert.Equal(t, value, got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		_, err := store.Set(ctx, key, "first")
		require.NoError(t, err)
		_, err = store.Set(ctx, key, "second")
		require.NoError(t, err)

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "second", got)
	})

	t.Run("Get Absent", func(t *testing.T) {
		got, err := store.Get(ctx, "absent-"+key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Remove", func(t *testing.T) {
		_, err := store.Set(ctx, key, "v")
		require.NoError(t, err)

		require.NoError(t, store.Remove(ctx, key), "Remove should not return error")

		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got, "Get after Remove should return the absent value")

		assert.NoError(t, store.Remove(ctx, key), "Removing an absent key should not fail")
	})

	t.Run("Clear", func(t *testing.T) {
		k1 := key + "-1"
		k2 := key + "-2"
		_, err := store.Set(ctx, k1, "a")
		require.NoError(t, err)
		_, err = store.Set(ctx, k2, "b")
		require.NoError(t, err)

		require.NoError(t, store.Clear(ctx))

		for _, k := range []string{k1, k2} {
			got, err := store.Get(ctx, k)
			require.NoError(t, err)
			assert.Nil(t, got, "key %s should be gone after Clear", k)
		}
	})
}
