package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/servicemocker/pkg/adapters/memory"
	"github.com/aretw0/servicemocker/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunKVStoreContract(t, store)
}

func TestMemoryStore_IsolatesValues(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	value := map[string]any{"a": "1"}
	_, err := store.Set(ctx, "k", value)
	require.NoError(t, err)
	value["a"] = "mutated"

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1"}, got)
}

func TestMemoryStore_RejectsUnserializable(t *testing.T) {
	store := memory.NewStore()

	_, err := store.Set(context.Background(), "k", make(chan int))
	assert.Error(t, err)

	keys, err := store.Keys(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}
