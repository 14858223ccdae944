package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/servicemocker/pkg/adapters/memory"
	"github.com/aretw0/servicemocker/pkg/persistence/middleware"
	"github.com/aretw0/servicemocker/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunKVStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	secure := mw(underlying)
	ctx := context.Background()

	_, err := secure.Set(ctx, "token", "my-secret-sauce")
	require.NoError(t, err)

	// Underlying store only sees the envelope
	stored, err := underlying.Get(ctx, "token")
	require.NoError(t, err)
	envelope, ok := stored.(map[string]any)
	require.True(t, ok, "expected an envelope map, got %T", stored)
	assert.Contains(t, envelope, "__encrypted__")
	assert.NotContains(t, envelope["__encrypted__"], "my-secret-sauce")

	got, err := secure.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", got)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	_, err := secureOld.Set(ctx, "k", "encrypted-with-old-key")
	require.NoError(t, err)

	secureNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	got, err := secureNew.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "encrypted-with-old-key", got)

	_, err = secureNew.Set(ctx, "k", "encrypted-with-new-key")
	require.NoError(t, err)

	_, err = secureOld.Get(ctx, "k")
	assert.ErrorIs(t, err, middleware.ErrUndecryptable, "old key alone should not decrypt new data")
}

func TestEncryptionMiddleware_RejectsPlainValues(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	_, err := underlying.Set(ctx, "k", "plain")
	require.NoError(t, err)

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err = secure.Get(ctx, "k")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}

func TestChain_Order(t *testing.T) {
	key := generateKey(t)
	store := middleware.Chain(memory.NewStore(), middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))

	_, err := store.Set(context.Background(), "k", "v")
	require.NoError(t, err)
	got, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
