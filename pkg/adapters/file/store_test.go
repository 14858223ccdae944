package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/servicemocker/pkg/adapters/file"
	"github.com/aretw0/servicemocker/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	ports.RunKVStoreContract(t, store)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := file.New(dir).Set(ctx, "mock:/api/users", map[string]any{"status": "200"})
	require.NoError(t, err)

	got, err := file.New(dir).Get(ctx, "mock:/api/users")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "200"}, got)

	_, err = os.Stat(filepath.Join(dir, "ServiceMocker.json"))
	assert.NoError(t, err, "namespace document should exist")
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, err := store.Set(ctx, k, k)
		require.NoError(t, err)
	}
	require.NoError(t, store.Remove(ctx, "b"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ServiceMocker.json", entries[0].Name())
}

func TestFileStore_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ServiceMocker.json"), []byte("{not json"), 0644))

	_, err := file.New(dir).Get(context.Background(), "k")
	assert.Error(t, err)
}
