package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/servicemocker/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore_Drivers(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{name: "memory", cfg: config.StorageConfig{Driver: config.DriverMemory}},
		{name: "file", cfg: config.StorageConfig{Driver: config.DriverFile, Path: filepath.Join(dir, "file")}},
		{name: "sqlite", cfg: config.StorageConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "store.db")}},
		{name: "redis", cfg: config.StorageConfig{Driver: config.DriverRedis, RedisAddr: mr.Addr()}},
		{name: "encrypted", cfg: config.StorageConfig{Driver: config.DriverMemory, EncryptionKey: strings.Repeat("ab", 32)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, release, err := openStore(tt.cfg)
			require.NoError(t, err)
			defer func() { assert.NoError(t, release()) }()

			ctx := context.Background()
			_, err = store.Set(ctx, "token", "abc")
			require.NoError(t, err)
			got, err := store.Get(ctx, "token")
			require.NoError(t, err)
			assert.Equal(t, "abc", got)
		})
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, _, err := openStore(config.StorageConfig{Driver: "etcd"})
	assert.ErrorContains(t, err, `unknown storage driver "etcd"`)
}

func TestOpenStore_BadKeyReleasesBackend(t *testing.T) {
	_, _, err := openStore(config.StorageConfig{
		Driver:        config.DriverSQLite,
		Path:          filepath.Join(t.TempDir(), "store.db"),
		EncryptionKey: "not-hex",
	})
	assert.ErrorContains(t, err, "hex")
}
