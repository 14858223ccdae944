package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servicemocker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/", cfg.Scope)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "ws://127.0.0.1:8089/ws", cfg.Worker.URL)
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
scope: /app
timeout: 500ms
worker:
  url: ws://worker:9000/ws
storage:
  driver: sqlite
  path: /tmp/mocks.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/app", cfg.Scope)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "ws://worker:9000/ws", cfg.Worker.URL)
	assert.Equal(t, "127.0.0.1:8089", cfg.Worker.Listen, "unset keys keep their defaults")
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/mocks.db", cfg.Storage.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: file\n")
	t.Setenv("SERVICEMOCKER_STORAGE_DRIVER", "redis")
	t.Setenv("SERVICEMOCKER_REDIS_ADDR", "cache:6379")
	t.Setenv("SERVICEMOCKER_TIMEOUT", "0s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverRedis, cfg.Storage.Driver)
	assert.Equal(t, "cache:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, time.Duration(0), cfg.Timeout)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  driver: mongo\n"))
	assert.ErrorContains(t, err, `unknown storage driver "mongo"`)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "scope: [unclosed\n"))
	assert.Error(t, err)
}

func TestStorageConfig_Key(t *testing.T) {
	key, err := StorageConfig{}.Key()
	require.NoError(t, err)
	assert.Nil(t, key)

	key, err = StorageConfig{EncryptionKey: strings.Repeat("ab", 32)}.Key()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = StorageConfig{EncryptionKey: "abcd"}.Key()
	assert.Error(t, err)

	_, err = StorageConfig{EncryptionKey: "zz"}.Key()
	assert.Error(t, err)
}
