// Package config loads servicemocker settings: defaults, then an optional
// YAML file, then SERVICEMOCKER_* environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Config is the full servicemocker configuration.
type Config struct {
	// Scope the worker is registered for.
	Scope string `yaml:"scope" env:"SERVICEMOCKER_SCOPE"`
	// Script is the worker script path sent with the registration.
	Script string `yaml:"script" env:"SERVICEMOCKER_SCRIPT"`

	// Protocol and Hostname describe the client host; they decide between
	// normal and legacy mode.
	Protocol string `yaml:"protocol" env:"SERVICEMOCKER_PROTOCOL"`
	Hostname string `yaml:"hostname" env:"SERVICEMOCKER_HOSTNAME"`

	Worker  WorkerConfig  `yaml:"worker"`
	Storage StorageConfig `yaml:"storage"`

	// Timeout bounds each request/response exchange. Zero disables it.
	Timeout time.Duration `yaml:"timeout" env:"SERVICEMOCKER_TIMEOUT"`

	LogLevel    string `yaml:"log_level" env:"SERVICEMOCKER_LOG_LEVEL"`
	MetricsAddr string `yaml:"metrics_addr" env:"SERVICEMOCKER_METRICS_ADDR"`
}

// WorkerConfig locates the worker endpoint.
type WorkerConfig struct {
	// Listen is the address the worker command binds.
	Listen string `yaml:"listen" env:"SERVICEMOCKER_WORKER_LISTEN"`
	// URL is the websocket endpoint clients dial.
	URL string `yaml:"url" env:"SERVICEMOCKER_WORKER_URL"`
}

// StorageConfig selects the client store.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"SERVICEMOCKER_STORAGE_DRIVER"`
	// Path is the directory (file) or database file (sqlite).
	Path string `yaml:"path" env:"SERVICEMOCKER_STORAGE_PATH"`

	RedisAddr     string        `yaml:"redis_addr" env:"SERVICEMOCKER_REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"SERVICEMOCKER_REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"SERVICEMOCKER_REDIS_DB"`
	TTL           time.Duration `yaml:"ttl" env:"SERVICEMOCKER_STORAGE_TTL"`

	// EncryptionKey is a hex encoded 32-byte key. Empty disables encryption.
	EncryptionKey string `yaml:"encryption_key" env:"SERVICEMOCKER_ENCRYPTION_KEY"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scope:    "/",
		Script:   "/mocker.js",
		Protocol: "http:",
		Hostname: "localhost",
		Worker: WorkerConfig{
			Listen: "127.0.0.1:8089",
			URL:    "ws://127.0.0.1:8089/ws",
		},
		Storage: StorageConfig{
			Driver:    DriverMemory,
			Path:      ".servicemocker/storage",
			RedisAddr: "127.0.0.1:6379",
		},
		Timeout:  3 * time.Second,
		LogLevel: "info",
	}
}

// Load reads path (when not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values no component accepts.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory, DriverFile, DriverRedis, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative"))
	}
	if c.Storage.EncryptionKey != "" {
		if _, err := c.Storage.Key(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Key decodes EncryptionKey. It returns nil when encryption is disabled.
func (s StorageConfig) Key() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
