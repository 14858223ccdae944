package cli

import (
	"fmt"

	"github.com/aretw0/servicemocker/internal/config"
	"github.com/aretw0/servicemocker/pkg/adapters/file"
	"github.com/aretw0/servicemocker/pkg/adapters/memory"
	"github.com/aretw0/servicemocker/pkg/adapters/redis"
	"github.com/aretw0/servicemocker/pkg/adapters/sqlite"
	"github.com/aretw0/servicemocker/pkg/persistence/middleware"
	"github.com/aretw0/servicemocker/pkg/ports"
)

// openStore builds the process-wide store for cfg. The returned function
// releases it.
func openStore(cfg config.StorageConfig) (ports.KVStore, func() error, error) {
	var (
		store   ports.KVStore
		release = func() error { return nil }
	)

	switch cfg.Driver {
	case config.DriverMemory, "":
		store = memory.NewStore()
	case config.DriverFile:
		store = file.New(cfg.Path)
	case config.DriverRedis:
		var opts []redis.Option
		if cfg.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.TTL))
		}
		rs := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
		store, release = rs, rs.Close
	case config.DriverSQLite:
		ss, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store, release = ss, ss.Close
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	key, err := cfg.Key()
	if err != nil {
		_ = release()
		return nil, nil, err
	}
	if key != nil {
		store = middleware.Chain(store, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	return store, release, nil
}
