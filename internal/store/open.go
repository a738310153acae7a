package store

import (
	"context"

	"github.com/go-faster/errors"

	"cpcal/internal/config"
)

// Open returns Preferences backed by the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (*Preferences, error) {
	var (
		kv  KV
		err error
	)
	switch cfg.Driver {
	case config.StoreSQLite, "":
		kv, err = OpenSQLite(cfg.DSN)
	case config.StorePostgres:
		kv, err = OpenPostgres(ctx, cfg.DSN)
	case config.StoreRedis:
		kv, err = OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	case config.StoreMemory:
		kv = NewMemory()
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", cfg.Driver)
	}
	return NewPreferences(kv, cfg.Driver), nil
}
